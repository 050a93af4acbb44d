// Package repo is the repository access layer: the Postgres-backed
// metadata and staging store spec §5 defines (dc_table, dc_table_map,
// dc_table_column_map, dc_source/dc_target staging, dc_*_findings,
// dc_table_history). Grounded on the teacher's database/postgres package
// for connection/session handling and on the other_examples pgx bulk
// loader for CopyFrom-based batched ingest.
package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pgcompare/internal/config"
	"pgcompare/internal/errs"
	"pgcompare/internal/model"
)

// Repo wraps the repository Postgres pool. All staging/metadata access
// for the Reconciler, Loader and Observer goes through this type; nothing
// else in the module opens a connection to the repo database directly.
type Repo struct {
	pool *pgxpool.Pool
}

// Open establishes the repository connection pool and applies the
// session settings spec §4.6 calls for on every connection it hands out
// (synchronous_commit=off, work_mem=256MB): pgxpool.Config.AfterConnect
// is the teacher's pattern for per-connection session setup.
func Open(ctx context.Context, p config.ConnParams) (*Repo, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errs.NewConnectError("repo", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET synchronous_commit = off; SET work_mem = '256MB'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.NewConnectError("repo", err)
	}

	// The repo connection is shared by every Extractor/Loader/Observer in
	// the run, so a cold-start network blip here would otherwise fail the
	// whole invocation; retry the initial ping with bounded backoff before
	// giving up.
	pingPolicy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)
	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, backoff.WithContext(pingPolicy, ctx)); err != nil {
		pool.Close()
		return nil, errs.NewConnectError("repo", err)
	}
	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() {
	r.pool.Close()
}

// stagingTable returns the fully-qualified staging table name for a side.
func stagingTable(side model.Side) string {
	if side == model.SideSource {
		return "dc_source"
	}
	return "dc_target"
}

// TruncateStaging clears a tid's staging rows ahead of a fresh compare
// run. The check action does not call it; the Rechecker reads live rows
// and never reads staging.
func (r *Repo) TruncateStaging(ctx context.Context, side model.Side, tid int64) error {
	table := stagingTable(side)
	_, err := r.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE tid = $1", table), tid)
	if err != nil {
		return errs.NewLoadError(table, err)
	}
	return nil
}

// InsertBatch appends a Batch's rows to the side's staging table via
// pgx's CopyFrom, the bulk-ingest path the loader reference in the
// retrieved corpus uses for sustained throughput. A sentinel (empty)
// batch is a no-op.
func (r *Repo) InsertBatch(ctx context.Context, b model.Batch) (int64, error) {
	if b.Sentinel() {
		return 0, nil
	}
	table := stagingTable(b.Side)

	n, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{table},
		[]string{"tid", "pk_hash", "column_hash", "pk"},
		pgx.CopyFromSlice(len(b.Rows), func(i int) ([]any, error) {
			row := b.Rows[i]
			return []any{row.TID, row.PKHash, row.ColumnHash, row.PK}, nil
		}),
	)
	if err != nil {
		return 0, errs.NewLoadError(table, err)
	}
	return n, nil
}

// CompareResult is one non-equal row surfaced by Compare. Kind is the
// spec §4.7 bucket ("not_equal", "missing_target", "missing_source") used
// for RunHistory counts; Status/Side are the persisted Finding shape
// (model.FindingStatus only distinguishes "missing" vs "not_equal" — the
// missing_target/missing_source distinction survives purely through
// which findings table, dc_source_findings vs dc_target_findings, a Side
// of "source" vs "target" routes the row into).
type CompareResult struct {
	Kind   string
	Status model.FindingStatus
	Side   model.Side
	PK     string
}

// Compare executes the set-difference SQL across a tid's two staging
// tables and returns every non-equal row as a Finding-shaped result; the
// equal count is returned separately since equal rows are never persisted
// as findings.
func (r *Repo) Compare(ctx context.Context, tid int64) (equal int64, findings []CompareResult, err error) {
	const query = `
		SELECT s.pk, 'not_equal', 'not_equal', 'source'
		FROM dc_source s
		JOIN dc_target t ON t.tid = s.tid AND t.pk_hash = s.pk_hash
		WHERE s.tid = $1 AND t.column_hash <> s.column_hash
		UNION ALL
		SELECT s.pk, 'missing_target', 'missing', 'source'
		FROM dc_source s
		WHERE s.tid = $1
		  AND NOT EXISTS (SELECT 1 FROM dc_target t WHERE t.tid = s.tid AND t.pk_hash = s.pk_hash)
		UNION ALL
		SELECT t.pk, 'missing_source', 'missing', 'target'
		FROM dc_target t
		WHERE t.tid = $1
		  AND NOT EXISTS (SELECT 1 FROM dc_source s WHERE s.tid = t.tid AND s.pk_hash = t.pk_hash)`

	rows, err := r.pool.Query(ctx, query, tid)
	if err != nil {
		return 0, nil, fmt.Errorf("compare tid=%d: %w", tid, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cr CompareResult
		if err := rows.Scan(&cr.PK, &cr.Kind, &cr.Status, &cr.Side); err != nil {
			return 0, nil, err
		}
		findings = append(findings, cr)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	const equalQuery = `
		SELECT COUNT(*) FROM dc_source s
		JOIN dc_target t ON t.tid = s.tid AND t.pk_hash = s.pk_hash AND t.column_hash = s.column_hash
		WHERE s.tid = $1`
	if err := r.pool.QueryRow(ctx, equalQuery, tid).Scan(&equal); err != nil {
		return 0, nil, err
	}
	return equal, findings, nil
}

// SaveFindings persists the non-equal comparison results for a tid/batch.
func (r *Repo) SaveFindings(ctx context.Context, tid, batchNbr int64, results []CompareResult) error {
	for _, cr := range results {
		table := "dc_source_findings"
		if cr.Side == model.SideTarget {
			table = "dc_target_findings"
		}
		_, err := r.pool.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (tid, batch_nbr, pk, status) VALUES ($1, $2, $3, $4)", table),
			tid, batchNbr, cr.PK, cr.Status)
		if err != nil {
			return fmt.Errorf("save finding tid=%d: %w", tid, err)
		}
	}
	return nil
}

// SaveRunHistory records one reconciliation pass.
func (r *Repo) SaveRunHistory(ctx context.Context, h model.RunHistory) error {
	result, err := json.Marshal(map[string]int64{
		"equal":          h.Equal,
		"not_equal":      h.NotEqual,
		"missing_source": h.MissingSrc,
		"missing_target": h.MissingTgt,
	})
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO dc_table_history (tid, action, batch_nbr, start_ts, end_ts, result, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		h.TID, h.Action, h.BatchNbr, h.Start, h.End, result, h.Status)
	return err
}

// LoadFindings returns every finding stored for a table, across both the
// source- and target-side findings tables, for the `check` action's
// recheck pass. Rows are not filtered by batch or by run.
func (r *Repo) LoadFindings(ctx context.Context, tid int64) ([]model.Finding, error) {
	const query = `
		SELECT tid, batch_nbr, 'source', pk, status FROM dc_source_findings WHERE tid = $1
		UNION ALL
		SELECT tid, batch_nbr, 'target', pk, status FROM dc_target_findings WHERE tid = $1`

	rows, err := r.pool.Query(ctx, query, tid)
	if err != nil {
		return nil, fmt.Errorf("load findings tid=%d: %w", tid, err)
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		if err := rows.Scan(&f.TID, &f.BatchNbr, &f.Side, &f.PK, &f.Status); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LoadColumnMap reconstructs a table's ColumnMap from dc_table_column_map,
// for collaborators (the Rechecker) that need the compiled alignment
// without recomputing it from a live catalog scan.
func (r *Repo) LoadColumnMap(ctx context.Context, tid int64) (model.ColumnMap, error) {
	const query = `
		SELECT column_alias, dest_type, column_name, data_type, data_length, data_precision,
		       data_scale, nullable, pk, data_class, preserve_case, value_expression, supported
		FROM dc_table_column_map
		WHERE tid = $1
		ORDER BY column_alias`

	rows, err := r.pool.Query(ctx, query, tid)
	if err != nil {
		return model.ColumnMap{}, fmt.Errorf("load column map tid=%d: %w", tid, err)
	}
	defer rows.Close()

	byAlias := make(map[string]*model.ColumnMapEntry)
	var order []string
	for rows.Next() {
		var alias, side string
		var cs model.ColumnSide
		var class string
		if err := rows.Scan(&alias, &side, &cs.ColumnName, &cs.DataType, &cs.DataLength, &cs.DataPrecision,
			&cs.DataScale, &cs.Nullable, &cs.PrimaryKey, &class, &cs.PreserveCase, &cs.ValueExpression, &cs.Supported); err != nil {
			return model.ColumnMap{}, err
		}
		cs.DataClass = model.DataClass(class)

		e, ok := byAlias[alias]
		if !ok {
			e = &model.ColumnMapEntry{ColumnAlias: alias}
			byAlias[alias] = e
			order = append(order, alias)
		}
		if model.Side(side) == model.SideSource {
			e.Source = cs
		} else {
			e.Target = cs
		}
	}
	if err := rows.Err(); err != nil {
		return model.ColumnMap{}, err
	}

	cm := model.ColumnMap{TID: tid}
	for _, alias := range order {
		cm.Entries = append(cm.Entries, *byAlias[alias])
	}
	return cm, nil
}

// LoadTableEntries returns every enabled TableEntry for a project.
func (r *Repo) LoadTableEntries(ctx context.Context, project int64) ([]model.TableEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tid, pid, alias, enabled, batch_nbr, parallel_degree
		 FROM dc_table WHERE pid = $1 AND enabled = true`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TableEntry
	for rows.Next() {
		var e model.TableEntry
		if err := rows.Scan(&e.TID, &e.Project, &e.Alias, &e.Enabled, &e.BatchNbr, &e.ParallelDegree); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveTableEntry upserts a TableEntry row (discover/copy-table).
func (r *Repo) SaveTableEntry(ctx context.Context, e model.TableEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dc_table (tid, pid, alias, enabled, batch_nbr, parallel_degree)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tid) DO UPDATE SET
		   alias = EXCLUDED.alias, enabled = EXCLUDED.enabled,
		   batch_nbr = EXCLUDED.batch_nbr, parallel_degree = EXCLUDED.parallel_degree`,
		e.TID, e.Project, e.Alias, e.Enabled, e.BatchNbr, e.ParallelDegree)
	return err
}

// SaveTableMap upserts both sides' dc_table_map rows for a tid.
func (r *Repo) SaveTableMap(ctx context.Context, source, target model.TableMap) error {
	for _, tm := range []model.TableMap{source, target} {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO dc_table_map
			   (tid, dest_type, schema_name, table_name, mod_column, table_filter,
			    preserve_schema_case, preserve_table_case)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (tid, dest_type) DO UPDATE SET
			   schema_name = EXCLUDED.schema_name, table_name = EXCLUDED.table_name,
			   mod_column = EXCLUDED.mod_column, table_filter = EXCLUDED.table_filter,
			   preserve_schema_case = EXCLUDED.preserve_schema_case,
			   preserve_table_case = EXCLUDED.preserve_table_case`,
			tm.TID, string(tm.Origin), tm.SchemaName, tm.TableName, tm.ModColumn, tm.TableFilter,
			tm.PreserveSchema, tm.PreserveTable)
		if err != nil {
			return fmt.Errorf("save table map tid=%d side=%s: %w", tm.TID, tm.Origin, err)
		}
	}
	return nil
}

// SaveColumnMap replaces a tid's dc_table_column_map rows wholesale —
// simpler and safer than reconciling an upsert against a compiler that
// may have dropped or renamed aliases since the last discover/compare.
func (r *Repo) SaveColumnMap(ctx context.Context, cm model.ColumnMap) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM dc_table_column_map WHERE tid = $1", cm.TID); err != nil {
		return err
	}

	for _, e := range cm.Entries {
		for _, side := range []model.Side{model.SideSource, model.SideTarget} {
			cs := e.Source
			if side == model.SideTarget {
				cs = e.Target
			}
			if cs.IsZero() {
				continue
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO dc_table_column_map
				   (tid, column_alias, dest_type, column_name, data_type, data_length,
				    data_precision, data_scale, nullable, pk, data_class, preserve_case,
				    value_expression, supported)
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
				cm.TID, e.ColumnAlias, string(side), cs.ColumnName, cs.DataType, cs.DataLength,
				cs.DataPrecision, cs.DataScale, cs.Nullable, cs.PrimaryKey, string(cs.DataClass),
				cs.PreserveCase, cs.ValueExpression, cs.Supported)
			if err != nil {
				return fmt.Errorf("save column map tid=%d alias=%s: %w", cm.TID, e.ColumnAlias, err)
			}
		}
	}
	return tx.Commit(ctx)
}

// LoadTableMap returns the source and target physical location of a tid.
func (r *Repo) LoadTableMap(ctx context.Context, tid int64) (source, target model.TableMap, err error) {
	rows, err := r.pool.Query(ctx,
		`SELECT tid, dest_type, schema_name, table_name, mod_column, table_filter,
		        preserve_schema_case, preserve_table_case
		 FROM dc_table_map WHERE tid = $1`, tid)
	if err != nil {
		return source, target, err
	}
	defer rows.Close()

	for rows.Next() {
		var tm model.TableMap
		var destType string
		if err := rows.Scan(&tm.TID, &destType, &tm.SchemaName, &tm.TableName,
			&tm.ModColumn, &tm.TableFilter, &tm.PreserveSchema, &tm.PreserveTable); err != nil {
			return source, target, err
		}
		tm.Origin = model.Side(destType)
		if tm.Origin == model.SideSource {
			source = tm
		} else {
			target = tm
		}
	}
	return source, target, rows.Err()
}

// StagedRowCount reports the current row count in a side's staging table
// for a tid, used by the Observer to drive the throttle watermark.
func (r *Repo) StagedRowCount(ctx context.Context, side model.Side, tid int64) (int64, error) {
	var n int64
	table := stagingTable(side)
	err := r.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE tid = $1", table), tid).Scan(&n)
	return n, err
}

// Vacuum runs VACUUM on both staging tables; only invoked when
// observer-vacuum is enabled, since VACUUM cannot run inside the
// transaction pgx otherwise wraps statements in.
func (r *Repo) Vacuum(ctx context.Context) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "VACUUM dc_source"); err != nil {
		return err
	}
	_, err = conn.Exec(ctx, "VACUUM dc_target")
	return err
}
