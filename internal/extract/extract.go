// Package extract implements C4: the per-shard worker that streams a
// table's rows, computes each row's RowFingerprint through the compiled
// ColumnMap expressions, and enqueues batches onto the side's queue.
// Grounded on the teacher's database/postgres cursor-style row scanning
// and on the corpus's pgx bulk-loader goroutine-per-shard layout.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pgcompare/internal/columnmap"
	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/errs"
	"pgcompare/internal/model"
	"pgcompare/internal/queue"
)

// Extractor is one shard's worker for one side of one table.
type Extractor struct {
	Side       model.Side
	Shard      int
	ShardCount int

	Dialect   dialect.Dialect
	DB        *sql.DB
	TableMap  model.TableMap
	Expr      columnmap.Expressions
	BatchSize int
	Queue     *queue.Queue
	Logger    *slog.Logger

	// Throttle is polled before each batch is enqueued so the Observer
	// (C9) can apply backpressure ahead of the queue filling, per spec
	// §4.9's staged-row watermark.
	Throttle func(ctx context.Context) error

	// Direct, when set, makes this Extractor write each batch straight to
	// staging instead of enqueuing it — the loader-threads=0 degraded
	// mode spec §5 describes, used for diagnosis without a Loader tier.
	// Queue is left nil in this mode; no sentinel is ever produced.
	Direct Inserter

	// Sort mirrors cfg.DatabaseSort: when true, buildQuery appends an
	// ORDER BY over the primary-key columns (spec §6's database-sort
	// entry). Off by default since it changes the source engine's query
	// plan and is only useful for reproducing a run's row order exactly.
	Sort bool
}

// Inserter is the subset of repo.Repo's write path a degraded
// (loader-threads=0) Extractor calls directly instead of enqueuing.
type Inserter interface {
	InsertBatch(ctx context.Context, b model.Batch) (int64, error)
}

// Run streams the shard's rows to completion, enqueuing BatchSize-row
// Batches, then enqueues a sentinel (empty) Batch. Returns an
// *errs.ExtractError on any SQL failure; the shard stops immediately,
// without enqueuing a sentinel, so the Loader's completion barrier never
// fires for a table that failed mid-extract.
func (x *Extractor) Run(ctx context.Context) error {
	query, args := x.buildQuery()
	x.Logger.Debug("extractor starting", "side", x.Side, "shard", x.Shard, "table", x.TableMap.TableName)

	rows, err := x.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return errs.NewExtractError(string(x.Side), x.Shard, fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	batch := make([]model.RowFingerprint, 0, x.BatchSize)
	var total int64

	for rows.Next() {
		var fp model.RowFingerprint
		fp.TID = x.TableMap.TID
		if err := rows.Scan(&fp.PKHash, &fp.ColumnHash, &fp.PK); err != nil {
			return errs.NewExtractError(string(x.Side), x.Shard, fmt.Errorf("scan: %w", err))
		}
		batch = append(batch, fp)
		total++

		if len(batch) >= x.BatchSize {
			if err := x.flush(ctx, batch); err != nil {
				return err
			}
			batch = make([]model.RowFingerprint, 0, x.BatchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return errs.NewExtractError(string(x.Side), x.Shard, fmt.Errorf("iterate: %w", err))
	}

	if len(batch) > 0 {
		if err := x.flush(ctx, batch); err != nil {
			return err
		}
	}

	if x.Direct == nil {
		if err := x.Queue.Put(ctx, model.Batch{Side: x.Side, Shard: x.Shard}); err != nil {
			return errs.NewExtractError(string(x.Side), x.Shard, err)
		}
	}

	x.Logger.Info("extractor complete", "side", x.Side, "shard", x.Shard, "rows", total)
	return nil
}

func (x *Extractor) flush(ctx context.Context, rows []model.RowFingerprint) error {
	if x.Throttle != nil {
		if err := x.Throttle(ctx); err != nil {
			return errs.NewExtractError(string(x.Side), x.Shard, err)
		}
	}
	batch := model.Batch{Side: x.Side, Shard: x.Shard, Rows: append([]model.RowFingerprint(nil), rows...)}

	if x.Direct != nil {
		if _, err := x.Direct.InsertBatch(ctx, batch); err != nil {
			return errs.NewExtractError(string(x.Side), x.Shard, err)
		}
		return nil
	}

	if err := x.Queue.Put(ctx, batch); err != nil {
		return errs.NewExtractError(string(x.Side), x.Shard, err)
	}
	return nil
}

// buildQuery assembles the shard's SELECT. A single-shard (P=1 or no
// mod_column) table omits the shard predicate entirely.
func (x *Extractor) buildQuery() (string, []any) {
	schema := x.Dialect.Quote(x.TableMap.SchemaName, x.TableMap.PreserveSchema)
	table := x.Dialect.Quote(x.TableMap.TableName, x.TableMap.PreserveTable)

	var where []string
	if x.TableMap.TableFilter != "" {
		where = append(where, "("+x.TableMap.TableFilter+")")
	}
	if x.ShardCount > 1 && x.TableMap.ModColumn != "" {
		where = append(where, shardPredicate(x.Dialect, x.TableMap.ModColumn, x.Shard, x.ShardCount))
	}

	query := fmt.Sprintf("SELECT %s AS pk_hash, %s AS column_hash, %s AS pk FROM %s.%s",
		x.Expr.PKHashExpr, x.Expr.ColumnHashExpr, x.Expr.PKJSONExpr, schema, table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if x.Sort && len(x.Expr.PKColumnNames) > 0 {
		cols := make([]string, len(x.Expr.PKColumnNames))
		for i, name := range x.Expr.PKColumnNames {
			cols[i] = x.Dialect.Quote(name, false)
		}
		query += " ORDER BY " + strings.Join(cols, ", ")
	}
	return query, nil
}

// shardPredicate renders "<mod expression> = s" in each dialect's modulo
// syntax. mod_column is expected to carry (or be coercible to) an
// integer; non-integer sharding keys are an out-of-scope TableMap
// authoring concern (spec §4.4 takes mod_column as a given input).
func shardPredicate(d dialect.Dialect, modColumn string, shard, shardCount int) string {
	col := d.Quote(modColumn, false)
	switch d.Name() {
	case "mssql":
		return fmt.Sprintf("(%s %% %d) = %d", col, shardCount, shard)
	case "oracle":
		return fmt.Sprintf("MOD(%s, %d) = %d", col, shardCount, shard)
	default:
		return fmt.Sprintf("MOD(%s, %d) = %d", col, shardCount, shard)
	}
}

// NewThrottle wraps a staged-row watermark check into the callback shape
// Extractor.Throttle expects; cfg.ObserverThrottle=false makes it a no-op.
func NewThrottle(cfg config.Config, check func(ctx context.Context) (bool, error)) func(ctx context.Context) error {
	if !cfg.ObserverThrottle {
		return nil
	}
	return func(ctx context.Context) error {
		for {
			over, err := check(ctx)
			if err != nil {
				return err
			}
			if !over {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}
