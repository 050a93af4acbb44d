// Package recheck implements C8: re-reading the exact rows behind a
// prior run's findings directly from source/target (bypassing staging
// entirely) and re-deriving their fingerprints in-process to classify
// each finding as confirmed, resolved or still_missing. Grounded on the
// teacher's database/postgres row-scanning style, reused here against a
// single-row WHERE instead of a full-table cursor.
package recheck

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"pgcompare/internal/dialect"
	"pgcompare/internal/errs"
	"pgcompare/internal/model"
)

// Finding is the prior run's persisted verdict the Rechecker re-derives.
type Finding struct {
	TID    int64
	Side   model.Side // which side's table this finding's pk row lives in
	PK     string      // JSON object literal, e.g. {"id":"42"}
	Status model.FindingStatus
}

// Rechecker re-verifies findings against live source/target data.
type Rechecker struct {
	SourceDB, TargetDB           *sql.DB
	SourceDialect, TargetDialect dialect.Dialect
	SourceMap, TargetMap         model.TableMap
	ColumnMap                    model.ColumnMap
	Logger                       *slog.Logger
}

// Run re-verifies every finding and returns its RecheckOutcome. The
// Rechecker never touches staging: spec §4.8 treats check mode as a
// read-only confirmation pass over live data.
func (rc *Rechecker) Run(ctx context.Context, findings []Finding) (map[string]model.RecheckOutcome, error) {
	outcomes := make(map[string]model.RecheckOutcome, len(findings))

	for _, f := range findings {
		outcome, err := rc.recheckOne(ctx, f)
		if err != nil {
			return nil, err
		}
		outcomes[f.PK] = outcome
	}
	return outcomes, nil
}

func (rc *Rechecker) recheckOne(ctx context.Context, f Finding) (model.RecheckOutcome, error) {
	pkValues, err := parsePKJSON(f.PK)
	if err != nil {
		return "", fmt.Errorf("recheck tid=%d: %w", f.TID, err)
	}

	srcHash, srcFound, err := rc.fingerprintRow(ctx, rc.SourceDB, rc.SourceDialect, rc.SourceMap, model.SideSource, pkValues)
	if err != nil {
		return "", errs.NewExtractError("source", 0, err)
	}
	tgtHash, tgtFound, err := rc.fingerprintRow(ctx, rc.TargetDB, rc.TargetDialect, rc.TargetMap, model.SideTarget, pkValues)
	if err != nil {
		return "", errs.NewExtractError("target", 0, err)
	}

	return classify(srcHash, tgtHash, srcFound, tgtFound), nil
}

// classify is the pure verdict rule spec §4.8 assigns: a row missing on
// either side is still_missing; present-on-both with equal hashes means
// the underlying data changed since the compare run and now agrees
// (resolved); present-on-both with differing hashes confirms the
// original finding stands.
func classify(srcHash, tgtHash string, srcFound, tgtFound bool) model.RecheckOutcome {
	switch {
	case !srcFound || !tgtFound:
		return model.OutcomeStillMissing
	case srcHash == tgtHash:
		return model.OutcomeResolved
	default:
		return model.OutcomeConfirmed
	}
}

// fingerprintRow re-selects one row by its stored pk values and
// recomputes its column hash the same way the Extractor would have,
// using each entry's already-compiled ValueExpression.
func (rc *Rechecker) fingerprintRow(ctx context.Context, db *sql.DB, d dialect.Dialect, tm model.TableMap, side model.Side, pkValues map[string]string) (hash string, found bool, err error) {
	schema := d.Quote(tm.SchemaName, tm.PreserveSchema)
	table := d.Quote(tm.TableName, tm.PreserveTable)

	var selectExprs, whereExprs []string
	var args []any
	argN := 1

	for _, e := range rc.ColumnMap.Entries {
		cs := e.Source
		if side == model.SideTarget {
			cs = e.Target
		}
		if cs.IsZero() {
			continue
		}
		if e.PrimaryKey() {
			val, ok := pkValues[e.ColumnAlias]
			if !ok {
				return "", false, fmt.Errorf("pk alias %q missing from stored pk JSON", e.ColumnAlias)
			}
			whereExprs = append(whereExprs, fmt.Sprintf("%s = %s", d.Quote(cs.ColumnName, cs.PreserveCase), placeholder(d, argN)))
			args = append(args, val)
			argN++
			continue
		}
		if !cs.Supported || !e.Hashable() {
			continue
		}
		selectExprs = append(selectExprs, cs.ValueExpression)
	}

	query := fmt.Sprintf("SELECT %s FROM %s.%s WHERE %s",
		strings.Join(selectExprs, ", "), schema, table, strings.Join(whereExprs, " AND "))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}

	vals := make([]any, len(selectExprs))
	ptrs := make([]any, len(selectExprs))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", false, err
	}

	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%v", v)
	}
	sum := md5.Sum([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:]), true, nil
}

// placeholder renders a positional bind marker in d's dialect.
func placeholder(d dialect.Dialect, n int) string {
	switch d.Name() {
	case "postgres":
		return fmt.Sprintf("$%d", n)
	case "oracle":
		return fmt.Sprintf(":%d", n)
	case "mssql":
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

func parsePKJSON(pk string) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(pk), &raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}
