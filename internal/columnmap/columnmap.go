// Package columnmap implements C3: aligning a source and target column
// catalog by case-insensitive alias into a model.ColumnMap, and compiling
// the pkExpression/columnExpression SQL fragments the Extractor evaluates
// per row (spec §4.3).
package columnmap

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"pgcompare/internal/casttype"
	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/model"
)

// Expressions are the two compiled SQL fragments Compile produces for one
// side: a boolean/text MD5 over the primary-key columns and one over the
// remaining hashable columns, plus the JSON object literal used to
// populate RowFingerprint.PK.
type Expressions struct {
	PKHashExpr     string
	ColumnHashExpr string
	PKJSONExpr     string

	// PKColumnNames are the unquoted primary-key column names for this
	// side, in the same lexicographic alias order as PKHashExpr's
	// operands. The Extractor quotes and joins these into an ORDER BY
	// when database-sort is enabled (spec §6).
	PKColumnNames []string
}

// Compile aligns sourceCols and targetCols by case-insensitive column name,
// builds the ordered model.ColumnMap and, for each side, the pk/column
// MD5 expressions the Extractor will select alongside the table's rows.
// Unmatched or unsupported columns are excluded from hashing and logged
// as warnings, never as errors: spec §4.3 treats a schema drift as a
// degraded-but-running condition, not a fatal one.
func Compile(
	tid int64,
	sourceDialect, targetDialect dialect.Dialect,
	sourceCols, targetCols []dialect.ColumnInfo,
	cfg config.Config,
	logger *slog.Logger,
) (model.ColumnMap, Expressions, Expressions, error) {
	bySource := indexByAlias(sourceCols)
	byTarget := indexByAlias(targetCols)

	aliases := make(map[string]bool, len(bySource)+len(byTarget))
	for a := range bySource {
		aliases[a] = true
	}
	for a := range byTarget {
		aliases[a] = true
	}

	ordered := make([]string, 0, len(aliases))
	for a := range aliases {
		ordered = append(ordered, a)
	}
	sort.Strings(ordered)

	cm := model.ColumnMap{TID: tid}
	for _, alias := range ordered {
		entry := model.ColumnMapEntry{ColumnAlias: alias}

		if ci, ok := bySource[alias]; ok {
			entry.Source = compileSide(sourceDialect, ci, cfg, logger)
		}
		if ci, ok := byTarget[alias]; ok {
			entry.Target = compileSide(targetDialect, ci, cfg, logger)
		}

		switch {
		case !entry.Source.IsZero() && entry.Target.IsZero():
			logger.Warn("column unmatched on target, excluded from hash", "alias", alias)
		case entry.Source.IsZero() && !entry.Target.IsZero():
			logger.Warn("column unmatched on source, excluded from hash", "alias", alias)
		}

		cm.Entries = append(cm.Entries, entry)
	}

	if len(cm.PKAliases()) == 0 {
		return cm, Expressions{}, Expressions{}, fmt.Errorf("columnmap: table %d has no primary key columns mapped", tid)
	}

	srcExpr := buildExpressions(cm, model.SideSource)
	tgtExpr := buildExpressions(cm, model.SideTarget)
	return cm, srcExpr, tgtExpr, nil
}

func indexByAlias(cols []dialect.ColumnInfo) map[string]dialect.ColumnInfo {
	m := make(map[string]dialect.ColumnInfo, len(cols))
	for _, c := range cols {
		m[strings.ToLower(c.ColumnName)] = c
	}
	return m
}

func compileSide(d dialect.Dialect, ci dialect.ColumnInfo, cfg config.Config, logger *slog.Logger) model.ColumnSide {
	ref := d.Quote(ci.ColumnName, false)
	valueExpr, family, ok := casttype.Compile(d.Name(), casttype.Column{
		Expr:      ref,
		DataType:  ci.DataType,
		Precision: ci.DataPrecision,
		Scale:     ci.DataScale,
	}, cfg.ColumnHashMethod, cfg.FloatCast, cfg.NumberCast)

	side := model.ColumnSide{
		ColumnName:    ci.ColumnName,
		DataType:      ci.DataType,
		DataLength:    ci.DataLength,
		DataPrecision: ci.DataPrecision,
		DataScale:     ci.DataScale,
		Nullable:      ci.Nullable,
		PrimaryKey:    ci.PrimaryKey,
		Supported:     ok,
	}
	if ok {
		side.DataClass = family.DataClass()
		side.ValueExpression = valueExpr
	} else {
		logger.Warn("column type unsupported, excluded from hash",
			"column", ci.ColumnName, "data_type", ci.DataType)
	}
	return side
}

// buildExpressions renders the pk/column MD5(CONCAT_WS('', ...)) fragments
// and the pk JSON object literal for one side, in lexicographic alias
// order (spec §4.3: "never source-file order").
func buildExpressions(cm model.ColumnMap, side model.Side) Expressions {
	var pkValues, colValues []string
	var pkPairs []string
	var pkColumnNames []string

	for _, e := range cm.Entries {
		cs := e.Source
		if side == model.SideTarget {
			cs = e.Target
		}
		if cs.IsZero() || !cs.Supported {
			continue
		}

		if e.PrimaryKey() {
			pkValues = append(pkValues, cs.ValueExpression)
			pkPairs = append(pkPairs, fmt.Sprintf(`'"%s":"' || REPLACE(%s, '"', '\"') || '"'`, e.ColumnAlias, cs.ValueExpression))
			pkColumnNames = append(pkColumnNames, cs.ColumnName)
			continue
		}
		if !e.Hashable() {
			continue
		}
		colValues = append(colValues, cs.ValueExpression)
	}

	return Expressions{
		PKHashExpr:     fmt.Sprintf("MD5(CONCAT_WS('', %s))", strings.Join(pkValues, ", ")),
		ColumnHashExpr: fmt.Sprintf("MD5(CONCAT_WS('', %s))", strings.Join(colValues, ", ")),
		PKJSONExpr:     fmt.Sprintf("('{' || %s || '}')", strings.Join(pkPairs, " || ',' || ")),
		PKColumnNames:  pkColumnNames,
	}
}
