// Package dialect is the C1 dialect adapter: per-engine metadata SELECTs,
// identifier quoting, case folding and reserved-word handling. Grounded on
// the teacher's per-engine database/{postgres,mysql,mssql}/database.go
// files, which each hand-write a fixed catalog query and an
// escapeIdentifier function; this package generalizes that pattern behind
// one Dialect interface instead of one concrete *Database type per engine,
// since C1 here only needs to answer "what columns/tables exist" and "how
// do I quote a name", not build DDL.
package dialect

import (
	"database/sql"
	"fmt"
	"strings"
)

// Case is an engine's native (unquoted) identifier folding behavior.
type Case int

const (
	CaseLower Case = iota
	CaseUpper
)

// ColumnInfo is the uniform projection every dialect's column catalog
// query is normalized into.
type ColumnInfo struct {
	Owner         string
	TableName     string
	ColumnName    string
	DataType      string
	DataLength    int
	DataPrecision int
	DataScale     int
	Nullable      bool
	PrimaryKey    bool
	Position      int
}

// TableInfo is the uniform projection of a dialect's table catalog query.
type TableInfo struct {
	Owner     string
	TableName string
}

// Dialect is the per-engine adapter contract (spec §4.1).
type Dialect interface {
	// Name is the canonical dialect identifier used in config ("postgres",
	// "mysql", "mssql", "oracle", "db2").
	Name() string

	// Quote renders identifier in this engine's quoting convention.
	// preserveCase=true always quotes (and therefore preserves case);
	// otherwise the identifier is rendered unquoted in the engine's
	// native case via NativeCase.
	Quote(identifier string, preserveCase bool) string

	// NativeCase is the case an unquoted identifier folds to.
	NativeCase() Case

	// SelectColumns returns every column of schema.table, ordered by
	// ordinal position, already normalized into ColumnInfo.
	SelectColumns(db *sql.DB, schema, table string) ([]ColumnInfo, error)

	// SelectTables returns every base table in schema.
	SelectTables(db *sql.DB, schema string) ([]TableInfo, error)

	// IsReservedWord reports whether name requires quoting to be used as
	// an identifier regardless of the preserveCase setting.
	IsReservedWord(name string) bool
}

// FoldCase renders name in d's native case, honoring preserveCase.
func FoldCase(d Dialect, name string, preserveCase bool) string {
	if preserveCase {
		return name
	}
	switch d.NativeCase() {
	case CaseUpper:
		return strings.ToUpper(name)
	default:
		return strings.ToLower(name)
	}
}

// QuoteIfNeeded quotes name with the given quote character when
// preserveCase is set or name is a reserved word; otherwise returns the
// case-folded, unquoted name.
func QuoteIfNeeded(d Dialect, quoteChar string, name string, preserveCase bool) string {
	if preserveCase || d.IsReservedWord(name) {
		escaped := strings.ReplaceAll(name, quoteChar, quoteChar+quoteChar)
		return quoteChar + escaped + quoteChar
	}
	return FoldCase(d, name, false)
}

var registry = map[string]func() Dialect{
	"postgres": func() Dialect { return NewPostgres() },
	"mysql":    func() Dialect { return NewMySQL() },
	"mariadb":  func() Dialect { return NewMySQL() },
	"mssql":    func() Dialect { return NewMSSQL() },
	"oracle":   func() Dialect { return NewOracle() },
	"db2":      func() Dialect { return NewDB2() },
}

// Get resolves a dialect by its config name. An unknown name yields a
// plain error; the Reconciler wraps it as an errs.ConfigError.
func Get(name string) (Dialect, error) {
	ctor, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
	return ctor(), nil
}
