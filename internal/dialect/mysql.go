package dialect

import (
	"database/sql"
	"fmt"
)

// mysqlDialect covers MySQL and MariaDB; grounded on database/mysql/
// database.go which queries information_schema and SHOW FULL TABLES, and
// backtick-quotes identifiers.
type mysqlDialect struct{}

func NewMySQL() Dialect { return mysqlDialect{} }

func (mysqlDialect) Name() string     { return "mysql" }
func (mysqlDialect) NativeCase() Case { return CaseLower }

func (d mysqlDialect) Quote(identifier string, preserveCase bool) string {
	return QuoteIfNeeded(d, "`", identifier, preserveCase)
}

func (mysqlDialect) IsReservedWord(name string) bool {
	_, ok := mysqlReservedWords[name]
	return ok
}

func (d mysqlDialect) SelectTables(db *sql.DB, schema string) ([]TableInfo, error) {
	rows, err := db.Query(`
		select table_schema, table_name
		from information_schema.tables
		where table_schema = ? and table_type = 'BASE TABLE'
		order by table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("mysql select tables: %w", err)
	}
	defer rows.Close()

	var out []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Owner, &t.TableName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d mysqlDialect) SelectColumns(db *sql.DB, schema, table string) ([]ColumnInfo, error) {
	const query = `
		select
			c.table_schema,
			c.table_name,
			c.column_name,
			c.data_type,
			coalesce(c.character_maximum_length, 0),
			coalesce(c.numeric_precision, 0),
			coalesce(c.numeric_scale, 0),
			(c.is_nullable = 'YES'),
			(c.column_key = 'PRI'),
			c.ordinal_position
		from information_schema.columns c
		where c.table_schema = ? and c.table_name = ?
		order by c.ordinal_position`

	rows, err := db.Query(query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("mysql select columns: %w", err)
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		if err := rows.Scan(&ci.Owner, &ci.TableName, &ci.ColumnName, &ci.DataType,
			&ci.DataLength, &ci.DataPrecision, &ci.DataScale, &ci.Nullable, &ci.PrimaryKey,
			&ci.Position); err != nil {
			return nil, err
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

var mysqlReservedWords = map[string]bool{
	"add": true, "all": true, "alter": true, "analyze": true, "and": true,
	"as": true, "asc": true, "between": true, "by": true, "case": true,
	"change": true, "check": true, "column": true, "condition": true,
	"constraint": true, "create": true, "cross": true, "current_date": true,
	"current_time": true, "current_timestamp": true, "database": true,
	"default": true, "delete": true, "desc": true, "distinct": true,
	"drop": true, "else": true, "exists": true, "explain": true, "false": true,
	"for": true, "foreign": true, "from": true, "group": true, "having": true,
	"if": true, "in": true, "index": true, "inner": true, "insert": true,
	"interval": true, "into": true, "is": true, "join": true, "key": true,
	"keys": true, "left": true, "like": true, "limit": true, "match": true,
	"not": true, "null": true, "on": true, "or": true, "order": true,
	"outer": true, "primary": true, "references": true, "right": true,
	"select": true, "set": true, "table": true, "then": true, "to": true,
	"true": true, "union": true, "unique": true, "update": true, "use": true,
	"using": true, "values": true, "when": true, "where": true, "with": true,
}
