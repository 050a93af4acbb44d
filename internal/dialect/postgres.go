package dialect

import (
	"database/sql"
	"fmt"
)

// postgresDialect is grounded on database/postgres/database.go's
// tableNames() and getColumns() pg_catalog queries, trimmed to the
// {owner, table, column, type, length, precision, scale, nullable, pk}
// projection C1 needs for reconciliation (no DDL-rendering fields).
type postgresDialect struct{}

func NewPostgres() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string     { return "postgres" }
func (postgresDialect) NativeCase() Case { return CaseLower }

func (d postgresDialect) Quote(identifier string, preserveCase bool) string {
	return QuoteIfNeeded(d, `"`, identifier, preserveCase)
}

func (postgresDialect) IsReservedWord(name string) bool {
	_, ok := postgresReservedWords[name]
	return ok
}

func (d postgresDialect) SelectTables(db *sql.DB, schema string) ([]TableInfo, error) {
	rows, err := db.Query(`
		select n.nspname, c.relname
		from pg_catalog.pg_class c
		inner join pg_catalog.pg_namespace n on c.relnamespace = n.oid
		where n.nspname = $1
		and c.relkind in ('r', 'p')
		and c.relispartition = false
		order by c.relname asc`, schema)
	if err != nil {
		return nil, fmt.Errorf("postgres select tables: %w", err)
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

func (d postgresDialect) SelectColumns(db *sql.DB, schema, table string) ([]ColumnInfo, error) {
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
			coalesce(pk.is_pk, false),
			c.ordinal_position
		from information_schema.columns c
		left join (
			select kcu.table_schema, kcu.table_name, kcu.column_name, true as is_pk
			from information_schema.key_column_usage kcu
			join information_schema.table_constraints tc
				on tc.constraint_name = kcu.constraint_name
				and tc.table_schema = kcu.table_schema
				and tc.constraint_type = 'PRIMARY KEY'
		) pk on pk.table_schema = c.table_schema
			and pk.table_name = c.table_name
			and pk.column_name = c.column_name
		where c.table_schema = $1 and c.table_name = $2
		order by c.ordinal_position`

	rows, err := db.Query(query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("postgres select columns: %w", err)
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

// postgresReservedWords is a representative subset of the SQL:2016 reserved
// word list Postgres enforces; callers should quote any identifier in this
// set regardless of preserveCase.
var postgresReservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_date": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true, "deferrable": true,
	"desc": true, "distinct": true, "do": true, "else": true, "end": true, "except": true,
	"false": true, "fetch": true, "for": true, "foreign": true, "from": true, "grant": true,
	"group": true, "having": true, "in": true, "initially": true, "intersect": true,
	"into": true, "leading": true, "limit": true, "localtime": true, "localtimestamp": true,
	"not": true, "null": true, "offset": true, "on": true, "only": true, "or": true,
	"order": true, "primary": true, "references": true, "returning": true, "select": true,
	"session_user": true, "some": true, "symmetric": true, "table": true, "then": true,
	"to": true, "trailing": true, "true": true, "union": true, "unique": true, "user": true,
	"using": true, "when": true, "where": true, "window": true, "with": true,
}
