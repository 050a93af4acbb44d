package dialect

import (
	"database/sql"
	"fmt"
)

// mssqlDialect is grounded on database/mssql/database.go's sys.objects /
// information_schema-flavored queries and bracket quoting.
type mssqlDialect struct{}

func NewMSSQL() Dialect { return mssqlDialect{} }

func (mssqlDialect) Name() string     { return "mssql" }
func (mssqlDialect) NativeCase() Case { return CaseLower }

func (d mssqlDialect) Quote(identifier string, preserveCase bool) string {
	if preserveCase || d.IsReservedWord(identifier) {
		return "[" + identifier + "]"
	}
	return FoldCase(d, identifier, false)
}

func (mssqlDialect) IsReservedWord(name string) bool {
	_, ok := mssqlReservedWords[name]
	return ok
}

func (d mssqlDialect) SelectTables(db *sql.DB, schema string) ([]TableInfo, error) {
	rows, err := db.Query(`
		select schema_name(schema_id), name
		from sys.objects
		where type = 'U' and schema_name(schema_id) = @p1
		order by name`, schema)
	if err != nil {
		return nil, fmt.Errorf("mssql select tables: %w", err)
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

func (d mssqlDialect) SelectColumns(db *sql.DB, schema, table string) ([]ColumnInfo, error) {
	const query = `
		select
			s.name,
			o.name,
			c.name,
			t.name,
			coalesce(c.max_length, 0),
			coalesce(c.precision, 0),
			coalesce(c.scale, 0),
			c.is_nullable,
			case when ic.column_id is not null then 1 else 0 end,
			c.column_id
		from sys.columns c
		join sys.objects o on o.object_id = c.object_id
		join sys.schemas s on s.schema_id = o.schema_id
		join sys.types t on t.user_type_id = c.user_type_id
		left join sys.indexes i on i.object_id = o.object_id and i.is_primary_key = 1
		left join sys.index_columns ic on ic.object_id = i.object_id
			and ic.index_id = i.index_id and ic.column_id = c.column_id
		where s.name = @p1 and o.name = @p2
		order by c.column_id`

	rows, err := db.Query(query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("mssql select columns: %w", err)
	}
	defer rows.Close()

	var out []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		var isPK int
		if err := rows.Scan(&ci.Owner, &ci.TableName, &ci.ColumnName, &ci.DataType,
			&ci.DataLength, &ci.DataPrecision, &ci.DataScale, &ci.Nullable, &isPK,
			&ci.Position); err != nil {
			return nil, err
		}
		ci.PrimaryKey = isPK != 0
		out = append(out, ci)
	}
	return out, rows.Err()
}

var mssqlReservedWords = map[string]bool{
	"add": true, "all": true, "alter": true, "and": true, "any": true,
	"as": true, "asc": true, "backup": true, "begin": true, "between": true,
	"break": true, "browse": true, "bulk": true, "by": true, "cascade": true,
	"case": true, "check": true, "checkpoint": true, "close": true,
	"clustered": true, "column": true, "commit": true, "compute": true,
	"constraint": true, "contains": true, "continue": true, "create": true,
	"cross": true, "current": true, "current_date": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "cursor": true,
	"database": true, "dbcc": true, "deallocate": true, "declare": true,
	"default": true, "delete": true, "deny": true, "desc": true, "disk": true,
	"distinct": true, "distributed": true, "double": true, "drop": true,
	"dump": true, "else": true, "end": true, "errlvl": true, "escape": true,
	"except": true, "exec": true, "execute": true, "exists": true, "exit": true,
	"external": true, "fetch": true, "file": true, "fillfactor": true,
	"for": true, "foreign": true, "freetext": true, "from": true, "full": true,
	"function": true, "goto": true, "grant": true, "group": true,
	"having": true, "holdlock": true, "identity": true, "if": true, "in": true,
	"index": true, "inner": true, "insert": true, "intersect": true,
	"into": true, "is": true, "join": true, "key": true, "kill": true,
	"left": true, "like": true, "lineno": true, "load": true, "merge": true,
	"national": true, "nocheck": true, "nonclustered": true, "not": true,
	"null": true, "of": true, "off": true, "offsets": true, "on": true,
	"open": true, "opendatasource": true, "openquery": true, "openrowset": true,
	"openxml": true, "option": true, "or": true, "order": true, "outer": true,
	"over": true, "percent": true, "plan": true, "precision": true,
	"primary": true, "print": true, "proc": true, "procedure": true,
	"public": true, "raiserror": true, "read": true, "readtext": true,
	"reconfigure": true, "references": true, "replication": true,
	"restore": true, "restrict": true, "return": true, "revert": true,
	"revoke": true, "right": true, "rollback": true, "rowcount": true,
	"rowguidcol": true, "rule": true, "save": true, "schema": true,
	"select": true, "session_user": true, "set": true, "setuser": true,
	"shutdown": true, "some": true, "statistics": true, "system_user": true,
	"table": true, "tablesample": true, "textsize": true, "then": true,
	"to": true, "top": true, "tran": true, "transaction": true, "trigger": true,
	"truncate": true, "tsequal": true, "union": true, "unique": true,
	"unpivot": true, "update": true, "updatetext": true, "use": true,
	"user": true, "values": true, "varying": true, "view": true, "waitfor": true,
	"when": true, "where": true, "while": true, "with": true, "writetext": true,
}
