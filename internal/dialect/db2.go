package dialect

import (
	"database/sql"
	"fmt"
)

// db2Dialect targets DB2's SYSCAT catalog views. Like Oracle, no real DB2
// driver is available in the retrieved corpus (no ibm_db); the catalog
// queries run against whatever *sql.DB the out-of-scope connection-pool
// collaborator produces. The unit tests cover its name, case folding and
// quoting, not the catalog queries.
type db2Dialect struct{}

func NewDB2() Dialect { return db2Dialect{} }

func (db2Dialect) Name() string     { return "db2" }
func (db2Dialect) NativeCase() Case { return CaseUpper }

func (d db2Dialect) Quote(identifier string, preserveCase bool) string {
	return QuoteIfNeeded(d, `"`, identifier, preserveCase)
}

func (db2Dialect) IsReservedWord(name string) bool {
	_, ok := db2ReservedWords[name]
	return ok
}

func (d db2Dialect) SelectTables(db *sql.DB, schema string) ([]TableInfo, error) {
	rows, err := db.Query(`
		select tabschema, tabname
		from syscat.tables
		where tabschema = ? and type = 'T'
		order by tabname`, schema)
	if err != nil {
		return nil, fmt.Errorf("db2 select tables: %w", err)
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

func (d db2Dialect) SelectColumns(db *sql.DB, schema, table string) ([]ColumnInfo, error) {
	const query = `
		select
			c.tabschema,
			c.tabname,
			c.colname,
			c.typename,
			coalesce(c.length, 0),
			coalesce(c.length, 0),
			coalesce(c.scale, 0),
			(c.nulls = 'Y'),
			case when pk.colname is not null then 1 else 0 end,
			c.colno
		from syscat.columns c
		left join (
			select kcu.tabschema, kcu.tabname, kcu.colname
			from syscat.keycoluse kcu
			join syscat.tabconst tc
				on tc.tabschema = kcu.tabschema
				and tc.constname = kcu.constname
				and tc.type = 'P'
		) pk on pk.tabschema = c.tabschema
			and pk.tabname = c.tabname
			and pk.colname = c.colname
		where c.tabschema = ? and c.tabname = ?
		order by c.colno`

	rows, err := db.Query(query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("db2 select columns: %w", err)
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

var db2ReservedWords = map[string]bool{
	"add": true, "all": true, "alter": true, "and": true, "any": true,
	"as": true, "asc": true, "between": true, "by": true, "case": true,
	"check": true, "column": true, "constraint": true, "create": true,
	"current": true, "database": true, "default": true, "delete": true,
	"desc": true, "distinct": true, "drop": true, "else": true, "exists": true,
	"fetch": true, "for": true, "foreign": true, "from": true, "full": true,
	"function": true, "grant": true, "group": true, "having": true, "in": true,
	"index": true, "inner": true, "insert": true, "into": true, "is": true,
	"join": true, "key": true, "left": true, "like": true, "not": true,
	"null": true, "on": true, "or": true, "order": true, "outer": true,
	"primary": true, "references": true, "right": true, "select": true,
	"set": true, "table": true, "then": true, "to": true, "union": true,
	"unique": true, "update": true, "user": true, "using": true, "values": true,
	"view": true, "when": true, "where": true, "with": true,
}
