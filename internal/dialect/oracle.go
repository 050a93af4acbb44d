package dialect

import (
	"database/sql"
	"fmt"
)

// oracleDialect's metadata query targets ALL_TAB_COLUMNS / ALL_CONSTRAINTS,
// the catalog views every production Oracle reconciliation source would
// query. No Oracle driver (e.g. godror) is vendored in this module — per
// spec §1 connection-pool construction is an external collaborator, so
// SelectColumns/SelectTables only need an already-open *sql.DB, which the
// collaborator is responsible for producing with whatever driver it links.
type oracleDialect struct{}

func NewOracle() Dialect { return oracleDialect{} }

func (oracleDialect) Name() string     { return "oracle" }
func (oracleDialect) NativeCase() Case { return CaseUpper }

func (d oracleDialect) Quote(identifier string, preserveCase bool) string {
	return QuoteIfNeeded(d, `"`, identifier, preserveCase)
}

func (oracleDialect) IsReservedWord(name string) bool {
	_, ok := oracleReservedWords[name]
	return ok
}

func (d oracleDialect) SelectTables(db *sql.DB, schema string) ([]TableInfo, error) {
	rows, err := db.Query(`
		select owner, table_name
		from all_tables
		where owner = :1
		order by table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("oracle select tables: %w", err)
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

func (d oracleDialect) SelectColumns(db *sql.DB, schema, table string) ([]ColumnInfo, error) {
	const query = `
		select
			c.owner,
			c.table_name,
			c.column_name,
			c.data_type,
			coalesce(c.data_length, 0),
			coalesce(c.data_precision, 0),
			coalesce(c.data_scale, 0),
			(c.nullable = 'Y'),
			case when pk.column_name is not null then 1 else 0 end,
			c.column_id
		from all_tab_columns c
		left join (
			select acc.owner, acc.table_name, acc.column_name
			from all_cons_columns acc
			join all_constraints ac
				on ac.owner = acc.owner
				and ac.constraint_name = acc.constraint_name
				and ac.constraint_type = 'P'
		) pk on pk.owner = c.owner
			and pk.table_name = c.table_name
			and pk.column_name = c.column_name
		where c.owner = :1 and c.table_name = :2
		order by c.column_id`

	rows, err := db.Query(query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("oracle select columns: %w", err)
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

// oracleReservedWords borrows the same representative-subset approach the
// xorm dialect package in the retrieved corpus uses for its (much longer)
// Oracle reserved-word table.
var oracleReservedWords = map[string]bool{
	"access": true, "add": true, "all": true, "alter": true, "and": true,
	"any": true, "as": true, "asc": true, "audit": true, "between": true,
	"by": true, "char": true, "check": true, "cluster": true, "column": true,
	"comment": true, "compress": true, "connect": true, "create": true,
	"current": true, "date": true, "decimal": true, "default": true,
	"delete": true, "desc": true, "distinct": true, "drop": true, "else": true,
	"exclusive": true, "exists": true, "file": true, "float": true,
	"for": true, "from": true, "grant": true, "group": true, "having": true,
	"identified": true, "immediate": true, "in": true, "increment": true,
	"index": true, "initial": true, "insert": true, "integer": true,
	"intersect": true, "into": true, "is": true, "level": true, "like": true,
	"lock": true, "long": true, "maxextents": true, "minus": true,
	"mode": true, "modify": true, "noaudit": true, "nocompress": true,
	"not": true, "nowait": true, "null": true, "number": true, "of": true,
	"offline": true, "on": true, "online": true, "option": true, "or": true,
	"order": true, "pctfree": true, "prior": true, "privileges": true,
	"public": true, "raw": true, "rename": true, "resource": true,
	"revoke": true, "row": true, "rowid": true, "rownum": true, "rows": true,
	"select": true, "session": true, "set": true, "share": true, "size": true,
	"smallint": true, "start": true, "successful": true, "synonym": true,
	"sysdate": true, "table": true, "then": true, "to": true, "trigger": true,
	"uid": true, "union": true, "unique": true, "update": true, "user": true,
	"validate": true, "values": true, "varchar": true, "varchar2": true,
	"view": true, "whenever": true, "where": true, "with": true,
}
