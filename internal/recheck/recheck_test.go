package recheck

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcompare/internal/dialect"
	"pgcompare/internal/model"
)

func TestClassifyStillMissingWhenEitherSideAbsent(t *testing.T) {
	assert.Equal(t, model.OutcomeStillMissing, classify("a", "a", false, true))
	assert.Equal(t, model.OutcomeStillMissing, classify("a", "a", true, false))
}

func TestClassifyResolvedWhenHashesNowMatch(t *testing.T) {
	assert.Equal(t, model.OutcomeResolved, classify("abc", "abc", true, true))
}

func TestClassifyConfirmedWhenHashesStillDiffer(t *testing.T) {
	assert.Equal(t, model.OutcomeConfirmed, classify("abc", "def", true, true))
}

func TestParsePKJSONRoundTrips(t *testing.T) {
	vals, err := parsePKJSON(`{"id": "42", "region": "us"}`)
	require.NoError(t, err)
	assert.Equal(t, "42", vals["id"])
	assert.Equal(t, "us", vals["region"])
}

func TestParsePKJSONRejectsMalformed(t *testing.T) {
	_, err := parsePKJSON(`not json`)
	assert.Error(t, err)
}

func TestPlaceholderByDialect(t *testing.T) {
	assert.Equal(t, "$3", placeholder(dialect.NewPostgres(), 3))
	assert.Equal(t, ":3", placeholder(dialect.NewOracle(), 3))
	assert.Equal(t, "@p3", placeholder(dialect.NewMSSQL(), 3))
	assert.Equal(t, "?", placeholder(dialect.NewMySQL(), 3))
}

// captureQueryDriver is a fake database/sql driver, grounded on the same
// throwaway driver.Driver registration technique reconcile_test.go uses,
// that records the last query text issued instead of executing anything.
type captureQueryDriver struct{ lastQuery *string }

func (d captureQueryDriver) Open(name string) (driver.Conn, error) {
	return captureConn{lastQuery: d.lastQuery}, nil
}

type captureConn struct{ lastQuery *string }

func (c captureConn) Prepare(query string) (driver.Stmt, error) {
	*c.lastQuery = query
	return captureStmt{}, nil
}
func (captureConn) Close() error              { return nil }
func (captureConn) Begin() (driver.Tx, error) { return captureTx{}, nil }

type captureTx struct{}

func (captureTx) Commit() error   { return nil }
func (captureTx) Rollback() error { return nil }

type captureStmt struct{}

func (captureStmt) Close() error                                    { return nil }
func (captureStmt) NumInput() int                                   { return -1 }
func (captureStmt) Exec(args []driver.Value) (driver.Result, error) { return driver.ResultNoRows, nil }
func (captureStmt) Query(args []driver.Value) (driver.Rows, error)  { return captureRows{}, nil }

type captureRows struct{}

func (captureRows) Columns() []string             { return nil }
func (captureRows) Close() error                   { return nil }
func (captureRows) Next(dest []driver.Value) error { return io.EOF }

var captureRegisterOnce sync.Once

func openCaptureDB(t *testing.T, lastQuery *string) *sql.DB {
	captureRegisterOnce.Do(func() {
		sql.Register("recheck-capture-fake", captureQueryDriver{lastQuery: lastQuery})
	})
	db, err := sql.Open("recheck-capture-fake", "fake")
	require.NoError(t, err)
	return db
}

func TestFingerprintRowSelectsOnlyHashableColumns(t *testing.T) {
	cm := model.ColumnMap{Entries: []model.ColumnMapEntry{
		{
			ColumnAlias: "id",
			Source:      model.ColumnSide{ColumnName: "id", PrimaryKey: true, Supported: true, ValueExpression: "id"},
			Target:      model.ColumnSide{ColumnName: "id", PrimaryKey: true, Supported: true, ValueExpression: "id"},
		},
		{
			ColumnAlias: "name",
			Source:      model.ColumnSide{ColumnName: "name", Supported: true, ValueExpression: "name_expr"},
			Target:      model.ColumnSide{ColumnName: "name", Supported: true, ValueExpression: "name_expr"},
		},
		{
			// unmatched on target: Hashable() is false even though the
			// source side is present and supported.
			ColumnAlias: "legacy_col",
			Source:      model.ColumnSide{ColumnName: "legacy_col", Supported: true, ValueExpression: "legacy_expr"},
		},
	}}

	var lastQuery string
	db := openCaptureDB(t, &lastQuery)
	defer db.Close()

	rc := &Rechecker{
		SourceDB:      db,
		SourceDialect: dialect.NewPostgres(),
		SourceMap:     model.TableMap{SchemaName: "public", TableName: "orders"},
		ColumnMap:     cm,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, _, err := rc.fingerprintRow(context.Background(), db, dialect.NewPostgres(), rc.SourceMap, model.SideSource, map[string]string{"id": "1"})
	require.NoError(t, err)

	assert.Contains(t, lastQuery, "name_expr")
	assert.NotContains(t, lastQuery, "legacy_expr")
}
