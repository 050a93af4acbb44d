package columnmap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompileAlignsByAlias(t *testing.T) {
	src := []dialect.ColumnInfo{
		{ColumnName: "ID", DataType: "numeric(10,0)", DataPrecision: 10, PrimaryKey: true},
		{ColumnName: "Name", DataType: "varchar(100)"},
		{ColumnName: "LEGACY_ONLY", DataType: "varchar(10)"},
	}
	tgt := []dialect.ColumnInfo{
		{ColumnName: "id", DataType: "numeric(10,0)", DataPrecision: 10, PrimaryKey: true},
		{ColumnName: "name", DataType: "varchar(100)"},
		{ColumnName: "new_only", DataType: "varchar(10)"},
	}

	cm, srcExpr, tgtExpr, err := Compile(1, dialect.NewPostgres(), dialect.NewPostgres(), src, tgt, config.Default(), discardLogger())
	require.NoError(t, err)

	assert.Len(t, cm.Entries, 4) // id, name, legacy_only, new_only
	assert.Equal(t, []string{"id"}, cm.PKAliases())

	assert.Contains(t, srcExpr.PKHashExpr, "MD5(CONCAT_WS(")
	assert.Contains(t, srcExpr.ColumnHashExpr, "MD5(CONCAT_WS(")
	assert.Contains(t, tgtExpr.PKJSONExpr, `"id":"`)
}

func TestCompileUnmatchedColumnExcludedFromHash(t *testing.T) {
	src := []dialect.ColumnInfo{
		{ColumnName: "id", DataType: "int", DataPrecision: 10, PrimaryKey: true},
		{ColumnName: "only_source", DataType: "varchar(10)"},
	}
	tgt := []dialect.ColumnInfo{
		{ColumnName: "id", DataType: "int", DataPrecision: 10, PrimaryKey: true},
	}

	cm, _, tgtExpr, err := Compile(2, dialect.NewPostgres(), dialect.NewPostgres(), src, tgt, config.Default(), discardLogger())
	require.NoError(t, err)

	var found bool
	for _, e := range cm.Entries {
		if e.ColumnAlias == "only_source" {
			found = true
			assert.False(t, e.Hashable())
			assert.True(t, e.Target.IsZero())
		}
	}
	assert.True(t, found)
	assert.NotContains(t, tgtExpr.ColumnHashExpr, "only_source")
}

func TestCompileUnsupportedColumnExcludedFromHash(t *testing.T) {
	src := []dialect.ColumnInfo{
		{ColumnName: "id", DataType: "int", DataPrecision: 10, PrimaryKey: true},
		{ColumnName: "guid", DataType: "uniqueidentifier"},
	}
	tgt := []dialect.ColumnInfo{
		{ColumnName: "id", DataType: "int", DataPrecision: 10, PrimaryKey: true},
		{ColumnName: "guid", DataType: "uniqueidentifier"},
	}

	cm, _, _, err := Compile(3, dialect.NewPostgres(), dialect.NewPostgres(), src, tgt, config.Default(), discardLogger())
	require.NoError(t, err)

	for _, e := range cm.Entries {
		if e.ColumnAlias == "guid" {
			assert.False(t, e.Source.Supported)
			assert.False(t, e.Hashable())
		}
	}
}

func TestCompileNoPrimaryKeyIsError(t *testing.T) {
	src := []dialect.ColumnInfo{{ColumnName: "name", DataType: "varchar(10)"}}
	tgt := []dialect.ColumnInfo{{ColumnName: "name", DataType: "varchar(10)"}}

	_, _, _, err := Compile(4, dialect.NewPostgres(), dialect.NewPostgres(), src, tgt, config.Default(), discardLogger())
	assert.Error(t, err)
}
