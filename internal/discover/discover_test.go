package discover

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/model"
)

func TestLoadBootstrapParsesYAMLByAlias(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bootstrap.yaml")
	const yamlDoc = `
- alias: Orders
  table_filter: "status = 'ACTIVE'"
  parallel_degree: 4
  batch_nbr: 7
- alias: customers
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	b, err := LoadBootstrap(path)
	require.NoError(t, err)

	require.Contains(t, b, "orders")
	assert.Equal(t, "status = 'ACTIVE'", b["orders"].TableFilter)
	assert.Equal(t, 4, b["orders"].ParallelDegree)
	assert.EqualValues(t, 7, b["orders"].BatchNbr)
	require.Contains(t, b, "customers")
}

func TestLoadBootstrapRejectsMissingFile(t *testing.T) {
	_, err := LoadBootstrap(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// fakeDialect ignores its *sql.DB argument entirely and returns canned
// catalog data, so discover's orchestration can be tested without a live
// connection.
type fakeDialect struct {
	tables  map[string][]dialect.TableInfo
	columns map[string][]dialect.ColumnInfo
}

func (f fakeDialect) Name() string                             { return "fake" }
func (f fakeDialect) NativeCase() dialect.Case                  { return dialect.CaseLower }
func (f fakeDialect) Quote(name string, preserve bool) string   { return name }
func (f fakeDialect) IsReservedWord(name string) bool           { return false }
func (f fakeDialect) SelectTables(db *sql.DB, schema string) ([]dialect.TableInfo, error) {
	return f.tables[schema], nil
}
func (f fakeDialect) SelectColumns(db *sql.DB, schema, table string) ([]dialect.ColumnInfo, error) {
	return f.columns[schema+"."+table], nil
}

type fakeRepo struct {
	entries    []model.TableEntry
	tableMaps  int
	columnMaps int

	lastSourceMap, lastTargetMap model.TableMap
}

func (f *fakeRepo) SaveTableEntry(ctx context.Context, e model.TableEntry) error {
	f.entries = append(f.entries, e)
	return nil
}
func (f *fakeRepo) SaveTableMap(ctx context.Context, source, target model.TableMap) error {
	f.tableMaps++
	f.lastSourceMap, f.lastTargetMap = source, target
	return nil
}
func (f *fakeRepo) SaveColumnMap(ctx context.Context, cm model.ColumnMap) error {
	f.columnMaps++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pkCol(name string) dialect.ColumnInfo {
	return dialect.ColumnInfo{ColumnName: name, DataType: "int", DataPrecision: 10, PrimaryKey: true}
}

func TestDiscoverRunSkipsOneSidedTables(t *testing.T) {
	src := fakeDialect{
		tables: map[string][]dialect.TableInfo{
			"public": {{Owner: "public", TableName: "orders"}, {Owner: "public", TableName: "source_only"}},
		},
		columns: map[string][]dialect.ColumnInfo{
			"public.orders":      {pkCol("id")},
			"public.source_only": {pkCol("id")},
		},
	}
	tgt := fakeDialect{
		tables: map[string][]dialect.TableInfo{
			"public": {{Owner: "public", TableName: "orders"}, {Owner: "public", TableName: "target_only"}},
		},
		columns: map[string][]dialect.ColumnInfo{
			"public.orders":      {pkCol("id")},
			"public.target_only": {pkCol("id")},
		},
	}

	fr := &fakeRepo{}
	d := &Discoverer{
		Repo: fr, SourceDialect: src, TargetDialect: tgt,
		SourceSchema: "public", TargetSchema: "public",
		Project: 1, Cfg: config.Default(), Logger: discardLogger(),
	}

	next := int64(0)
	entries, err := d.Run(context.Background(), func() int64 { next++; return next })
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "orders", entries[0].Alias)
	assert.Equal(t, 1, fr.tableMaps)
	assert.Equal(t, 1, fr.columnMaps)
}

func TestDiscoverAppliesBootstrapOverrides(t *testing.T) {
	src := fakeDialect{
		tables:  map[string][]dialect.TableInfo{"public": {{Owner: "public", TableName: "orders"}}},
		columns: map[string][]dialect.ColumnInfo{"public.orders": {pkCol("id")}},
	}
	tgt := fakeDialect{
		tables:  map[string][]dialect.TableInfo{"public": {{Owner: "public", TableName: "orders"}}},
		columns: map[string][]dialect.ColumnInfo{"public.orders": {pkCol("id")}},
	}

	fr := &fakeRepo{}
	d := &Discoverer{
		Repo: fr, SourceDialect: src, TargetDialect: tgt,
		SourceSchema: "public", TargetSchema: "public",
		Project: 1, Cfg: config.Default(), Logger: discardLogger(),
		Bootstrap: Bootstrap{
			"orders": {Alias: "orders", TableFilter: "status = 'ACTIVE'", ParallelDegree: 4, BatchNbr: 7},
		},
	}

	entries, err := d.Run(context.Background(), func() int64 { return 1 })
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, 4, entries[0].ParallelDegree)
	assert.EqualValues(t, 7, entries[0].BatchNbr)
	assert.Equal(t, "status = 'ACTIVE'", fr.lastSourceMap.TableFilter)
	assert.Equal(t, "status = 'ACTIVE'", fr.lastTargetMap.TableFilter)
}

func TestDiscoverRunSkipsTableWithNoSharedPrimaryKey(t *testing.T) {
	src := fakeDialect{
		tables:  map[string][]dialect.TableInfo{"public": {{Owner: "public", TableName: "logs"}}},
		columns: map[string][]dialect.ColumnInfo{"public.logs": {{ColumnName: "msg", DataType: "varchar(10)"}}},
	}
	tgt := fakeDialect{
		tables:  map[string][]dialect.TableInfo{"public": {{Owner: "public", TableName: "logs"}}},
		columns: map[string][]dialect.ColumnInfo{"public.logs": {{ColumnName: "msg", DataType: "varchar(10)"}}},
	}

	fr := &fakeRepo{}
	d := &Discoverer{
		Repo: fr, SourceDialect: src, TargetDialect: tgt,
		SourceSchema: "public", TargetSchema: "public",
		Project: 1, Cfg: config.Default(), Logger: discardLogger(),
	}

	entries, err := d.Run(context.Background(), func() int64 { return 1 })
	require.NoError(t, err)
	assert.Empty(t, entries)
}
