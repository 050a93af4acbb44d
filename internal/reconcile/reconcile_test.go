package reconcile

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pgcompare/internal/columnmap"
	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/model"
	"pgcompare/internal/repo"
)

// emptyRowsDriver is a fake database/sql driver whose queries always
// return zero rows, grounded on the teacher's database/dry_run.go
// technique of registering a throwaway driver.Driver per test to
// exercise SQL-issuing code without a live connection.
type emptyRowsDriver struct{}

func (emptyRowsDriver) Open(name string) (driver.Conn, error) { return emptyConn{}, nil }

type emptyConn struct{}

func (emptyConn) Prepare(query string) (driver.Stmt, error) { return emptyStmt{}, nil }
func (emptyConn) Close() error                              { return nil }
func (emptyConn) Begin() (driver.Tx, error)                  { return emptyTx{}, nil }

type emptyTx struct{}

func (emptyTx) Commit() error   { return nil }
func (emptyTx) Rollback() error { return nil }

type emptyStmt struct{}

func (emptyStmt) Close() error                                    { return nil }
func (emptyStmt) NumInput() int                                   { return -1 }
func (emptyStmt) Exec(args []driver.Value) (driver.Result, error) { return driver.ResultNoRows, nil }
func (emptyStmt) Query(args []driver.Value) (driver.Rows, error)  { return emptyRows{}, nil }

type emptyRows struct{}

func (emptyRows) Columns() []string              { return []string{"pk_hash", "column_hash", "pk"} }
func (emptyRows) Close() error                    { return nil }
func (emptyRows) Next(dest []driver.Value) error { return io.EOF }

var registerOnce sync.Once

func openEmptyDB(t *testing.T) *sql.DB {
	registerOnce.Do(func() { sql.Register("reconcile-empty-fake", emptyRowsDriver{}) })
	db, err := sql.Open("reconcile-empty-fake", "fake")
	require.NoError(t, err)
	return db
}

type fakeRepo struct {
	mu         sync.Mutex
	truncated  []model.Side
	inserted   int64
	findings   []repo.CompareResult
	savedHist  model.RunHistory
	savedFinds int
}

func (f *fakeRepo) TruncateStaging(ctx context.Context, side model.Side, tid int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncated = append(f.truncated, side)
	return nil
}

func (f *fakeRepo) InsertBatch(ctx context.Context, b model.Batch) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(b.Rows))
	f.inserted += n
	return n, nil
}

func (f *fakeRepo) Compare(ctx context.Context, tid int64) (int64, []repo.CompareResult, error) {
	return 5, f.findings, nil
}

func (f *fakeRepo) SaveFindings(ctx context.Context, tid, batchNbr int64, results []repo.CompareResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedFinds = len(results)
	return nil
}

func (f *fakeRepo) SaveRunHistory(ctx context.Context, h model.RunHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedHist = h
	return nil
}

func (f *fakeRepo) LoadTableMap(ctx context.Context, tid int64) (model.TableMap, model.TableMap, error) {
	src := model.TableMap{TID: tid, Origin: model.SideSource, SchemaName: "public", TableName: "orders"}
	tgt := model.TableMap{TID: tid, Origin: model.SideTarget, SchemaName: "public", TableName: "orders"}
	return src, tgt, nil
}

func (f *fakeRepo) StagedRowCount(ctx context.Context, side model.Side, tid int64) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) Vacuum(ctx context.Context) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTallyFindingsClassifiesEachKind(t *testing.T) {
	hist := model.RunHistory{}
	tallyFindings(&hist, []repo.CompareResult{
		{Kind: "not_equal"},
		{Kind: "not_equal"},
		{Kind: "missing_target"},
		{Kind: "missing_source"},
	})
	assert.EqualValues(t, 2, hist.NotEqual)
	assert.EqualValues(t, 1, hist.MissingTgt)
	assert.EqualValues(t, 1, hist.MissingSrc)
}

func TestRunPipelineDrainsWithNoRows(t *testing.T) {
	db := openEmptyDB(t)
	defer db.Close()

	fr := &fakeRepo{}
	cfg := config.Default()
	cfg.LoaderThreads = 2
	cfg.ObserverThrottle = false

	rc := &Reconciler{Repo: fr, Cfg: cfg, Logger: discardLogger()}
	tm := model.TableMap{TID: 1, SchemaName: "public", TableName: "orders"}
	expr := columnmap.Expressions{PKHashExpr: "x", ColumnHashExpr: "y", PKJSONExpr: "z"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := rc.runPipeline(ctx, model.SideSource, dialect.NewPostgres(), db, tm, expr, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 0, fr.inserted)
}

func TestReconcilerRunFailsWhenSchemaHasNoMappedColumns(t *testing.T) {
	// With the fake driver returning zero rows, SelectColumns sees no
	// columns on either side, so the column-map compiler correctly
	// rejects the table for lacking a primary key (errs.MapError) — this
	// exercises Reconciler.Run's fail() path end to end.
	srcDB := openEmptyDB(t)
	tgtDB := openEmptyDB(t)
	defer srcDB.Close()
	defer tgtDB.Close()

	fr := &fakeRepo{}
	cfg := config.Default()
	cfg.Source.Dialect = "postgres"
	cfg.Target.Dialect = "postgres"

	rc := &Reconciler{Repo: fr, SourceDB: srcDB, TargetDB: tgtDB, Cfg: cfg, Logger: discardLogger()}
	entry := model.TableEntry{TID: 1, ParallelDegree: 1, BatchNbr: 7}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hist, err := rc.Run(ctx, entry)
	require.Error(t, err)
	assert.Equal(t, model.StatusFailed, hist.Status)
	assert.Zero(t, fr.savedFinds)
}
