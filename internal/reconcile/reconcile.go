// Package reconcile implements C7: the per-table orchestration that
// resolves a table's source/target locations, compiles its ColumnMap,
// spawns the Extractor/Loader pipeline on both sides, executes the
// compare SQL, and records a RunHistory entry. Grounded on the teacher's
// database/concurrent.go errgroup fan-out, generalized from a one-shot
// map into a two-stage producer/consumer pipeline per side.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"pgcompare/internal/columnmap"
	"pgcompare/internal/config"
	"pgcompare/internal/dialect"
	"pgcompare/internal/errs"
	"pgcompare/internal/extract"
	"pgcompare/internal/load"
	"pgcompare/internal/model"
	"pgcompare/internal/observer"
	"pgcompare/internal/queue"
	"pgcompare/internal/repo"
)

// Repo is the subset of *repo.Repo the Reconciler drives directly.
type Repo interface {
	TruncateStaging(ctx context.Context, side model.Side, tid int64) error
	InsertBatch(ctx context.Context, b model.Batch) (int64, error)
	Compare(ctx context.Context, tid int64) (equal int64, findings []repo.CompareResult, err error)
	SaveFindings(ctx context.Context, tid, batchNbr int64, results []repo.CompareResult) error
	SaveRunHistory(ctx context.Context, h model.RunHistory) error
	LoadTableMap(ctx context.Context, tid int64) (source, target model.TableMap, err error)
	StagedRowCount(ctx context.Context, side model.Side, tid int64) (int64, error)
	Vacuum(ctx context.Context) error
}

var _ Repo = (*repo.Repo)(nil)

// Reconciler runs compare passes over TableEntry values. SourceDB and
// TargetDB are handed in already-open (connection-pool construction is
// an external collaborator's concern per spec §1); Dialect names come
// from cfg.Source.Dialect / cfg.Target.Dialect.
type Reconciler struct {
	Repo     Repo
	SourceDB *sql.DB
	TargetDB *sql.DB
	Cfg      config.Config
	Logger   *slog.Logger
}

// Run executes one full compare pass over entry and returns its
// RunHistory. The history is saved to the repository only when the
// compare completes; a failed pass returns it with StatusFailed unsaved.
func (rc *Reconciler) Run(ctx context.Context, entry model.TableEntry) (model.RunHistory, error) {
	hist := model.RunHistory{TID: entry.TID, BatchNbr: entry.BatchNbr, Action: "compare", Start: time.Now()}

	sourceMap, targetMap, err := rc.Repo.LoadTableMap(ctx, entry.TID)
	if err != nil {
		return rc.fail(hist, fmt.Errorf("load table map: %w", err))
	}

	sourceDialect, err := dialect.Get(rc.Cfg.Source.Dialect)
	if err != nil {
		return rc.fail(hist, &errs.ConfigError{Option: "source-type", Reason: err.Error()})
	}
	targetDialect, err := dialect.Get(rc.Cfg.Target.Dialect)
	if err != nil {
		return rc.fail(hist, &errs.ConfigError{Option: "target-type", Reason: err.Error()})
	}

	sourceCols, err := sourceDialect.SelectColumns(rc.SourceDB, sourceMap.SchemaName, sourceMap.TableName)
	if err != nil {
		return rc.fail(hist, errs.NewConnectError("source", err))
	}
	targetCols, err := targetDialect.SelectColumns(rc.TargetDB, targetMap.SchemaName, targetMap.TableName)
	if err != nil {
		return rc.fail(hist, errs.NewConnectError("target", err))
	}

	cm, srcExpr, tgtExpr, err := columnmap.Compile(entry.TID, sourceDialect, targetDialect, sourceCols, targetCols, rc.Cfg, rc.Logger)
	if err != nil {
		return rc.fail(hist, &errs.MapError{TID: entry.TID, Reason: err.Error()})
	}
	_ = cm

	if err := rc.Repo.TruncateStaging(ctx, model.SideSource, entry.TID); err != nil {
		return rc.fail(hist, err)
	}
	if err := rc.Repo.TruncateStaging(ctx, model.SideTarget, entry.TID); err != nil {
		return rc.fail(hist, err)
	}

	shardCount := entry.ParallelDegree
	if shardCount < 1 {
		shardCount = 1
	}

	if err := rc.runPipeline(ctx, model.SideSource, sourceDialect, rc.SourceDB, sourceMap, srcExpr, shardCount); err != nil {
		return rc.fail(hist, err)
	}
	if err := rc.runPipeline(ctx, model.SideTarget, targetDialect, rc.TargetDB, targetMap, tgtExpr, shardCount); err != nil {
		return rc.fail(hist, err)
	}

	equal, findings, err := rc.Repo.Compare(ctx, entry.TID)
	if err != nil {
		return rc.fail(hist, err)
	}
	compareResults := make([]repo.CompareResult, len(findings))
	copy(compareResults, findings)
	if err := rc.Repo.SaveFindings(ctx, entry.TID, entry.BatchNbr, compareResults); err != nil {
		return rc.fail(hist, err)
	}

	hist.Equal = equal
	tallyFindings(&hist, findings)
	hist.Status = model.StatusCompared
	hist.End = time.Now()

	if err := rc.Repo.SaveRunHistory(ctx, hist); err != nil {
		return hist, err
	}
	return hist, nil
}

// observerInterval is how often the Observer samples staged row counts
// and, when enabled, runs VACUUM (spec §4.9).
const observerInterval = 5 * time.Second

// runPipeline spawns shardCount Extractors and cfg.LoaderThreads Loaders
// for one side, connected by a single per-side queue, and waits for both
// tiers to reach completion (spec §4.6's barrier). A single Observer runs
// alongside them for the duration of the side's pipeline, providing the
// live throttle state Extractor.Throttle polls and, when observer-vacuum
// is enabled, periodically vacuuming the staging tables.
func (rc *Reconciler) runPipeline(ctx context.Context, side model.Side, d dialect.Dialect, db *sql.DB, tm model.TableMap, expr columnmap.Expressions, shardCount int) error {
	obs := observer.New(rc.Repo, tm.TID, rc.Cfg, rc.Logger)
	throttle := extract.NewThrottle(rc.Cfg, obs.Over)

	obsCtx, obsCancel := context.WithCancel(ctx)
	defer obsCancel()
	go obs.Run(obsCtx, observerInterval)

	eg, egCtx := errgroup.WithContext(ctx)

	// loader-threads=0 is the degraded diagnostic mode spec §5 names:
	// no queue, no Loader tier — each Extractor writes straight to
	// staging through the same repository insert path a Loader would use.
	degraded := rc.Cfg.LoaderThreads < 1
	if degraded {
		rc.Logger.Warn("loader-threads=0: extractors writing directly to staging", "side", side)
	}

	var q *queue.Queue
	if !degraded {
		q = queue.New(rc.Cfg.MessageQueueSize)
	}

	for shard := 0; shard < shardCount; shard++ {
		x := &extract.Extractor{
			Side: side, Shard: shard, ShardCount: shardCount,
			Dialect: d, DB: db, TableMap: tm, Expr: expr,
			BatchSize: rc.Cfg.BatchFetchSize, Queue: q, Logger: rc.Logger,
			Throttle: throttle, Sort: rc.Cfg.DatabaseSort,
		}
		if degraded {
			x.Direct = rc.Repo
		}
		eg.Go(func() error { return x.Run(egCtx) })
	}

	if !degraded {
		completion := load.NewCompletion(shardCount)
		for i := 0; i < rc.Cfg.LoaderThreads; i++ {
			l := &load.Loader{Side: side, Completion: completion, Queue: q, Repo: rc.Repo, Logger: rc.Logger}
			// Every Loader shares one Completion: a sentinel is consumed
			// by whichever Loader happens to poll it, so the shards-done
			// count must be shared rather than tracked per-Loader.
			eg.Go(func() error { return l.Run(egCtx) })
		}
	}

	return eg.Wait()
}

// tallyFindings classifies each CompareResult into RunHistory's three
// non-equal buckets (spec §4.7 invariant 2: every staged row falls into
// exactly one of equal/not_equal/missing_source/missing_target).
func tallyFindings(hist *model.RunHistory, findings []repo.CompareResult) {
	for _, f := range findings {
		switch f.Kind {
		case "not_equal":
			hist.NotEqual++
		case "missing_target":
			hist.MissingTgt++
		case "missing_source":
			hist.MissingSrc++
		}
	}
}

func (rc *Reconciler) fail(hist model.RunHistory, err error) (model.RunHistory, error) {
	hist.Status = model.StatusFailed
	hist.End = time.Now()
	rc.Logger.Error("reconcile failed", "tid", hist.TID, "error", err)
	return hist, err
}
