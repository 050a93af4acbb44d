// Package load implements C6: polling a side's queue and appending
// arriving batches to the staging table, until every Extractor shard has
// signaled completion and the queue has drained. Grounded on the
// teacher's batched-commit style in database/postgres (explicit
// commit-per-batch rather than one long transaction) and on repo's
// pgx CopyFrom ingest path.
package load

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"pgcompare/internal/errs"
	"pgcompare/internal/model"
	"pgcompare/internal/queue"
	"pgcompare/internal/repo"
)

// pollTimeout is the Poll wait (spec §4.6).
const pollTimeout = 500 * time.Millisecond

// Inserter is the subset of *repo.Repo a Loader needs; an interface so
// tests can substitute a fake without a live Postgres connection.
type Inserter interface {
	InsertBatch(ctx context.Context, b model.Batch) (int64, error)
}

var _ Inserter = (*repo.Repo)(nil)

// Completion is shared by every Loader draining one side's queue: each
// sentinel batch is delivered to exactly one Loader goroutine (channel
// receive consumes it), so the count of shards-done must live outside
// any single Loader to let loader-threads > 1 agree on when the side has
// finished.
type Completion struct {
	done  int64
	total int64
}

// NewCompletion builds a tracker for a side expecting `total` Extractor
// shards to each send one sentinel.
func NewCompletion(total int) *Completion {
	return &Completion{total: int64(total)}
}

func (c *Completion) markShardDone() { atomic.AddInt64(&c.done, 1) }

func (c *Completion) allShardsDone() bool {
	return atomic.LoadInt64(&c.done) >= c.total
}

// Loader drains one side's queue for one table. Multiple Loaders for the
// same side (loader-threads > 1) share one Completion and one Queue.
type Loader struct {
	Side       model.Side
	Completion *Completion
	Queue      *queue.Queue
	Repo       Inserter
	Logger     *slog.Logger

	rowsLoaded int64
}

// RowsLoaded reports how many rows this Loader has committed so far.
func (l *Loader) RowsLoaded() int64 { return atomic.LoadInt64(&l.rowsLoaded) }

// Run polls until every expected shard's sentinel has arrived and the
// queue is empty, appending every non-sentinel batch to staging along
// the way. A failed batch insert is logged and dropped, not propagated:
// spec §4.6/§7 treats a lost batch as indistinguishable from missing
// rows, and a rerun is always safe. Run only returns an error when the
// context is canceled.
func (l *Loader) Run(ctx context.Context) error {
	for {
		if l.Completion.allShardsDone() && l.Queue.Len() == 0 {
			l.Logger.Info("loader complete", "side", l.Side, "rows", l.RowsLoaded())
			return nil
		}

		select {
		case <-ctx.Done():
			return errs.NewLoadError(string(l.Side), ctx.Err())
		default:
		}

		batch, ok := l.Queue.Poll(pollTimeout)
		if !ok {
			continue
		}
		if batch.Sentinel() {
			l.Completion.markShardDone()
			continue
		}

		n, err := l.Repo.InsertBatch(ctx, batch)
		if err != nil {
			l.Logger.Error("batch insert failed, dropping batch", "side", l.Side, "shard", batch.Shard, "err", err)
			continue
		}
		atomic.AddInt64(&l.rowsLoaded, n)
	}
}
