// Package observer implements C9: the staged-row watermark that drives
// Extractor backpressure, and the optional periodic VACUUM of the
// staging tables. Grounded on the teacher's polling-loop style in
// database/concurrent.go, adapted from a one-shot fan-out into a
// long-lived ticker.
package observer

import (
	"context"
	"log/slog"
	"time"

	"pgcompare/internal/config"
	"pgcompare/internal/model"
)

// Repo is the subset of *repo.Repo the Observer needs.
type Repo interface {
	StagedRowCount(ctx context.Context, side model.Side, tid int64) (int64, error)
	Vacuum(ctx context.Context) error
}

// Observer periodically samples a tid's staged row counts and exposes
// Over, which Extractor.Throttle polls before enqueuing each batch.
type Observer struct {
	Repo   Repo
	TID    int64
	Cfg    config.Config
	Logger *slog.Logger

	lastTotal int64
	over      bool // sticky until the watermark clears to avoid flapping
}

// New constructs an Observer for one table's run.
func New(r Repo, tid int64, cfg config.Config, logger *slog.Logger) *Observer {
	return &Observer{Repo: r, TID: tid, Cfg: cfg, Logger: logger}
}

// Over reports whether the combined staged row count across both sides
// is currently over the watermark; Extractor.flush blocks on this before
// enqueuing another batch when observer-throttle is enabled. The flag is
// sticky: once set at observer-throttle-size, it only clears once the
// Loaders have drained staging back below 50% of that size (spec §4.9),
// so a count oscillating right at the watermark doesn't flap the
// throttle on and off every sample.
func (o *Observer) Over(ctx context.Context) (bool, error) {
	src, err := o.Repo.StagedRowCount(ctx, model.SideSource, o.TID)
	if err != nil {
		return false, err
	}
	tgt, err := o.Repo.StagedRowCount(ctx, model.SideTarget, o.TID)
	if err != nil {
		return false, err
	}
	o.lastTotal = src + tgt

	switch {
	case o.lastTotal >= o.Cfg.ObserverThrottleSize:
		o.over = true
	case o.lastTotal < o.Cfg.ObserverThrottleSize/2:
		o.over = false
	}
	return o.over, nil
}

// Run ticks every interval until ctx is done, logging the staged row
// watermark and, when observer-vacuum is enabled, running VACUUM each
// tick. Intended to run in its own goroutine alongside a table's
// Extractors/Loaders.
func (o *Observer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			over, err := o.Over(ctx)
			if err != nil {
				o.Logger.Warn("observer sample failed", "tid", o.TID, "error", err)
				continue
			}
			o.Logger.Debug("observer sample", "tid", o.TID, "staged_rows", o.lastTotal, "throttled", over)

			if o.Cfg.ObserverVacuum {
				if err := o.Repo.Vacuum(ctx); err != nil {
					o.Logger.Warn("observer vacuum failed", "tid", o.TID, "error", err)
				}
			}
		}
	}
}
