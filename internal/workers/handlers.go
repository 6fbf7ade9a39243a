package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/archwatch/sentinel/internal/queue"
)

// pipelineBatchLimit bounds how many pending items one
// process_pending_items tick drains, so a backlog spike doesn't starve
// the consumer loop's ability to notice a shutdown signal.
const pipelineBatchLimit = 200

// ProcessingHandlers returns the dispatch table for the processing
// route: pipeline ingestion only, kept on its own route/consumer so a
// slow LLM call never delays the maintenance jobs on the default
// route.
func ProcessingHandlers(deps Deps) map[queue.JobType]Handler {
	return map[queue.JobType]Handler{
		queue.JobProcessPendingItems: func(ctx context.Context, job queue.Job) error {
			result, err := deps.Orchestrator.ProcessBatch(ctx, pipelineBatchLimit)
			if err != nil {
				return fmt.Errorf("process_pending_items: %w", err)
			}
			_ = result
			return nil
		},
	}
}

// DefaultHandlers returns the dispatch table for every periodic
// maintenance/report job spec.md §6 names.
func DefaultHandlers(deps Deps) map[queue.JobType]Handler {
	return map[queue.JobType]Handler{
		queue.JobApplyTrendDecay: func(ctx context.Context, job queue.Job) error {
			return decayAllTrends(ctx, deps)
		},
		queue.JobSnapshotTrends: func(ctx context.Context, job queue.Job) error {
			return snapshotAllTrends(ctx, deps)
		},
		queue.JobCheckEventLifecycles: func(ctx context.Context, job queue.Job) error {
			_, _, err := deps.Events.ApplyLifecycleTransitions(ctx, time.Now())
			return err
		},
		queue.JobReapStaleItems: func(ctx context.Context, job queue.Job) error {
			if deps.Queue == nil {
				return fmt.Errorf("reap_stale_items: no queue settings configured")
			}
			_, err := deps.RawItems.ResetStaleProcessing(ctx, deps.Queue.StaleItemTimeout)
			return err
		},
		queue.JobRetentionCleanup: func(ctx context.Context, job queue.Job) error {
			_, err := deps.RawItems.DeleteTerminal(ctx, time.Now().Add(-retentionWindow))
			return err
		},
		queue.JobCalibrationCheck: func(ctx context.Context, job queue.Job) error {
			if deps.Calibration == nil {
				return nil // webhook/calibration not configured for this deployment
			}
			_, err := deps.Calibration.RunDriftCheck(ctx, time.Now().Add(-calibrationWindow))
			return err
		},
		queue.JobWeeklyReport:  reportHandler(deps, 7*24*time.Hour),
		queue.JobMonthlyReport: reportHandler(deps, 30*24*time.Hour),
	}
}

// retentionWindow is how long a terminal (noise/error) raw_items row
// is kept before the retention-cleanup job deletes it.
const retentionWindow = 30 * 24 * time.Hour

// calibrationWindow bounds the drift check to outcomes resolved in the
// last 90 days, matching the freshness the scorer's Brier/bucket
// statistics are meant to reflect.
const calibrationWindow = 90 * 24 * time.Hour

// decayAllTrends runs the daily log-odds decay step over every active
// trend — spec.md §4.5's decay worker.
func decayAllTrends(ctx context.Context, deps Deps) error {
	active, err := deps.Trends.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("apply_trend_decay: list active: %w", err)
	}
	now := time.Now()
	for _, t := range active {
		if _, err := deps.Ledger.DecayOne(ctx, t.ID, now); err != nil {
			return fmt.Errorf("apply_trend_decay: trend %s: %w", t.ID, err)
		}
	}
	return nil
}

// snapshotAllTrends records the current log-odds of every active trend
// into the hourly time-series table, counting evidence applied in the
// trailing 24h via EvidenceRepo.CountSince.
func snapshotAllTrends(ctx context.Context, deps Deps) error {
	active, err := deps.Trends.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("snapshot_trends: list active: %w", err)
	}
	now := time.Now()
	since := now.Add(-24 * time.Hour)
	for _, t := range active {
		count, err := deps.Evidence.CountSince(ctx, t.ID, since)
		if err != nil {
			return fmt.Errorf("snapshot_trends: count evidence for %s: %w", t.ID, err)
		}
		if err := deps.Ledger.Snapshot(ctx, t.ID, now, t.CurrentLogOdds, count); err != nil {
			return fmt.Errorf("snapshot_trends: trend %s: %w", t.ID, err)
		}
	}
	return nil
}

// reportHandler builds a closure that logs a simple trend-roster
// digest: the number of active trends and each one's current log-odds,
// tagged with the start of the given window. The window is only a
// label; nothing in the digest is filtered or aggregated by it. There
// is no dedicated report-storage table in this system (spec.md §9
// excludes a UI), so the digest is logged at info level — an operator
// piping worker logs to their own aggregator gets the weekly/monthly
// entry without this package needing its own delivery channel beyond
// the structured logger every other worker already uses.
func reportHandler(deps Deps, window time.Duration) Handler {
	return func(ctx context.Context, job queue.Job) error {
		active, err := deps.Trends.ListActive(ctx)
		if err != nil {
			return fmt.Errorf("report: list active: %w", err)
		}
		since := time.Now().Add(-window)
		evt := deps.Log.Info().Str("job_type", string(job.Type)).Time("window_since", since).Int("active_trends", len(active))
		for _, t := range active {
			evt = evt.Float64("trend_"+t.Definition.ID+"_log_odds", t.CurrentLogOdds)
		}
		evt.Msg("periodic trend report")
		return nil
	}
}
