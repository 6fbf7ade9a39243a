// Package queue is the Redis-backed task queue spec.md §6 names:
// named routes (default|ingestion|processing) plus a periodic
// scheduler publishing the jobs that drive workers/.
package queue

import (
	"encoding/json"
	"time"
)

// JobType names one of the periodic or on-demand tasks the scheduler
// or an API handler can enqueue.
type JobType string

const (
	JobProcessPendingItems JobType = "process_pending_items"
	JobSnapshotTrends      JobType = "snapshot_trends"
	JobApplyTrendDecay     JobType = "apply_trend_decay"
	JobCheckEventLifecycles JobType = "check_event_lifecycles"
	JobReapStaleItems      JobType = "reap_stale_items"
	JobRetentionCleanup    JobType = "retention_cleanup"
	JobWeeklyReport        JobType = "weekly_report"
	JobMonthlyReport       JobType = "monthly_report"
	JobCalibrationCheck    JobType = "calibration_check"
)

// Job is the envelope written to a route's list. Payload carries
// job-specific parameters as raw JSON so the queue package itself
// never needs to know every job's shape.
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
