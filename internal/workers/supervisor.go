// Package workers runs the suture-supervised consumers that drain
// internal/queue's routes and dispatch each job to the handler that
// drives the corresponding domain operation (spec.md §6's worker/
// scheduler architecture) — adapted from the supervisor-tree idiom in
// tomtom215-cartographus's internal/supervisor package, narrowed from
// three layered supervisors to one supervisor per queue route since
// this system has no messaging/data/api layering to isolate.
package workers

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/archwatch/sentinel/internal/calibration"
	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/evidence"
	"github.com/archwatch/sentinel/internal/pipeline"
	"github.com/archwatch/sentinel/internal/queue"
	"github.com/archwatch/sentinel/internal/storage"
)

// Deps bundles every dependency a job Handler might need. Not every
// handler uses every field.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Ledger       *evidence.Ledger
	Trends       *storage.TrendRepo
	Events       *storage.EventRepo
	RawItems     *storage.RawItemRepo
	Evidence     *storage.EvidenceRepo
	Calibration  *calibration.Service
	Queue        *config.QueueSettings
	Log          zerolog.Logger
}

// NewSupervisor assembles a suture.Supervisor with one RouteConsumer
// per queue route: the processing route gets the pipeline-only
// dispatch table, the default route gets every periodic
// maintenance/report job.
func NewSupervisor(q *queue.Queue, deps Deps, cfg config.QueueSettings, log zerolog.Logger) *suture.Supervisor {
	root := suture.New("sentinel-workers", suture.Spec{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})

	processing := NewRouteConsumer("processing", cfg.ProcessingRoute, q, ProcessingHandlers(deps), log)
	root.Add(processing)

	defaultConsumer := NewRouteConsumer("default", cfg.DefaultRoute, q, DefaultHandlers(deps), log)
	root.Add(defaultConsumer)

	return root
}
