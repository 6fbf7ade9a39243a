package queue

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/config"
)

// Scheduler publishes the periodic job list spec.md §6 names onto
// their configured routes, using robfig/cron/v3's standard 5-field
// parser. It owns no worker logic itself — every tick is just an
// Enqueue call, so a scheduler crash/restart never loses work, only
// delays the next publish.
type Scheduler struct {
	cron  *cron.Cron
	queue *Queue
	cfg   config.QueueSettings
	log   zerolog.Logger
}

func NewScheduler(q *Queue, cfg config.QueueSettings, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		queue: q,
		cfg:   cfg,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers every periodic job at the cadence spec.md §6 names
// and starts the cron scheduler's own goroutine.
func (s *Scheduler) Start() error {
	entries := []struct {
		spec  string
		route string
		jt    JobType
	}{
		{"* * * * *", s.cfg.ProcessingRoute, JobProcessPendingItems},
		{"0 * * * *", s.cfg.DefaultRoute, JobSnapshotTrends},
		{"0 0 * * *", s.cfg.DefaultRoute, JobApplyTrendDecay},
		{"15 * * * *", s.cfg.DefaultRoute, JobCheckEventLifecycles},
		{"*/5 * * * *", s.cfg.DefaultRoute, JobReapStaleItems},
		{"30 0 * * *", s.cfg.DefaultRoute, JobRetentionCleanup},
		{"0 6 * * 1", s.cfg.DefaultRoute, JobWeeklyReport},
		{"0 6 1 * *", s.cfg.DefaultRoute, JobMonthlyReport},
		{"45 0 * * *", s.cfg.DefaultRoute, JobCalibrationCheck},
	}

	for _, e := range entries {
		route, jt := e.route, e.jt
		if _, err := s.cron.AddFunc(e.spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.queue.Enqueue(ctx, route, Job{Type: jt}); err != nil {
				s.log.Error().Err(err).Str("job_type", string(jt)).Str("route", route).Msg("enqueue failed")
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop blocks until the currently-running job (if any) completes, per
// cron.Cron's own Stop semantics.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
