package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/metrics"
	"github.com/archwatch/sentinel/internal/queue"
)

// Handler processes one dequeued job. An error is logged and the
// consumer continues — one bad job never takes down the whole
// consumer, since the next scheduled tick will simply enqueue another.
type Handler func(ctx context.Context, job queue.Job) error

// dequeueBlock is how long one Dequeue call waits for a job before
// returning so the consumer loop can re-check ctx.Done().
const dequeueBlock = 5 * time.Second

// RouteConsumer implements suture.Service: it repeatedly dequeues from
// one route and dispatches by job type to a registered Handler.
type RouteConsumer struct {
	name     string
	route    string
	queue    *queue.Queue
	handlers map[queue.JobType]Handler
	log      zerolog.Logger
}

func NewRouteConsumer(name, route string, q *queue.Queue, handlers map[queue.JobType]Handler, log zerolog.Logger) *RouteConsumer {
	return &RouteConsumer{
		name:     name,
		route:    route,
		queue:    q,
		handlers: handlers,
		log:      log.With().Str("component", "worker").Str("consumer", name).Logger(),
	}
}

// Serve implements suture.Service. It blocks until ctx is canceled,
// at which point it returns ctx.Err() so the supervisor treats
// shutdown as clean rather than a crash to restart.
func (c *RouteConsumer) Serve(ctx context.Context) error {
	c.log.Info().Str("route", c.route).Msg("consumer starting")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := c.queue.Dequeue(ctx, c.route, dequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error().Err(err).Msg("dequeue failed")
			continue
		}
		if job == nil {
			continue // timed out waiting, loop and recheck ctx
		}

		handler, ok := c.handlers[job.Type]
		if !ok {
			c.log.Warn().Str("job_type", string(job.Type)).Msg("no handler registered, dropping job")
			continue
		}

		start := time.Now()
		err = handler(ctx, *job)
		metrics.RecordWorkerJob(string(job.Type), err)
		if err != nil {
			c.log.Error().Err(err).Str("job_type", string(job.Type)).Str("job_id", job.ID).
				Dur("elapsed", time.Since(start)).Msg("job handler failed")
			continue
		}
		c.log.Debug().Str("job_type", string(job.Type)).Str("job_id", job.ID).
			Dur("elapsed", time.Since(start)).Msg("job handled")
	}
}
