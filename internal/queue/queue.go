package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Queue wraps a Redis list per named route (default|ingestion|processing
// per config.QueueSettings) with LPUSH/BRPOP semantics — adapted from
// the teacher's redisclient.Client connection setup, generalized from
// a single connection check into a routed work queue.
type Queue struct {
	client *redis.Client
	log    zerolog.Logger
}

func New(redisURL string, log zerolog.Logger) (*Queue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}

	return &Queue{client: client, log: log.With().Str("component", "queue").Logger()}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) key(route string) string {
	return "sentinel:queue:" + route
}

// Enqueue pushes a job onto route's list. A zero ID/EnqueuedAt is
// filled in so callers never need to stamp those themselves.
func (q *Queue) Enqueue(ctx context.Context, route string, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key(route), data).Err(); err != nil {
		return fmt.Errorf("queue: lpush %s: %w", route, err)
	}
	return nil
}

// Dequeue blocks up to block waiting for a job on route, returning nil
// (no error) on timeout so callers can loop and check ctx.Done()
// between polls rather than blocking forever past a shutdown signal.
func (q *Queue) Dequeue(ctx context.Context, route string, block time.Duration) (*Job, error) {
	res, err := q.client.BRPop(ctx, block, q.key(route)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: brpop %s: %w", route, err)
	}
	// BRPop returns [key, value]; the value is always index 1.
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshal job: %w", err)
	}
	return &job, nil
}

// Len reports how many jobs are currently queued on route, for
// diagnostics/metrics.
func (q *Queue) Len(ctx context.Context, route string) (int64, error) {
	return q.client.LLen(ctx, q.key(route)).Result()
}
