// Package storage is the single-writer Postgres persistence layer for
// every entity in spec.md §3. All cross-worker synchronization happens
// through this layer's atomic SQL, not in-process locks, per the
// Design Note "Async worker model".
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps a pgx connection pool. All repositories in this package take
// a *DB rather than a bare pool so they share timeout defaults and
// logging.
type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open creates a pooled Postgres connection and verifies connectivity.
func Open(ctx context.Context, databaseURL string, log zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage: parse database url: %w", err)
	}
	cfg.MaxConns = 32
	cfg.MaxConnLifetime = time.Hour
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error or panic. Row-lock-serialized mutations
// (decay, override) and multi-statement invariants (evidence insert
// plus log-odds increment, item-to-event linking) go through WithTx
// rather than independent statements, per the Design Note on atomic DB
// operations. The budget reservation does not: it is the single
// atomic upsert in ApiUsageRepo.IncrementAndGet.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			db.log.Error().Err(rbErr).Msg("tx rollback failed")
		}
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit tx: %w", err)
	}
	return nil
}

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = fmt.Errorf("storage: not found")
