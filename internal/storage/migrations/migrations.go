// Package migrations runs the linear schema migrations embedded in
// sql/ and validates startup parity against the expected schema
// version, per spec.md §6 ("runtime startup validates parity against
// current models (strict mode available)").
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var sqlFS embed.FS

// Current is the highest migration version this binary expects. A
// strict-mode startup check (CheckParity) fails closed if the database
// reports any version other than this.
const Current = 1

// Run applies every migration not yet recorded in schema_migrations, in
// filename order. Safe to call on every startup — already-applied
// migrations are skipped.
func Run(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("migrations: ensure tracking table: %w", err)
	}

	entries, err := fs.Glob(sqlFS, "sql/*.sql")
	if err != nil {
		return fmt.Errorf("migrations: glob: %w", err)
	}
	sort.Strings(entries)

	for i, name := range entries {
		version := i + 1
		var applied bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
			version,
		).Scan(&applied); err != nil {
			return fmt.Errorf("migrations: check version %d: %w", version, err)
		}
		if applied {
			continue
		}

		body, err := sqlFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", name, err)
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("migrations: begin %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migrations: apply %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version,
		); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migrations: record %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("migrations: commit %s: %w", name, err)
		}
	}
	return nil
}

// CheckParity fails fast (an InvariantViolation per spec.md §7) if the
// database's highest applied version doesn't match Current — used by
// strict-mode startup.
func CheckParity(ctx context.Context, pool *pgxpool.Pool) error {
	var max int
	if err := pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&max); err != nil {
		return fmt.Errorf("migrations: check parity: %w", err)
	}
	if max != Current {
		return fmt.Errorf("migrations: schema at version %d, binary expects %d", max, Current)
	}
	return nil
}
