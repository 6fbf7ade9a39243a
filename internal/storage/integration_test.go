//go:build integration

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/migrations"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// skipIfNoDocker mirrors the teacher pack's testinfra helper: it keeps
// this suite runnable on a laptop with no daemon instead of failing
// the whole package.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req := testcontainers.ContainerRequest{Image: "alpine:3.20", Cmd: []string{"true"}}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req})
	if err != nil {
		t.Skipf("skipping: docker not available: %v", err)
	}
	_ = c.Terminate(ctx)
}

// cleanupContainer is the same deferred-cleanup-that-logs pattern the
// teacher's testinfra package uses, so a failed Terminate never panics
// the test in teardown.
func cleanupContainer(t *testing.T, ctx context.Context, c testcontainers.Container) {
	t.Helper()
	if c == nil {
		return
	}
	if err := c.Terminate(ctx); err != nil {
		t.Logf("warning: failed to terminate container: %v", err)
	}
}

// startPostgres boots a Postgres image that ships both pgvector and
// TimescaleDB — the schema's raw_items and events tables carry `vector`
// columns and trend_snapshots is a hypertable
// (migrations/sql/0001_init.sql), so a bare postgres image can't run
// the migration set.
func startPostgres(t *testing.T) string {
	t.Helper()
	skipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "timescale/timescaledb-ha:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "sentinel",
			"POSTGRES_PASSWORD": "sentinel",
			"POSTGRES_DB":       "sentinel_test",
		},
		WaitingFor: wait.ForListeningPort(nat.Port("5432/tcp")).WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Logger:           testcontainers.TestLogger(t),
	})
	if err != nil {
		t.Skipf("skipping: could not start postgres container: %v", err)
	}
	t.Cleanup(func() {
		cleanupContainer(t, context.Background(), container)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	return "postgres://sentinel:sentinel@" + host + ":" + port.Port() + "/sentinel_test?sslmode=disable"
}

// TestMigrationsAndRepos_RunAgainstRealPostgres validates the embedded
// migration set and a handful of repositories end to end against a
// disposable pgvector/TimescaleDB container — the schema this system actually
// runs on, not an in-memory stand-in.
func TestMigrationsAndRepos_RunAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dsn := startPostgres(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := zerolog.Nop()
	db, err := storage.Open(ctx, dsn, log)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db.Pool); err != nil {
		t.Fatalf("migrations.Run: %v", err)
	}
	// Running again must be a no-op — every already-applied version is
	// skipped via the schema_migrations tracking table.
	if err := migrations.Run(ctx, db.Pool); err != nil {
		t.Fatalf("migrations.Run (rerun): %v", err)
	}

	sources := storage.NewSourceRepo(db)
	src := &models.Source{
		Name: "integration-test-wire", Type: models.SourceTypeRSS,
		CredibilityScore: 0.9, Tier: models.SourceTierWire, ReportingType: models.ReportingFirsthand,
	}
	inserted, err := sources.UpsertByName(ctx, src)
	if err != nil {
		t.Fatalf("UpsertByName: %v", err)
	}
	if !inserted {
		t.Fatal("expected a fresh source to be inserted")
	}

	rawItems := storage.NewRawItemRepo(db)
	item := &models.RawItem{
		SourceID: src.ID, ExternalID: uuid.NewString(), URL: "https://example.com/a",
		NormalizedURL: "https://example.com/a", Title: "test item", Author: "wire",
		PublishedAt: time.Now().Add(-time.Hour), FetchedAt: time.Now(),
		Text: "a fixture item for the integration suite", ContentSHA256: uuid.NewString(),
		Language: "en", Status: models.ItemStatusPending,
	}
	if err := rawItems.Insert(ctx, item); err != nil {
		t.Fatalf("Insert raw item: %v", err)
	}

	pending, err := rawItems.ListPending(ctx, 10)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != item.ID {
		t.Fatalf("expected exactly the inserted item pending, got %d rows", len(pending))
	}

	if err := rawItems.Insert(ctx, &models.RawItem{
		SourceID: src.ID, ExternalID: item.ExternalID, URL: item.URL, NormalizedURL: item.NormalizedURL,
		Title: item.Title, PublishedAt: item.PublishedAt, FetchedAt: item.FetchedAt,
		Text: item.Text, ContentSHA256: uuid.NewString(), Status: models.ItemStatusPending,
	}); err != storage.ErrDuplicateItem {
		t.Fatalf("expected ErrDuplicateItem on (source_id, external_id) clash, got %v", err)
	}
}
