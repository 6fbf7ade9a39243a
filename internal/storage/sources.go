package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// SourceRepo reads and writes the sources table.
type SourceRepo struct{ db *DB }

func NewSourceRepo(db *DB) *SourceRepo { return &SourceRepo{db: db} }

func (r *SourceRepo) Get(ctx context.Context, id uuid.UUID) (models.Source, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, type, credibility_score, source_tier, reporting_type,
		       active, last_fetch_at, high_water_mark, created_at, updated_at
		FROM sources WHERE id = $1`, id)
	return scanSource(row)
}

func (r *SourceRepo) ListActive(ctx context.Context) ([]models.Source, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, type, credibility_score, source_tier, reporting_type,
		       active, last_fetch_at, high_water_mark, created_at, updated_at
		FROM sources WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AdvanceWatermark moves the forward-only high-water mark, never
// allowing it to go backwards (spec.md §3 Source: "forward-only
// ingestion high-water timestamp").
func (r *SourceRepo) AdvanceWatermark(ctx context.Context, id uuid.UUID, fetchedAt, watermark time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE sources
		SET last_fetch_at = $2,
		    high_water_mark = GREATEST(COALESCE(high_water_mark, $3), $3),
		    updated_at = now()
		WHERE id = $1`, id, fetchedAt, watermark)
	return err
}

func (r *SourceRepo) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE sources SET active = FALSE, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *SourceRepo) GetByName(ctx context.Context, name string) (models.Source, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, type, credibility_score, source_tier, reporting_type,
		       active, last_fetch_at, high_water_mark, created_at, updated_at
		FROM sources WHERE name = $1`, name)
	return scanSource(row)
}

// UpsertByName creates the source the first time its name is seen in
// the source definitions file, or updates its credibility/tier/type in
// place on subsequent loads. Watermark and active state are left
// untouched on update so a config reload never rewinds ingestion
// progress or silently reactivates a deliberately disabled source.
func (r *SourceRepo) UpsertByName(ctx context.Context, s *models.Source) (inserted bool, err error) {
	existing, err := r.GetByName(ctx, s.Name)
	if err == nil {
		s.ID = existing.ID
		_, err = r.db.Pool.Exec(ctx, `
			UPDATE sources SET type = $2, credibility_score = $3, source_tier = $4,
				reporting_type = $5, updated_at = now()
			WHERE id = $1`, s.ID, s.Type, s.CredibilityScore, s.Tier, s.ReportingType)
		return false, err
	}
	if err != ErrNotFound {
		return false, err
	}

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO sources (id, name, type, credibility_score, source_tier, reporting_type, active)
		VALUES ($1,$2,$3,$4,$5,$6,TRUE)`,
		s.ID, s.Name, s.Type, s.CredibilityScore, s.Tier, s.ReportingType)
	return err == nil, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (models.Source, error) {
	var s models.Source
	err := row.Scan(&s.ID, &s.Name, &s.Type, &s.CredibilityScore, &s.Tier, &s.ReportingType,
		&s.Active, &s.LastFetchAt, &s.HighWaterMark, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return models.Source{}, ErrNotFound
	}
	return s, err
}
