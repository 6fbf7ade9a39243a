package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// TaxonomyGapRepo persists the triage queue for Tier-2 impacts that
// named a trend_id or signal_type unknown to the configured taxonomy
// (spec.md §4.4/§4.9).
type TaxonomyGapRepo struct{ db *DB }

func NewTaxonomyGapRepo(db *DB) *TaxonomyGapRepo { return &TaxonomyGapRepo{db: db} }

func (r *TaxonomyGapRepo) Insert(ctx context.Context, g *models.TaxonomyGap) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO taxonomy_gaps (id, event_id, trend_id, signal_type, reason, status, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb)`,
		g.ID, g.EventID, g.TrendID, g.SignalType, g.Reason, g.Status, nonEmptyJSON(g.Payload))
	return err
}

func nonEmptyJSON(s string) string {
	if s == "" {
		return "{}"
	}
	return s
}

const gapSelectSQL = `
	SELECT id, event_id, trend_id, signal_type, reason, status, payload::text, created_at, resolved_at
	FROM taxonomy_gaps`

func scanGap(row rowScanner) (models.TaxonomyGap, error) {
	var g models.TaxonomyGap
	err := row.Scan(&g.ID, &g.EventID, &g.TrendID, &g.SignalType, &g.Reason, &g.Status,
		&g.Payload, &g.CreatedAt, &g.ResolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TaxonomyGap{}, ErrNotFound
	}
	return g, err
}

func (r *TaxonomyGapRepo) Get(ctx context.Context, id uuid.UUID) (models.TaxonomyGap, error) {
	return scanGap(r.db.Pool.QueryRow(ctx, gapSelectSQL+` WHERE id = $1`, id))
}

func (r *TaxonomyGapRepo) ListOpen(ctx context.Context) ([]models.TaxonomyGap, error) {
	rows, err := r.db.Pool.Query(ctx, gapSelectSQL+` WHERE status = 'open' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TaxonomyGap
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *TaxonomyGapRepo) Resolve(ctx context.Context, id uuid.UUID, status models.GapStatus, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE taxonomy_gaps SET status = $2, resolved_at = $3 WHERE id = $1`, id, status, at)
	return err
}
