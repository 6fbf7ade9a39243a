package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// SnapshotRepo writes the TimescaleDB hypertable backing trend history
// charts and calibration lookback windows.
type SnapshotRepo struct{ db *DB }

func NewSnapshotRepo(db *DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

func (r *SnapshotRepo) Insert(ctx context.Context, s models.TrendSnapshot) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trend_snapshots (trend_id, "timestamp", log_odds, event_count_24h)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (trend_id, "timestamp") DO NOTHING`,
		s.TrendID, s.Timestamp, s.LogOdds, s.EventCount24h)
	return err
}

func (r *SnapshotRepo) ListRange(ctx context.Context, trendID uuid.UUID, since, until time.Time) ([]models.TrendSnapshot, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT trend_id, "timestamp", log_odds, event_count_24h
		FROM trend_snapshots
		WHERE trend_id = $1 AND "timestamp" BETWEEN $2 AND $3
		ORDER BY "timestamp" ASC`, trendID, since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrendSnapshot
	for rows.Next() {
		var s models.TrendSnapshot
		if err := rows.Scan(&s.TrendID, &s.Timestamp, &s.LogOdds, &s.EventCount24h); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Latest returns the most recent snapshot at or before at, used to
// seed a replay/counterfactual run from a known-good starting point.
func (r *SnapshotRepo) Latest(ctx context.Context, trendID uuid.UUID, at time.Time) (models.TrendSnapshot, bool, error) {
	var s models.TrendSnapshot
	err := r.db.Pool.QueryRow(ctx, `
		SELECT trend_id, "timestamp", log_odds, event_count_24h
		FROM trend_snapshots
		WHERE trend_id = $1 AND "timestamp" <= $2
		ORDER BY "timestamp" DESC LIMIT 1`, trendID, at).
		Scan(&s.TrendID, &s.Timestamp, &s.LogOdds, &s.EventCount24h)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TrendSnapshot{}, false, nil
	}
	if err != nil {
		return models.TrendSnapshot{}, false, err
	}
	return s, true, nil
}
