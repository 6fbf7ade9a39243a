package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// OutcomeRepo reads and writes trend_outcomes, the prediction-vs-reality
// ledger backing calibration scoring (spec.md §4.8).
type OutcomeRepo struct{ db *DB }

func NewOutcomeRepo(db *DB) *OutcomeRepo { return &OutcomeRepo{db: db} }

func (r *OutcomeRepo) Insert(ctx context.Context, o *models.TrendOutcome) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO trend_outcomes
			(id, trend_id, prediction_date, predicted_prob, predicted_risk, predicted_band, outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		o.ID, o.TrendID, o.PredictionDate, o.PredictedProb, o.PredictedRisk, o.PredictedBand, o.Outcome)
	return err
}

// Resolve records the realized outcome and its Brier score. The update
// is unconditional: calling it on an already-resolved row overwrites
// that row's outcome, outcome date and Brier score (spec.md §4.8).
func (r *OutcomeRepo) Resolve(ctx context.Context, id uuid.UUID, outcome models.OutcomeKind, outcomeDate time.Time, brier float64) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE trend_outcomes SET outcome = $2, outcome_date = $3, brier_score = $4
		WHERE id = $1`, id, outcome, outcomeDate, brier)
	return err
}

func (r *OutcomeRepo) Get(ctx context.Context, id uuid.UUID) (models.TrendOutcome, error) {
	return scanOutcome(r.db.Pool.QueryRow(ctx, outcomeSelectSQL+` WHERE id = $1`, id))
}

const outcomeSelectSQL = `
	SELECT id, trend_id, prediction_date, predicted_prob, predicted_risk, predicted_band,
	       outcome, outcome_date, brier_score, created_at
	FROM trend_outcomes`

func scanOutcome(row rowScanner) (models.TrendOutcome, error) {
	var o models.TrendOutcome
	err := row.Scan(&o.ID, &o.TrendID, &o.PredictionDate, &o.PredictedProb, &o.PredictedRisk,
		&o.PredictedBand, &o.Outcome, &o.OutcomeDate, &o.BrierScore, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TrendOutcome{}, ErrNotFound
	}
	return o, err
}

// ListResolved returns resolved outcomes for a trend within a window,
// the input to Brier-score bucket analysis.
func (r *OutcomeRepo) ListResolved(ctx context.Context, trendID uuid.UUID, since time.Time) ([]models.TrendOutcome, error) {
	rows, err := r.db.Pool.Query(ctx, outcomeSelectSQL+`
		WHERE trend_id = $1 AND prediction_date >= $2
		  AND outcome IN ('occurred', 'did_not_occur', 'partial')
		ORDER BY prediction_date ASC`, trendID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrendOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListAllResolvedSince fetches resolved outcomes across every trend,
// used by the calibration worker's global Brier/bucket sweep.
func (r *OutcomeRepo) ListAllResolvedSince(ctx context.Context, since time.Time) ([]models.TrendOutcome, error) {
	rows, err := r.db.Pool.Query(ctx, outcomeSelectSQL+`
		WHERE prediction_date >= $1 AND outcome IN ('occurred', 'did_not_occur', 'partial')
		ORDER BY prediction_date ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrendOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListPendingBefore returns still-ongoing outcomes whose prediction_date
// is old enough that they're candidates for the calibration worker to
// check against new evidence.
func (r *OutcomeRepo) ListPendingBefore(ctx context.Context, before time.Time) ([]models.TrendOutcome, error) {
	rows, err := r.db.Pool.Query(ctx, outcomeSelectSQL+`
		WHERE outcome = 'ongoing' AND prediction_date < $1
		ORDER BY prediction_date ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrendOutcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
