package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// FeedbackRepo reads and writes human_feedback, the manual-review audit
// trail for pin/mark_noise/invalidate/override_delta/correct_category
// actions (spec.md §3/§4.9).
type FeedbackRepo struct{ db *DB }

func NewFeedbackRepo(db *DB) *FeedbackRepo { return &FeedbackRepo{db: db} }

func (r *FeedbackRepo) Insert(ctx context.Context, tx pgx.Tx, f *models.HumanFeedback) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO human_feedback
			(id, action, event_id, trend_id, original_value, corrected_value, actor)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		f.ID, f.Action, f.EventID, f.TrendID, f.OriginalValue, f.CorrectedValue, f.Actor)
	return err
}

func (r *FeedbackRepo) Get(ctx context.Context, id uuid.UUID) (models.HumanFeedback, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, action, event_id, trend_id, original_value, corrected_value, actor, created_at
		FROM human_feedback WHERE id = $1`, id)
	var f models.HumanFeedback
	err := row.Scan(&f.ID, &f.Action, &f.EventID, &f.TrendID, &f.OriginalValue,
		&f.CorrectedValue, &f.Actor, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.HumanFeedback{}, ErrNotFound
	}
	return f, err
}

func (r *FeedbackRepo) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.HumanFeedback, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, action, event_id, trend_id, original_value, corrected_value, actor, created_at
		FROM human_feedback WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HumanFeedback
	for rows.Next() {
		var f models.HumanFeedback
		if err := rows.Scan(&f.ID, &f.Action, &f.EventID, &f.TrendID, &f.OriginalValue,
			&f.CorrectedValue, &f.Actor, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
