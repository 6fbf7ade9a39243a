package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// EvidenceRepo is the append-only ledger backing trend_evidence
// (spec.md §3/§4.5). Rows are never updated except to flip
// is_invalidated — every score change is a new row.
type EvidenceRepo struct{ db *DB }

func NewEvidenceRepo(db *DB) *EvidenceRepo { return &EvidenceRepo{db: db} }

// ErrEvidenceExists signals the (trend_id, event_id, signal_type)
// uniqueness constraint already has a row, mapping spec.md §4.5's
// idempotent-apply rule onto Postgres's ON CONFLICT DO NOTHING.
var ErrEvidenceExists = errors.New("storage: evidence already recorded for (trend, event, signal_type)")

// Insert idempotently records one evidence row inside tx. On a
// conflict it reports ErrEvidenceExists without touching the existing
// row and without applying the log-odds delta — callers must check
// this before calling TrendRepo.ApplyLogOddsDelta, since a duplicate
// ingestion/reclassification must never double-count (spec.md §4.5
// "applying the same (trend_id, event_id, signal_type) twice is a
// no-op").
func (r *EvidenceRepo) Insert(ctx context.Context, tx pgx.Tx, e *models.TrendEvidence) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO trend_evidence
			(id, trend_id, event_id, signal_type, base_weight, credibility,
			 corroboration_factor, novelty, evidence_age_days, temporal_decay_factor,
			 severity, confidence, direction_multiplier, delta_log_odds, reasoning,
			 trend_definition_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (trend_id, event_id, signal_type) DO NOTHING`,
		e.ID, e.TrendID, e.EventID, e.SignalType, e.BaseWeight, e.Credibility,
		e.CorroborationFactor, e.Novelty, e.EvidenceAgeDays, e.TemporalDecayFactor,
		e.Severity, e.Confidence, e.DirectionMultiplier, e.DeltaLogOdds, e.Reasoning,
		e.TrendDefinitionHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEvidenceExists
	}
	return nil
}

func (r *EvidenceRepo) Exists(ctx context.Context, trendID, eventID uuid.UUID, signalType string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM trend_evidence WHERE trend_id=$1 AND event_id=$2 AND signal_type=$3)`,
		trendID, eventID, signalType).Scan(&exists)
	return exists, err
}

// Find looks up the evidence row for one (trend, event, signal_type)
// tuple, used by internal/counterfactual's Simulate to locate the
// exact row a "remove historical event impact" projection reverses.
func (r *EvidenceRepo) Find(ctx context.Context, trendID, eventID uuid.UUID, signalType string) (models.TrendEvidence, error) {
	return scanEvidence(r.db.Pool.QueryRow(ctx, evidenceSelectSQL+
		` WHERE trend_id = $1 AND event_id = $2 AND signal_type = $3`, trendID, eventID, signalType))
}

// AgesForSignal returns the age in days (relative to at) of every
// non-invalidated evidence row for (trendID, signalType), feeding the
// trend engine's novelty factorization (spec.md §4.5 "novelty ...
// recency-aware continuous score over prior evidence for this (trend,
// signal_type)").
func (r *EvidenceRepo) AgesForSignal(ctx context.Context, trendID uuid.UUID, signalType string, at time.Time) ([]float64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT created_at FROM trend_evidence
		WHERE trend_id = $1 AND signal_type = $2 AND NOT is_invalidated`, trendID, signalType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ages []float64
	for rows.Next() {
		var createdAt time.Time
		if err := rows.Scan(&createdAt); err != nil {
			return nil, err
		}
		ages = append(ages, at.Sub(createdAt).Hours()/24)
	}
	return ages, rows.Err()
}

const evidenceSelectSQL = `
	SELECT id, trend_id, event_id, signal_type, base_weight, credibility,
	       corroboration_factor, novelty, evidence_age_days, temporal_decay_factor,
	       severity, confidence, direction_multiplier, delta_log_odds, reasoning,
	       trend_definition_hash, is_invalidated, invalidated_at,
	       invalidation_feedback_id, created_at
	FROM trend_evidence`

func scanEvidence(row rowScanner) (models.TrendEvidence, error) {
	var e models.TrendEvidence
	err := row.Scan(&e.ID, &e.TrendID, &e.EventID, &e.SignalType, &e.BaseWeight, &e.Credibility,
		&e.CorroborationFactor, &e.Novelty, &e.EvidenceAgeDays, &e.TemporalDecayFactor,
		&e.Severity, &e.Confidence, &e.DirectionMultiplier, &e.DeltaLogOdds, &e.Reasoning,
		&e.TrendDefinitionHash, &e.IsInvalidated, &e.InvalidatedAt, &e.InvalidationFeedbackID,
		&e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TrendEvidence{}, ErrNotFound
	}
	return e, err
}

func (r *EvidenceRepo) Get(ctx context.Context, id uuid.UUID) (models.TrendEvidence, error) {
	return scanEvidence(r.db.Pool.QueryRow(ctx, evidenceSelectSQL+` WHERE id = $1`, id))
}

func (r *EvidenceRepo) ListForTrend(ctx context.Context, trendID uuid.UUID, includeInvalidated bool, limit int) ([]models.TrendEvidence, error) {
	query := evidenceSelectSQL + ` WHERE trend_id = $1`
	if !includeInvalidated {
		query += ` AND NOT is_invalidated`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, trendID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrendEvidence
	for rows.Next() {
		e, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SourceReliabilityStat is one (source, tier) bucket's aggregate
// contribution to the ledger over a window — the advisory-only
// per-source/per-tier diagnostic spec.md §4.7 names. It reports raw
// inputs (volume, mean credibility/severity) rather than a backtested
// accuracy figure: correlating a single source's evidence rows against
// its trend's eventual resolved outcome would need a many-sources-per-
// trend attribution model this system doesn't have, so the diagnostic
// stays at "how much weight is this source contributing, and how
// strong does it typically score" — advisory, not a calibration input.
type SourceReliabilityStat struct {
	SourceID        uuid.UUID
	Tier            models.SourceTier
	EvidenceCount   int
	MeanCredibility float64
	MeanSeverity    float64
}

// SourceReliabilityStats aggregates trend_evidence rows since the
// given time by the source of each row's event's primary item,
// grouped by (source_id, tier).
func (r *EvidenceRepo) SourceReliabilityStats(ctx context.Context, since time.Time) ([]SourceReliabilityStat, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT s.id, s.source_tier, COUNT(*), AVG(te.credibility), AVG(te.severity)
		FROM trend_evidence te
		JOIN events e ON e.id = te.event_id
		JOIN raw_items ri ON ri.id = e.primary_item_id
		JOIN sources s ON s.id = ri.source_id
		WHERE te.created_at >= $1 AND NOT te.is_invalidated
		GROUP BY s.id, s.source_tier`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceReliabilityStat
	for rows.Next() {
		var s SourceReliabilityStat
		if err := rows.Scan(&s.SourceID, &s.Tier, &s.EvidenceCount, &s.MeanCredibility, &s.MeanSeverity); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSince counts non-invalidated evidence rows recorded for a trend
// since the given time — the snapshot worker's eventCount24h for
// evidence.Ledger.Snapshot, and the trend detail's evidence_count_24h.
func (r *EvidenceRepo) CountSince(ctx context.Context, trendID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM trend_evidence
		WHERE trend_id = $1 AND created_at >= $2 AND NOT is_invalidated`,
		trendID, since).Scan(&count)
	return count, err
}

// Invalidate marks a ledger row invalidated. The caller is responsible
// for applying the reverse delta to trends.current_log_odds in the
// same transaction (spec.md §4.5 "invalidation never deletes the row;
// it appends the negated delta and flags the original").
func (r *EvidenceRepo) Invalidate(ctx context.Context, tx pgx.Tx, id uuid.UUID, feedbackID uuid.UUID, at time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE trend_evidence
		SET is_invalidated = TRUE, invalidated_at = $2, invalidation_feedback_id = $3
		WHERE id = $1 AND NOT is_invalidated`, id, at, feedbackID)
	return err
}
