package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// EventRepo reads and writes the events table.
type EventRepo struct{ db *DB }

func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Get(ctx context.Context, id uuid.UUID) (models.Event, error) {
	row := r.db.Pool.QueryRow(ctx, eventSelectSQL+` WHERE id = $1`, id)
	return scanEvent(row)
}

const eventSelectSQL = `
	SELECT id, canonical_summary, who, what, "where", "when", claims, categories,
	       source_count, unique_source_count, lifecycle_status, first_seen_at,
	       last_mention_at, confirmed_at, primary_item_id, contradicted,
	       contradiction_notes, suppressed, created_at, updated_at
	FROM events`

func scanEvent(row rowScanner) (models.Event, error) {
	var e models.Event
	var claimsJSON []byte
	err := row.Scan(&e.ID, &e.CanonicalSummary, &e.Who, &e.What, &e.Where, &e.When,
		&claimsJSON, &e.Categories, &e.SourceCount, &e.UniqueSourceCount,
		&e.LifecycleStatus, &e.FirstSeenAt, &e.LastMentionAt, &e.ConfirmedAt,
		&e.PrimaryItemID, &e.Contradicted, &e.ContradictionNotes, &e.Suppressed,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Event{}, ErrNotFound
	}
	if err != nil {
		return models.Event{}, err
	}
	if len(claimsJSON) > 0 {
		_ = json.Unmarshal(claimsJSON, &e.Claims)
	}
	return e, nil
}

// FindClusterCandidates returns events within the clustering window
// whose embedding lineage model matches candidateModel, for the caller
// to rank by cosine similarity. Matching only same-model embeddings
// enforces spec.md §4.3's "matching embedding_model lineage" rule —
// cross-model comparisons never reach this query.
func (r *EventRepo) FindClusterCandidates(ctx context.Context, since time.Time, candidateModel string) ([]ClusterCandidate, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, embedding, first_seen_at, suppressed
		FROM events
		WHERE first_seen_at >= $1 AND embedding_model = $2 AND lifecycle_status != 'archived'`,
		since, candidateModel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClusterCandidate
	for rows.Next() {
		var c ClusterCandidate
		if err := rows.Scan(&c.EventID, &c.Embedding, &c.FirstSeenAt, &c.Suppressed); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ClusterCandidate is a narrow projection used only for similarity
// ranking, avoiding a full Event hydrate for every candidate.
type ClusterCandidate struct {
	EventID     uuid.UUID
	Embedding   []float32
	FirstSeenAt time.Time
	Suppressed  bool
}

func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *models.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	claimsJSON, err := json.Marshal(e.Claims)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO events
			(id, canonical_summary, who, what, "where", "when", claims, categories,
			 source_count, unique_source_count, lifecycle_status, first_seen_at,
			 last_mention_at, primary_item_id, suppressed)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		e.ID, e.CanonicalSummary, e.Who, e.What, e.Where, e.When, claimsJSON, e.Categories,
		e.SourceCount, e.UniqueSourceCount, e.LifecycleStatus, e.FirstSeenAt, e.LastMentionAt,
		e.PrimaryItemID, e.Suppressed)
	return err
}

func (r *EventRepo) SetEmbedding(ctx context.Context, tx pgx.Tx, id uuid.UUID, vec []float32, lineage models.EmbeddingLineage) error {
	_, err := tx.Exec(ctx, `
		UPDATE events SET embedding = $2, embedding_model = $3, embedding_generated_at = $4, updated_at = now()
		WHERE id = $1`, id, vec, lineage.Model, lineage.GeneratedAt)
	return err
}

// RecomputeMetadata updates source_count/unique_source_count, the
// lifecycle status, primary item, and canonical summary after a new
// link — spec.md §4.3 step 4. Link insertion must have already
// happened in the same transaction (enforced by caller ordering, not
// by this method) to avoid the off-by-one confirmation drift spec.md
// warns about.
func (r *EventRepo) RecomputeMetadata(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, sourceCount, uniqueSourceCount int, newPrimaryItemID *uuid.UUID, newSummary string, newLifecycle models.LifecycleStatus, confirmedAt *time.Time) error {
	if newPrimaryItemID != nil {
		_, err := tx.Exec(ctx, `
			UPDATE events SET
				source_count = $2, unique_source_count = $3,
				primary_item_id = $4, canonical_summary = $5,
				lifecycle_status = $6, confirmed_at = COALESCE(confirmed_at, $7),
				last_mention_at = now(), updated_at = now()
			WHERE id = $1`,
			eventID, sourceCount, uniqueSourceCount, *newPrimaryItemID, newSummary,
			newLifecycle, confirmedAt)
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE events SET
			source_count = $2, unique_source_count = $3,
			lifecycle_status = $4, confirmed_at = COALESCE(confirmed_at, $5),
			last_mention_at = now(), updated_at = now()
		WHERE id = $1`, eventID, sourceCount, uniqueSourceCount, newLifecycle, confirmedAt)
	return err
}

// SetExtraction persists Tier-2's structured extraction (who/what/
// where/when/claims/categories) onto an event. Called once per event,
// after RunTier2 succeeds — spec.md §3 Event's who/what/where/when and
// normalized claim graph fields.
func (r *EventRepo) SetExtraction(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, who []string, what string, where []string, when *time.Time, claims models.ClaimGraph, categories []string) error {
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE events SET
			who = $2, what = $3, "where" = $4, "when" = $5,
			claims = $6, categories = $7, updated_at = now()
		WHERE id = $1`, eventID, who, what, where, when, claimsJSON, categories)
	return err
}

func (r *EventRepo) SetSuppressed(ctx context.Context, id uuid.UUID, suppressed bool) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE events SET suppressed = $2, updated_at = now() WHERE id = $1`, id, suppressed)
	return err
}

func (r *EventRepo) SetContradiction(ctx context.Context, id uuid.UUID, contradicted bool, notes string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE events SET contradicted = $2, contradiction_notes = $3, updated_at = now()
		WHERE id = $1`, id, contradicted, notes)
	return err
}

// ApplyLifecycleTransitions runs the two time-based transitions from
// spec.md §4.3 (confirmed -> fading after 48h silence, fading ->
// archived after 7d silence) across all non-archived events. Returns
// the count of events moved into each new state.
func (r *EventRepo) ApplyLifecycleTransitions(ctx context.Context, now time.Time) (fadedCount, archivedCount int64, err error) {
	fadeTag, err := r.db.Pool.Exec(ctx, `
		UPDATE events SET lifecycle_status = 'fading', updated_at = now()
		WHERE lifecycle_status = 'confirmed' AND NOT suppressed
		  AND last_mention_at < $1 - interval '48 hours'`, now)
	if err != nil {
		return 0, 0, err
	}
	archiveTag, err := r.db.Pool.Exec(ctx, `
		UPDATE events SET lifecycle_status = 'archived', updated_at = now()
		WHERE lifecycle_status = 'fading' AND NOT suppressed
		  AND last_mention_at < $1 - interval '7 days'`, now)
	if err != nil {
		return fadeTag.RowsAffected(), 0, err
	}
	return fadeTag.RowsAffected(), archiveTag.RowsAffected(), nil
}

func (r *EventRepo) ListByFilter(ctx context.Context, f EventFilter) ([]models.Event, error) {
	query := eventSelectSQL + ` WHERE first_seen_at >= $1`
	args := []any{time.Now().Add(-time.Duration(f.Days) * 24 * time.Hour)}
	n := 1
	if f.Category != "" {
		n++
		query += ` AND $` + itoa(n) + ` = ANY(categories)`
		args = append(args, f.Category)
	}
	if f.Lifecycle != "" {
		n++
		query += ` AND lifecycle_status = $` + itoa(n)
		args = append(args, f.Lifecycle)
	}
	if f.Contradicted != nil {
		n++
		query += ` AND contradicted = $` + itoa(n)
		args = append(args, *f.Contradicted)
	}
	if f.TrendID != nil {
		n++
		query += ` AND EXISTS (SELECT 1 FROM trend_evidence te WHERE te.event_id = events.id AND te.trend_id = $` + itoa(n) + `)`
		args = append(args, *f.TrendID)
	}
	query += ` ORDER BY last_mention_at DESC LIMIT $` + itoa(n+1)
	args = append(args, f.Limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventFilter mirrors the /events query contract from spec.md §6.
type EventFilter struct {
	Category     string
	TrendID      *uuid.UUID
	Lifecycle    models.LifecycleStatus
	Contradicted *bool
	Days         int
	Limit        int
}

func itoa(n int) string {
	// small helper kept local since this file is the only caller of
	// positional-placeholder string building.
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
