package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// RawItemRepo reads and writes the raw_items table.
type RawItemRepo struct{ db *DB }

func NewRawItemRepo(db *DB) *RawItemRepo { return &RawItemRepo{db: db} }

// ErrDuplicateItem surfaces a (source_id, external_id) unique-constraint
// violation so callers can treat it as spec.md §7 IngestDuplicate.
var ErrDuplicateItem = errors.New("storage: duplicate (source, external_id)")

func (r *RawItemRepo) Insert(ctx context.Context, item *models.RawItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	var lineageModel *string
	var lineageGenAt *time.Time
	var lineageIn, lineageRet *int
	var lineageTrunc bool
	if item.EmbeddingLineage != nil {
		lineageModel = &item.EmbeddingLineage.Model
		lineageGenAt = &item.EmbeddingLineage.GeneratedAt
		lineageIn = &item.EmbeddingLineage.InputTokens
		lineageRet = &item.EmbeddingLineage.RetainedTokens
		lineageTrunc = item.EmbeddingLineage.Truncated
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO raw_items
			(id, source_id, external_id, url, normalized_url, title, author,
			 published_at, fetched_at, text, content_sha256,
			 embedding_model, embedding_generated_at, embedding_input_tokens,
			 embedding_retained_tokens, embedding_truncated, language, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		item.ID, item.SourceID, item.ExternalID, item.URL, item.NormalizedURL,
		item.Title, item.Author, item.PublishedAt, item.FetchedAt, item.Text,
		item.ContentSHA256, lineageModel, lineageGenAt, lineageIn, lineageRet,
		lineageTrunc, item.Language, item.Status)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateItem
		}
		return err
	}
	return nil
}

// Get loads one raw item by id, including its embedding and lineage,
// for the orchestrator to hydrate a `pending` row before processing.
func (r *RawItemRepo) Get(ctx context.Context, id uuid.UUID) (models.RawItem, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, source_id, external_id, url, normalized_url, title, author,
		       published_at, fetched_at, text, content_sha256, embedding,
		       embedding_model, embedding_generated_at, embedding_input_tokens,
		       embedding_retained_tokens, embedding_truncated, language, status,
		       event_id, error_message, created_at, updated_at
		FROM raw_items WHERE id = $1`, id)

	var item models.RawItem
	var embModel *string
	var embGenAt *time.Time
	var embIn, embRet *int
	var embTrunc *bool
	err := row.Scan(&item.ID, &item.SourceID, &item.ExternalID, &item.URL, &item.NormalizedURL,
		&item.Title, &item.Author, &item.PublishedAt, &item.FetchedAt, &item.Text,
		&item.ContentSHA256, &item.Embedding, &embModel, &embGenAt, &embIn, &embRet, &embTrunc,
		&item.Language, &item.Status, &item.EventID, &item.ErrorMessage, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RawItem{}, ErrNotFound
	}
	if err != nil {
		return models.RawItem{}, err
	}
	if embModel != nil {
		lineage := models.EmbeddingLineage{Model: *embModel}
		if embGenAt != nil {
			lineage.GeneratedAt = *embGenAt
		}
		if embIn != nil {
			lineage.InputTokens = *embIn
		}
		if embRet != nil {
			lineage.RetainedTokens = *embRet
		}
		if embTrunc != nil {
			lineage.Truncated = *embTrunc
		}
		item.EmbeddingLineage = &lineage
	}
	return item, nil
}

// FindDuplicate implements the three dedup lookup keys from spec.md
// §4.1(b): normalized URL, (source, external_id), or content hash,
// restricted to items fetched within the recency window.
func (r *RawItemRepo) FindDuplicate(ctx context.Context, sourceID uuid.UUID, externalID, normalizedURL, contentSHA256 string, since time.Time) (*models.RawItem, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, source_id, external_id, url, normalized_url, title, author,
		       published_at, fetched_at, text, content_sha256,
		       embedding_model, embedding_generated_at, status, event_id
		FROM raw_items
		WHERE fetched_at >= $1
		  AND (normalized_url = $2 OR (source_id = $3 AND external_id = $4) OR content_sha256 = $5)
		ORDER BY fetched_at ASC
		LIMIT 1`, since, normalizedURL, sourceID, externalID, contentSHA256)

	var item models.RawItem
	var embModel *string
	var embGenAt *time.Time
	err := row.Scan(&item.ID, &item.SourceID, &item.ExternalID, &item.URL, &item.NormalizedURL,
		&item.Title, &item.Author, &item.PublishedAt, &item.FetchedAt, &item.Text,
		&item.ContentSHA256, &embModel, &embGenAt, &item.Status, &item.EventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if embModel != nil {
		item.EmbeddingLineage = &models.EmbeddingLineage{Model: *embModel}
		if embGenAt != nil {
			item.EmbeddingLineage.GeneratedAt = *embGenAt
		}
	}
	return &item, nil
}

func (r *RawItemRepo) SetEmbedding(ctx context.Context, id uuid.UUID, vec []float32, lineage models.EmbeddingLineage) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE raw_items SET
			embedding = $2, embedding_model = $3, embedding_generated_at = $4,
			embedding_input_tokens = $5, embedding_retained_tokens = $6,
			embedding_truncated = $7, updated_at = now()
		WHERE id = $1`,
		id, vec, lineage.Model, lineage.GeneratedAt, lineage.InputTokens,
		lineage.RetainedTokens, lineage.Truncated)
	return err
}

func (r *RawItemRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.ItemStatus, errMsg string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE raw_items SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`, id, status, errMsg)
	return err
}

// MarkProcessing transitions pending -> processing and stamps
// processing_started_at, used by the reaper to know when to reset.
func (r *RawItemRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE raw_items
		SET status = 'processing', processing_started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'`, id)
	return err
}

// ResetStaleProcessing implements spec.md §4.6/§8's reaper: any row
// still "processing" past the timeout reverts to "pending". Returns the
// count reset, which must equal exactly the stale rows (§8 boundary
// behavior).
func (r *RawItemRepo) ResetStaleProcessing(ctx context.Context, timeout time.Duration) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE raw_items
		SET status = 'pending', processing_started_at = NULL, updated_at = now()
		WHERE status = 'processing' AND processing_started_at < now() - make_interval(secs => $1)`,
		timeout.Seconds())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteTerminal removes raw_items rows that reached a terminal status
// (noise or error) before the cutoff, implementing the retention
// cleanup job spec.md §6 names. Rows still pending or processing, or
// linked as an event's primary_item_id, are never touched — only
// their own terminal copies ever accumulate unbounded.
func (r *RawItemRepo) DeleteTerminal(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		DELETE FROM raw_items
		WHERE status IN ('noise', 'error') AND fetched_at < $1
		  AND NOT EXISTS (SELECT 1 FROM events e WHERE e.primary_item_id = raw_items.id)`,
		before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *RawItemRepo) ListPending(ctx context.Context, limit int) ([]models.RawItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, source_id, external_id, url, normalized_url, title, author,
		       published_at, fetched_at, text, content_sha256, status
		FROM raw_items WHERE status = 'pending' ORDER BY fetched_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RawItem
	for rows.Next() {
		var it models.RawItem
		if err := rows.Scan(&it.ID, &it.SourceID, &it.ExternalID, &it.URL, &it.NormalizedURL,
			&it.Title, &it.Author, &it.PublishedAt, &it.FetchedAt, &it.Text,
			&it.ContentSHA256, &it.Status); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListRecentWithEmbedding returns embedded items fetched since the
// given time, the candidate pool for dedup's embedding-similarity scan
// (spec.md §4.1(b) second line of defense, run only when the exact
// lookup found nothing).
func (r *RawItemRepo) ListRecentWithEmbedding(ctx context.Context, since time.Time, limit int) ([]models.RawItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, source_id, embedding, embedding_model
		FROM raw_items
		WHERE fetched_at >= $1 AND embedding IS NOT NULL
		ORDER BY fetched_at DESC LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RawItem
	for rows.Next() {
		var it models.RawItem
		var embModel *string
		if err := rows.Scan(&it.ID, &it.SourceID, &it.Embedding, &embModel); err != nil {
			return nil, err
		}
		if embModel != nil {
			it.EmbeddingLineage = &models.EmbeddingLineage{Model: *embModel}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// LinkedItem is a narrow projection of an item linked to an event,
// joined with its source's full CredibilityMultiplier() (not the raw
// credibility_score alone), used by internal/cluster's metadata
// recompute (spec.md §4.3 step 4: source_count, unique_source_count,
// primary re-selection by highest credibility) and by internal/pipeline
// to build the trend engine's IndependentSourceWeights.
type LinkedItem struct {
	ItemID      uuid.UUID
	SourceID    uuid.UUID
	Credibility float64
	Title       string
	PublishedAt time.Time
}

// ListForEvent returns every item linked to eventID along with its
// source's weighted credibility, ordered oldest-first so primary
// re-selection ties break toward the earliest mention.
func (r *RawItemRepo) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]LinkedItem, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ri.id, ri.source_id, s.credibility_score, s.source_tier, s.reporting_type,
		       ri.title, ri.published_at
		FROM raw_items ri
		JOIN sources s ON s.id = ri.source_id
		WHERE ri.event_id = $1
		ORDER BY ri.published_at ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LinkedItem
	for rows.Next() {
		var li LinkedItem
		var credScore float64
		var tier models.SourceTier
		var reporting models.ReportingType
		if err := rows.Scan(&li.ItemID, &li.SourceID, &credScore, &tier, &reporting, &li.Title, &li.PublishedAt); err != nil {
			return nil, err
		}
		li.Credibility = models.Source{CredibilityScore: credScore, Tier: tier, ReportingType: reporting}.CredibilityMultiplier()
		out = append(out, li)
	}
	return out, rows.Err()
}

// LinkToEvent sets raw_items.event_id and inserts the event_items
// junction row inside a single statement pair guarded by the
// event_items PK on item_id, so a concurrent linker loses the race
// cleanly (spec.md §4.3 "on unique-link conflict... resolve to the
// already-linked event").
func (r *RawItemRepo) LinkToEvent(ctx context.Context, tx pgx.Tx, itemID, eventID uuid.UUID) (linked bool, winnerEventID uuid.UUID, err error) {
	tag, err := tx.Exec(ctx, `INSERT INTO event_items (item_id, event_id) VALUES ($1, $2)
		ON CONFLICT (item_id) DO NOTHING`, itemID, eventID)
	if err != nil {
		return false, uuid.Nil, err
	}
	if tag.RowsAffected() == 0 {
		var existing uuid.UUID
		if qerr := tx.QueryRow(ctx, `SELECT event_id FROM event_items WHERE item_id = $1`, itemID).Scan(&existing); qerr != nil {
			return false, uuid.Nil, qerr
		}
		return false, existing, nil
	}
	if _, err = tx.Exec(ctx, `UPDATE raw_items SET event_id = $2, status = 'classified', updated_at = now() WHERE id = $1`, itemID, eventID); err != nil {
		return false, uuid.Nil, err
	}
	return true, eventID, nil
}
