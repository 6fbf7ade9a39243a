package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/dedup"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// Ingester runs spec.md §4.1's exact dedup check ahead of persistence —
// scenario 2 ("Duplicate URL... RawItem not persisted, counters
// incremented, no downstream work") is enforced here, before a
// candidate ever becomes a `pending` row the Orchestrator can see.
type Ingester struct {
	rawItems *storage.RawItemRepo
	dedup    *dedup.Checker
	log      zerolog.Logger

	duplicatesSkipped int64
}

func NewIngester(rawItems *storage.RawItemRepo, dedupChecker *dedup.Checker, log zerolog.Logger) *Ingester {
	return &Ingester{rawItems: rawItems, dedup: dedupChecker, log: log.With().Str("component", "ingest").Logger()}
}

// DuplicatesSkipped reports the running IngestDuplicate counter
// (spec.md §7), exposed for metrics scraping.
func (in *Ingester) DuplicatesSkipped() int64 { return in.duplicatesSkipped }

// Ingest checks a candidate RawItem against the exact-match dedup
// rules and, if it clears them, persists it as `pending`. A duplicate
// is skipped silently: no row is written, no error is returned to the
// caller beyond the boolean result.
func (in *Ingester) Ingest(ctx context.Context, item *models.RawItem) (inserted bool, err error) {
	verdict, err := in.dedup.CheckExact(ctx, item.SourceID, item.ExternalID, item.URL, item.Text, item.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("pipeline: ingest dedup check: %w", err)
	}
	if verdict.IsDuplicate {
		in.duplicatesSkipped++
		in.log.Debug().
			Str("matched_id", verdict.MatchedID.String()).
			Str("method", verdict.MatchMethod).
			Msg("ingest duplicate skipped")
		return false, nil
	}

	item.Status = models.ItemStatusPending
	if item.FetchedAt.IsZero() {
		item.FetchedAt = time.Now()
	}
	if err := in.rawItems.Insert(ctx, item); err != nil {
		if err == storage.ErrDuplicateItem {
			in.duplicatesSkipped++
			return false, nil
		}
		return false, fmt.Errorf("pipeline: insert raw item: %w", err)
	}
	return true, nil
}
