// Package taxonomy implements the triage status machine over the
// taxonomy gap queue (spec.md §4.4/§4.9/§6's /taxonomy-gaps surface):
// every gap starts open, and a human reviewer moves it to resolved
// (the taxonomy was extended to cover it) or rejected (the impact was
// noise, no taxonomy change needed).
package taxonomy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// Triage wraps TaxonomyGapRepo with the status-transition rules: a
// gap can only leave "open" once, and only into "resolved" or
// "rejected" — never back to open, and never from one terminal state
// to the other.
type Triage struct {
	gaps *storage.TaxonomyGapRepo
	log  zerolog.Logger
}

func New(gaps *storage.TaxonomyGapRepo, log zerolog.Logger) *Triage {
	return &Triage{gaps: gaps, log: log.With().Str("component", "taxonomy").Logger()}
}

// ErrAlreadyTriaged is returned when a reviewer attempts to resolve or
// reject a gap that has already left the open state.
var ErrAlreadyTriaged = fmt.Errorf("taxonomy: gap already triaged")

// Open lists every untriaged gap, oldest first — the /taxonomy-gaps
// review queue.
func (t *Triage) Open(ctx context.Context) ([]models.TaxonomyGap, error) {
	return t.gaps.ListOpen(ctx)
}

// Resolve marks a gap as resolved: the reviewer extended the taxonomy
// (a new trend definition, indicator, or signal alias) to cover it.
func (t *Triage) Resolve(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.transition(ctx, id, models.GapResolved, at)
}

// Reject marks a gap as rejected: the unresolved impact was noise or a
// model hallucination, and no taxonomy change is warranted.
func (t *Triage) Reject(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.transition(ctx, id, models.GapRejected, at)
}

func (t *Triage) transition(ctx context.Context, id uuid.UUID, to models.GapStatus, at time.Time) error {
	gap, err := t.gaps.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("taxonomy: load gap: %w", err)
	}
	if gap.Status != models.GapOpen {
		return ErrAlreadyTriaged
	}
	if err := t.gaps.Resolve(ctx, id, to, at); err != nil {
		return fmt.Errorf("taxonomy: transition gap: %w", err)
	}
	t.log.Info().Str("gap_id", id.String()).Str("status", string(to)).Msg("taxonomy gap triaged")
	return nil
}
