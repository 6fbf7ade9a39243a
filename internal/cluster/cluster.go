// Package cluster groups incoming RawItems into Events and drives the
// Event lifecycle state machine (spec.md §4.3).
//
// Clusterer owns only the assignment decision and the metadata
// recompute that follows it; the time-based fading/archival sweep
// lives in storage.EventRepo.ApplyLifecycleTransitions and is driven
// by the decay/reaper worker, not by this package.
package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/vectorindex"
)

// Clusterer assigns RawItems to Events per spec.md §4.3.
//
// Candidate ranking always runs the exact in-process cosine scan
// (vectorindex.CosineSimilarity) rather than delegating to
// vectorindex.IVFFlat: the tie-break rule and the suppression check
// both need first_seen_at/suppressed alongside the similarity score,
// fields an ANN query's ORDER BY ... LIMIT shape doesn't return
// without a second round trip, and the candidate pool here is already
// bounded to one 48h window rather than the full table.
type Clusterer struct {
	events *storage.EventRepo
	items  *storage.RawItemRepo
	db     *storage.DB
	cfg    config.VectorSettings
}

func New(db *storage.DB, events *storage.EventRepo, items *storage.RawItemRepo, cfg config.VectorSettings) *Clusterer {
	return &Clusterer{events: events, items: items, db: db, cfg: cfg}
}

// Outcome is the terminal classification of one Assign call, reported
// to the pipeline orchestrator for processing_status bookkeeping.
type Outcome string

const (
	OutcomeLinked    Outcome = "linked"     // joined an existing, non-suppressed event
	OutcomeSuppressed Outcome = "suppressed" // matched a suppressed event; treated as noise
	OutcomeCreated   Outcome = "created"    // no match; new event created
)

// Result reports what Assign did with one item.
type Result struct {
	Outcome       Outcome
	EventID       uuid.UUID
	PrimaryChanged bool
	Lifecycle     models.LifecycleStatus
}

// Assign clusters one embedded RawItem into an Event. item.Embedding
// and item.EmbeddingLineage must already be populated by internal/embed;
// item itself must already be persisted (item.ID valid) before Assign
// is called.
func (c *Clusterer) Assign(ctx context.Context, item models.RawItem, at time.Time) (Result, error) {
	if item.EmbeddingLineage == nil {
		return Result{}, fmt.Errorf("cluster: item %s has no embedding lineage", item.ID)
	}

	since := at.Add(-c.cfg.ClusterWindow)
	candidates, err := c.events.FindClusterCandidates(ctx, since, item.EmbeddingLineage.Model)
	if err != nil {
		return Result{}, fmt.Errorf("cluster: load candidates: %w", err)
	}

	match, found := bestMatch(candidates, item.Embedding, c.cfg.ClusterSimilarityMin)
	if !found {
		eventID, err := c.createEvent(ctx, item, at)
		if err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeCreated, EventID: eventID, Lifecycle: models.LifecycleEmerging}, nil
	}

	if match.Suppressed {
		if err := c.items.SetStatus(ctx, item.ID, models.ItemStatusNoise, ""); err != nil {
			return Result{}, fmt.Errorf("cluster: mark noise: %w", err)
		}
		return Result{Outcome: OutcomeSuppressed, EventID: match.EventID}, nil
	}

	return c.linkAndRecompute(ctx, item, match.EventID, at)
}

// bestMatch picks the highest-similarity candidate at or above minSim,
// breaking ties by the oldest first_seen_at (spec.md §4.3 tie-break
// rule). Returns found=false when no candidate clears the threshold.
func bestMatch(candidates []storage.ClusterCandidate, embedding []float32, minSim float64) (storage.ClusterCandidate, bool) {
	var best storage.ClusterCandidate
	bestSim := -1.0
	found := false
	for _, c := range candidates {
		sim := vectorindex.CosineSimilarity(embedding, c.Embedding)
		if sim < minSim {
			continue
		}
		switch {
		case !found:
			best, bestSim, found = c, sim, true
		case sim > bestSim:
			best, bestSim = c, sim
		case sim == bestSim && c.FirstSeenAt.Before(best.FirstSeenAt):
			best = c
		}
	}
	return best, found
}

func (c *Clusterer) createEvent(ctx context.Context, item models.RawItem, at time.Time) (uuid.UUID, error) {
	e := &models.Event{
		CanonicalSummary:  item.Title,
		Embedding:         item.Embedding,
		SourceCount:       1,
		UniqueSourceCount: 1,
		LifecycleStatus:   models.LifecycleEmerging,
		FirstSeenAt:       at,
		LastMentionAt:     at,
		PrimaryItemID:     &item.ID,
	}

	var eventID uuid.UUID
	err := c.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := c.events.Create(ctx, tx, e); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		if item.EmbeddingLineage != nil {
			if err := c.events.SetEmbedding(ctx, tx, e.ID, item.Embedding, *item.EmbeddingLineage); err != nil {
				return fmt.Errorf("set event embedding: %w", err)
			}
		}
		linked, winner, err := c.items.LinkToEvent(ctx, tx, item.ID, e.ID)
		if err != nil {
			return fmt.Errorf("link item: %w", err)
		}
		if !linked {
			// a concurrent linker won the event_items race on creation;
			// resolve deterministically to their event, ours is orphaned
			// but harmless (spec.md §4.3 "resolve to the already-linked
			// event without reapplying metadata").
			eventID = winner
			return nil
		}
		eventID = e.ID
		return nil
	})
	return eventID, err
}

func (c *Clusterer) linkAndRecompute(ctx context.Context, item models.RawItem, eventID uuid.UUID, at time.Time) (Result, error) {
	var result Result
	err := c.db.WithTx(ctx, func(tx pgx.Tx) error {
		linked, winner, err := c.items.LinkToEvent(ctx, tx, item.ID, eventID)
		if err != nil {
			return fmt.Errorf("link item: %w", err)
		}
		if !linked {
			// lost the unique-link race; the item is already attached to
			// winner by another goroutine, do not recompute metadata twice.
			result = Result{Outcome: OutcomeLinked, EventID: winner}
			return nil
		}

		linkedItems, err := c.items.ListForEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list linked items: %w", err)
		}

		event, err := c.events.Get(ctx, eventID)
		if err != nil {
			return fmt.Errorf("load event: %w", err)
		}

		sourceCount := len(linkedItems)
		uniqueSourceCount := uniqueSources(linkedItems)
		primary := selectPrimary(linkedItems)
		primaryChanged := event.PrimaryItemID == nil || *event.PrimaryItemID != primary.ItemID

		newLifecycle := NextOnMention(event.LifecycleStatus)
		if newLifecycle == models.LifecycleEmerging && uniqueSourceCount >= confirmThreshold {
			newLifecycle = models.LifecycleConfirmed
		}

		var confirmedAt *time.Time
		if newLifecycle == models.LifecycleConfirmed && event.ConfirmedAt == nil {
			confirmedAt = &at
		}

		summary := event.CanonicalSummary
		var newPrimaryID *uuid.UUID
		if primaryChanged {
			newPrimaryID = &primary.ItemID
			summary = primary.Title
		}

		if err := c.events.RecomputeMetadata(ctx, tx, eventID, sourceCount, uniqueSourceCount,
			newPrimaryID, summary, newLifecycle, confirmedAt); err != nil {
			return fmt.Errorf("recompute metadata: %w", err)
		}

		result = Result{
			Outcome:        OutcomeLinked,
			EventID:        eventID,
			PrimaryChanged: primaryChanged,
			Lifecycle:      newLifecycle,
		}
		return nil
	})
	return result, err
}

func uniqueSources(items []storage.LinkedItem) int {
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, it := range items {
		seen[it.SourceID] = struct{}{}
	}
	return len(seen)
}

// selectPrimary returns the linked item with the highest source
// credibility, breaking ties toward the earliest published_at —
// items arrives pre-sorted oldest-first by ListForEvent, so a strict
// greater-than comparison preserves that tie-break.
func selectPrimary(items []storage.LinkedItem) storage.LinkedItem {
	best := items[0]
	for _, it := range items[1:] {
		if it.Credibility > best.Credibility {
			best = it
		}
	}
	return best
}
