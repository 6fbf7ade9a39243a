// Package pipeline is the cost-first orchestrator that walks a pending
// RawItem through dedup, relevance filtering, embedding, clustering,
// extraction, and trend-evidence application (spec.md §4.6).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/cluster"
	"github.com/archwatch/sentinel/internal/dedup"
	"github.com/archwatch/sentinel/internal/embed"
	"github.com/archwatch/sentinel/internal/evidence"
	"github.com/archwatch/sentinel/internal/llmpolicy"
	"github.com/archwatch/sentinel/internal/metrics"
	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// Orchestrator drives one batch of pending items through every stage
// of spec.md §4.6's cost-first pipeline. Tier-1 runs as a single batch
// call before any embedding happens, so noise never pays embed cost;
// Tier-2 then runs once per distinct Event touched by the batch rather
// than once per item, since several items in one batch commonly
// cluster together.
type Orchestrator struct {
	db       *storage.DB
	rawItems *storage.RawItemRepo
	events   *storage.EventRepo
	sources  *storage.SourceRepo
	trends   *storage.TrendRepo

	dedup     *dedup.Checker
	cluster   *cluster.Clusterer
	embedder  embed.Embedder
	policy    *llmpolicy.Policy
	ledger    *evidence.Ledger

	dedupWindow time.Duration

	log zerolog.Logger
}

func New(
	db *storage.DB,
	rawItems *storage.RawItemRepo,
	events *storage.EventRepo,
	sources *storage.SourceRepo,
	trends *storage.TrendRepo,
	dedupChecker *dedup.Checker,
	clusterer *cluster.Clusterer,
	embedder embed.Embedder,
	policy *llmpolicy.Policy,
	ledger *evidence.Ledger,
	dedupWindow time.Duration,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		db: db,
		rawItems: rawItems, events: events, sources: sources, trends: trends,
		dedup: dedupChecker, cluster: clusterer, embedder: embedder, policy: policy, ledger: ledger,
		dedupWindow: dedupWindow,
		log: log.With().Str("component", "pipeline").Logger(),
	}
}

// BatchResult summarizes what happened to one ProcessBatch call, for
// worker-loop logging and metrics.
type BatchResult struct {
	Fetched    int
	Noise      int
	Clustered  int
	Errored    int
	EventsSeen int
}

// ProcessBatch loads up to limit pending items and runs them through
// every pipeline stage. Suppressed events bypass Tier-2 and evidence
// application (spec.md §4.6 "Suppressed events bypass steps 4–6" —
// here the suppression check happens inside cluster.Assign itself, so
// a suppressed item is already marked noise by the time this method's
// later stages run).
func (o *Orchestrator) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	var result BatchResult

	items, err := o.rawItems.ListPending(ctx, limit)
	if err != nil {
		return result, fmt.Errorf("pipeline: list pending: %w", err)
	}
	result.Fetched = len(items)
	if len(items) == 0 {
		return result, nil
	}

	for _, item := range items {
		if err := o.rawItems.MarkProcessing(ctx, item.ID); err != nil {
			o.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("mark processing failed")
		}
	}

	trendIDs, err := o.trendDefIDs(ctx)
	if err != nil {
		return result, err
	}

	tier1Items := make([]llmpolicy.Tier1Item, len(items))
	for i, item := range items {
		tier1Items[i] = llmpolicy.Tier1Item{ItemID: item.ID.String(), Content: item.Text}
	}
	outcomes, err := o.policy.RunTier1(ctx, tier1Items, trendIDs)
	if err != nil {
		return result, fmt.Errorf("pipeline: tier1: %w", err)
	}
	relevant := make(map[string]bool, len(outcomes))
	for _, oc := range outcomes {
		if !oc.Noise {
			relevant[oc.ItemID] = true
		}
	}

	touchedEvents := make(map[uuid.UUID]bool)
	for _, item := range items {
		if !relevant[item.ID.String()] {
			result.Noise++
			if err := o.rawItems.SetStatus(ctx, item.ID, models.ItemStatusNoise, ""); err != nil {
				o.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("mark noise failed")
			}
			metrics.RecordPipelineStage("noise", time.Since(item.CreatedAt))
			continue
		}

		stageStart := time.Now()
		eventID, suppressed, err := o.embedAndCluster(ctx, item)
		if err != nil {
			result.Errored++
			if setErr := o.rawItems.SetStatus(ctx, item.ID, models.ItemStatusError, err.Error()); setErr != nil {
				o.log.Error().Err(setErr).Str("item_id", item.ID.String()).Msg("mark error failed")
			}
			o.log.Error().Err(err).Str("item_id", item.ID.String()).Msg("embed/cluster failed")
			metrics.RecordPipelineStage("error", time.Since(stageStart))
			continue
		}
		result.Clustered++
		metrics.RecordPipelineStage("clustered", time.Since(stageStart))
		if !suppressed {
			touchedEvents[eventID] = true
		}
	}

	trendsByDefID, err := o.loadTrendsByDefID(ctx)
	if err != nil {
		return result, err
	}

	result.EventsSeen = len(touchedEvents)
	for eventID := range touchedEvents {
		extractStart := time.Now()
		if err := o.extractAndScore(ctx, eventID, trendsByDefID); err != nil {
			o.log.Error().Err(err).Str("event_id", eventID.String()).Msg("tier2/evidence failed")
			continue
		}
		metrics.RecordPipelineStage("extracted", time.Since(extractStart))
	}

	return result, nil
}

// embedAndCluster runs spec.md §4.6 steps 3–4 for one item: embed,
// then a defensive embedding-similarity dedup pass (folded in here
// since it requires the embedding this step just produced), then
// cluster assignment.
func (o *Orchestrator) embedAndCluster(ctx context.Context, item models.RawItem) (eventID uuid.UUID, suppressed bool, err error) {
	vec, lineage, err := o.embedder.Embed(ctx, item.Text)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("embed: %w", err)
	}
	if err := o.rawItems.SetEmbedding(ctx, item.ID, vec, lineage); err != nil {
		return uuid.Nil, false, fmt.Errorf("persist embedding: %w", err)
	}
	item.Embedding = vec
	item.EmbeddingLineage = &lineage

	since := lineage.GeneratedAt.Add(-o.dedupWindow)
	pool, err := o.rawItems.ListRecentWithEmbedding(ctx, since, 500)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load dedup pool: %w", err)
	}
	if verdict, err := o.dedup.CheckEmbedding(ctx, vec, lineage.Model, pool); err == nil && verdict.IsDuplicate {
		if err := o.rawItems.SetStatus(ctx, item.ID, models.ItemStatusNoise, "embedding duplicate of "+verdict.MatchedID.String()); err != nil {
			return uuid.Nil, false, fmt.Errorf("mark embedding duplicate: %w", err)
		}
		return uuid.Nil, true, nil
	}

	res, err := o.cluster.Assign(ctx, item, time.Now())
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("cluster assign: %w", err)
	}
	return res.EventID, res.Outcome == cluster.OutcomeSuppressed, nil
}

// extractAndScore runs spec.md §4.6 steps 5–6 for one event: Tier-2
// extraction over its primary item's content, persisting the
// structured extraction, then routing and applying every impact whose
// trend/signal_type resolved.
func (o *Orchestrator) extractAndScore(ctx context.Context, eventID uuid.UUID, trendsByDefID map[string]models.Trend) error {
	event, err := o.events.Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if event.Suppressed {
		return nil
	}
	if event.PrimaryItemID == nil {
		return fmt.Errorf("event %s has no primary item", eventID)
	}
	primary, err := o.rawItems.Get(ctx, *event.PrimaryItemID)
	if err != nil {
		return fmt.Errorf("load primary item: %w", err)
	}
	primarySource, err := o.sources.Get(ctx, primary.SourceID)
	if err != nil {
		return fmt.Errorf("load primary source: %w", err)
	}

	tier2, err := o.policy.RunTier2(ctx, eventID, primary.Text)
	if err != nil {
		return fmt.Errorf("tier2: %w", err)
	}

	claims := claimGraphFrom(tier2.Claims)
	var when *time.Time
	if !primary.PublishedAt.IsZero() {
		when = &primary.PublishedAt
	}
	extractErr := o.db.WithTx(ctx, func(tx pgx.Tx) error {
		return o.events.SetExtraction(ctx, tx, eventID, nil, tier2.Summary, nil, when, claims, tier2.Categories)
	})
	if extractErr != nil {
		o.log.Warn().Err(extractErr).Str("event_id", eventID.String()).Msg("persist extraction failed")
	}

	linkedItems, err := o.rawItems.ListForEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list linked items: %w", err)
	}
	sourceWeights := make([]float64, 0, len(linkedItems))
	seenSources := make(map[uuid.UUID]bool, len(linkedItems))
	for _, li := range linkedItems {
		if seenSources[li.SourceID] {
			continue
		}
		seenSources[li.SourceID] = true
		sourceWeights = append(sourceWeights, li.Credibility)
	}

	routed, err := o.policy.RouteImpacts(ctx, eventID, tier2.Impacts, trendsByDefID)
	if err != nil {
		return fmt.Errorf("route impacts: %w", err)
	}

	eventAgeDays := time.Since(event.FirstSeenAt).Hours() / 24
	for _, r := range routed {
		if r.Trend == nil {
			continue
		}
		indicator, ok := r.Trend.Indicator(r.Impact.SignalType)
		if !ok {
			continue
		}
		imp := evidence.Impact{
			Trend:                    *r.Trend,
			Indicator:                indicator,
			EventID:                  eventID,
			Credibility:              primarySource.CredibilityMultiplier(),
			IndependentSourceWeights: sourceWeights,
			ContradictionLinks:       claims.ContradictionLinkCount(),
			EventAgeDays:             eventAgeDays,
			Severity:                 r.Impact.Severity,
			Confidence:               r.Impact.Confidence,
			Reasoning:                tier2.Summary,
		}
		if _, err := o.ledger.Apply(ctx, time.Now(), imp); err != nil {
			o.log.Error().Err(err).
				Str("event_id", eventID.String()).
				Str("trend_id", r.Impact.TrendID).
				Str("signal_type", r.Impact.SignalType).
				Msg("apply impact failed")
		}
	}
	return nil
}

func claimGraphFrom(claims []string) models.ClaimGraph {
	g := models.ClaimGraph{Claims: make([]models.Claim, len(claims))}
	for i, text := range claims {
		g.Claims[i] = models.Claim{ID: uuid.NewString(), Text: text}
	}
	return g
}

func (o *Orchestrator) trendDefIDs(ctx context.Context) ([]string, error) {
	active, err := o.trends.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active trends: %w", err)
	}
	ids := make([]string, len(active))
	for i, t := range active {
		ids[i] = t.Definition.ID
	}
	return ids, nil
}

func (o *Orchestrator) loadTrendsByDefID(ctx context.Context) (map[string]models.Trend, error) {
	active, err := o.trends.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active trends: %w", err)
	}
	byDefID := make(map[string]models.Trend, len(active))
	for _, t := range active {
		byDefID[t.Definition.ID] = t
	}
	return byDefID, nil
}
