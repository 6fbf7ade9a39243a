package llmpolicy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/metrics"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// RunTier2 extracts entities/claims/categories/summary and per-trend
// impacts from one event's combined source content (spec.md §4.4,
// Tier-2). Impacts naming an unknown trend or signal type are routed
// to the taxonomy gap queue by the caller via RouteImpacts — RunTier2
// itself only validates structural shape (spec.md §4.4 step 5).
func (p *Policy) RunTier2(ctx context.Context, eventID uuid.UUID, content string) (Tier2Result, error) {
	estInputTokens := int64(p.tokens.CountText(content))
	estOutputTokens := int64(800)

	pricing, ok := p.pricing.GetPricing(p.primary.Name(), p.cfg.PrimaryModel)
	if !ok {
		return Tier2Result{}, fmt.Errorf("llmpolicy: no pricing coverage for %s/%s", p.primary.Name(), p.cfg.PrimaryModel)
	}
	estCost := pricing.InputPer1M*float64(estInputTokens)/1_000_000 + pricing.OutputPer1M*float64(estOutputTokens)/1_000_000

	reservation, err := p.budget.Reserve(ctx, TierExtract, estInputTokens, estOutputTokens, estCost)
	if err != nil {
		return Tier2Result{}, err
	}

	shaped, _ := ShapeUntrustedContent(content, p.cfg.MaxInputTokens)
	newReq := func(model string) *llm.ChatRequest {
		return &llm.ChatRequest{
			Model: model,
			Messages: []llm.ChatMessage{
				{Role: "system", Content: tier2SystemPrompt},
				{Role: "user", Content: shaped},
			},
		}
	}

	resp, usedModel, err := p.invokeWithFailover(ctx, TierExtract, newReq)
	if err != nil {
		_ = p.budget.Release(ctx, reservation)
		return Tier2Result{}, err
	}

	actualCost := p.pricing.CalculateCost(providerForModel(p, usedModel), usedModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	_ = p.budget.Settle(ctx, reservation, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), actualCost)
	metrics.RecordLLMCost(providerForModel(p, usedModel), TierExtract, actualCost)

	if len(resp.Choices) == 0 {
		return Tier2Result{}, fmt.Errorf("llmpolicy: tier2 response had no choices")
	}
	text, _ := resp.Choices[0].Message.Content.(string)
	raw, err := llm.ExtractJSONObject(text)
	if err != nil {
		return Tier2Result{}, fmt.Errorf("llmpolicy: tier2 schema validation: %w", err)
	}

	var result Tier2Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Tier2Result{}, fmt.Errorf("llmpolicy: tier2 schema validation: %w", err)
	}
	if err := ValidateTier2(result); err != nil {
		return Tier2Result{}, err
	}

	return result, nil
}

const tier2SystemPrompt = `You are extracting structured facts from a geopolitical news event for trend tracking.
Respond with ONLY a single JSON object, no prose, no markdown fences:
{
  "entities": ["..."],
  "claims": ["..."],
  "categories": ["..."],
  "summary": "...",
  "impacts": [
    {"trend_id": "...", "signal_type": "...", "direction": "escalatory|de_escalatory", "severity": 0.0-1.0, "confidence": 0.0-1.0}
  ]
}
A trend may appear more than once only with a different signal_type each time.`

// RoutedImpact pairs a Tier-2 impact with the trend it resolved to, or
// nil when the trend_id/signal_type named an unknown taxonomy entry —
// spec.md §4.4 "Tier-2 output routing".
type RoutedImpact struct {
	Impact Tier2Impact
	Trend  *models.Trend // nil if unresolved
}

// RouteImpacts resolves each impact against the known trend roster
// (keyed by TrendDefinition.ID, the human-readable taxonomy id, not
// the DB row uuid) and indicator set, inserting a TaxonomyGap row for
// anything unresolved rather than ever applying a skipped impact.
func (p *Policy) RouteImpacts(ctx context.Context, eventID uuid.UUID, impacts []Tier2Impact, trendsByDefID map[string]models.Trend) ([]RoutedImpact, error) {
	routed := make([]RoutedImpact, 0, len(impacts))
	for _, imp := range impacts {
		trend, ok := trendsByDefID[imp.TrendID]
		if !ok {
			if err := p.gaps.Insert(ctx, &models.TaxonomyGap{
				EventID:    eventID,
				TrendID:    imp.TrendID,
				SignalType: imp.SignalType,
				Reason:     models.GapReasonUnknownTrend,
				Status:     models.GapOpen,
				Payload:    impactPayload(imp),
			}); err != nil {
				return nil, fmt.Errorf("llmpolicy: record taxonomy gap: %w", err)
			}
			routed = append(routed, RoutedImpact{Impact: imp, Trend: nil})
			continue
		}

		if _, ok := trend.Indicator(imp.SignalType); !ok {
			if err := p.gaps.Insert(ctx, &models.TaxonomyGap{
				EventID:    eventID,
				TrendID:    imp.TrendID,
				SignalType: imp.SignalType,
				Reason:     models.GapReasonUnknownSignal,
				Status:     models.GapOpen,
				Payload:    impactPayload(imp),
			}); err != nil {
				return nil, fmt.Errorf("llmpolicy: record taxonomy gap: %w", err)
			}
			routed = append(routed, RoutedImpact{Impact: imp, Trend: nil})
			continue
		}

		t := trend
		routed = append(routed, RoutedImpact{Impact: imp, Trend: &t})
	}
	return routed, nil
}

func impactPayload(imp Tier2Impact) string {
	b, err := json.Marshal(imp)
	if err != nil {
		return "{}"
	}
	return string(b)
}
