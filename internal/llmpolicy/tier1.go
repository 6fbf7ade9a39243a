package llmpolicy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/metrics"
)

// Tier1Item is one candidate passed through the relevance filter.
type Tier1Item struct {
	ItemID  string
	Content string
}

// Tier1Outcome is the filter's verdict for a single item: either it
// progresses to Tier-2, or it's marked noise because no trend scored
// at or above the configured relevance threshold.
type Tier1Outcome struct {
	ItemID  string
	Noise   bool
	Result  Tier1Result
}

// RunTier1 batches every candidate item against the full active trend
// roster in one call, falling back to per-item calls when the batch
// itself fails (spec.md §4.4 "A batch failure degrades to per-item
// fallback rather than aborting the batch").
func (p *Policy) RunTier1(ctx context.Context, items []Tier1Item, trendIDs []string) ([]Tier1Outcome, error) {
	if len(items) == 0 {
		return nil, nil
	}

	results, err := p.runTier1Batch(ctx, items, trendIDs)
	if err == nil {
		return results, nil
	}
	p.log.Warn().Err(err).Int("batch_size", len(items)).Msg("tier1 batch call failed, degrading to per-item fallback")

	outcomes := make([]Tier1Outcome, 0, len(items))
	for _, item := range items {
		single, serr := p.runTier1Batch(ctx, []Tier1Item{item}, trendIDs)
		if serr != nil {
			p.log.Error().Err(serr).Str("item_id", item.ItemID).Msg("tier1 per-item fallback also failed")
			continue
		}
		outcomes = append(outcomes, single...)
	}
	return outcomes, nil
}

func (p *Policy) runTier1Batch(ctx context.Context, items []Tier1Item, trendIDs []string) ([]Tier1Outcome, error) {
	estInputTokens := int64(0)
	for _, item := range items {
		estInputTokens += int64(p.tokens.CountText(item.Content))
	}
	estOutputTokens := int64(len(items) * 64)

	pricing, ok := p.pricing.GetPricing(p.primary.Name(), p.cfg.PrimaryModel)
	if !ok {
		return nil, fmt.Errorf("llmpolicy: no pricing coverage for %s/%s", p.primary.Name(), p.cfg.PrimaryModel)
	}
	estCost := pricing.InputPer1M*float64(estInputTokens)/1_000_000 + pricing.OutputPer1M*float64(estOutputTokens)/1_000_000

	reservation, err := p.budget.Reserve(ctx, TierRelevance, estInputTokens, estOutputTokens, estCost)
	if err != nil {
		return nil, err
	}

	prompt := buildTier1Prompt(items, trendIDs)
	shaped, _ := ShapeUntrustedContentBatch(items)
	newReq := func(model string) *llm.ChatRequest {
		return &llm.ChatRequest{
			Model: model,
			Messages: []llm.ChatMessage{
				{Role: "system", Content: prompt},
				{Role: "user", Content: shaped},
			},
		}
	}

	resp, usedModel, err := p.invokeWithFailover(ctx, TierRelevance, newReq)
	if err != nil {
		_ = p.budget.Release(ctx, reservation)
		return nil, err
	}

	actualCost := p.pricing.CalculateCost(providerForModel(p, usedModel), usedModel, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	_ = p.budget.Settle(ctx, reservation, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), actualCost)
	metrics.RecordLLMCost(providerForModel(p, usedModel), TierRelevance, actualCost)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llmpolicy: tier1 response had no choices")
	}
	text, _ := resp.Choices[0].Message.Content.(string)
	raw, err := llm.ExtractJSONObject("{\"results\":" + extractArrayOrWrap(text) + "}")
	if err != nil {
		return nil, fmt.Errorf("llmpolicy: tier1 schema validation: %w", err)
	}

	var parsed struct {
		Results []Tier1Result `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("llmpolicy: tier1 schema validation: %w", err)
	}

	outcomes := make([]Tier1Outcome, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		outcomes = append(outcomes, Tier1Outcome{
			ItemID: r.ItemID,
			Noise:  r.MaxRelevance() < p.cfg.Tier1RelevanceThreshold,
			Result: r,
		})
	}
	return outcomes, nil
}

func buildTier1Prompt(items []Tier1Item, trendIDs []string) string {
	var sb strings.Builder
	sb.WriteString("You are scoring news items for relevance to tracked geopolitical trends.\n")
	sb.WriteString("Trends: " + strings.Join(trendIDs, ", ") + "\n")
	sb.WriteString("For each item, score its relevance to each trend from 0 (unrelated) to 10 (central).\n")
	sb.WriteString("Respond with ONLY a JSON array, one object per item: " +
		"{\"item_id\": \"...\", \"trend_relevance\": {\"trend-id\": 0-10, ...}}\n")
	return sb.String()
}

// ShapeUntrustedContentBatch wraps every item's content in the
// injection-safety delimiter before it's concatenated into one batch
// prompt.
func ShapeUntrustedContentBatch(items []Tier1Item) (string, bool) {
	var sb strings.Builder
	anyTruncated := false
	for _, item := range items {
		shaped, truncated := ShapeUntrustedContent(item.Content, 2000)
		anyTruncated = anyTruncated || truncated
		fmt.Fprintf(&sb, "item_id: %s\n%s\n\n", item.ItemID, shaped)
	}
	return sb.String(), anyTruncated
}

// extractArrayOrWrap finds the first top-level JSON array in text,
// trimming any prose/markdown fence wrapper the model added.
func extractArrayOrWrap(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return "[]"
	}
	return text[start : end+1]
}

func providerForModel(p *Policy, model string) string {
	if model == p.cfg.SecondaryModel {
		return p.secondary.Name()
	}
	return p.primary.Name()
}
