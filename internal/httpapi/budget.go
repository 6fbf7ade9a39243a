package httpapi

import (
	"net/http"
	"time"

	"github.com/archwatch/sentinel/internal/llmpolicy"
)

type tierBudget struct {
	Calls        int64   `json:"calls"`
	MaxCalls     int     `json:"max_calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	MaxTokens    int64   `json:"max_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// budget implements the /budget contract from spec.md §6: today's
// Tier-1/Tier-2 call/token/cost counters against their configured
// caps, plus the cost total across both tiers of the UTC date rows for
// yesterday and today.
func (h *handlers) budget(w http.ResponseWriter, r *http.Request) {
	today := time.Now().UTC()

	tier1, err := h.d.ApiUsage.Get(r.Context(), today, llmpolicy.TierRelevance)
	if err != nil {
		internalError(w, err)
		return
	}
	tier2, err := h.d.ApiUsage.Get(r.Context(), today, llmpolicy.TierExtract)
	if err != nil {
		internalError(w, err)
		return
	}
	totalCost, err := h.d.ApiUsage.TotalCostSince(r.Context(), today.Add(-24*time.Hour))
	if err != nil {
		internalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date": today.Format("2006-01-02"),
		"tier1": tierBudget{
			Calls: tier1.Calls, MaxCalls: h.d.LLMCfg.Tier1MaxDailyCalls,
			InputTokens: tier1.InputTokens, OutputTokens: tier1.OutputTokens,
			MaxTokens: h.d.LLMCfg.Tier1MaxDailyTokens, CostUSD: tier1.EstimatedCostUSD,
		},
		"tier2": tierBudget{
			Calls: tier2.Calls, MaxCalls: h.d.LLMCfg.Tier2MaxDailyCalls,
			InputTokens: tier2.InputTokens, OutputTokens: tier2.OutputTokens,
			MaxTokens: h.d.LLMCfg.Tier2MaxDailyTokens, CostUSD: tier2.EstimatedCostUSD,
		},
		"total_cost_usd_24h": totalCost,
		"max_daily_cost_usd": h.d.LLMCfg.MaxDailyCostUSD,
	})
}
