// Package llmpolicy implements the two-tier LLM invocation contract
// shared by the relevance filter (Tier-1) and the impact extractor
// (Tier-2): atomic budget guard, pricing precheck, injection-safety
// shaping, retry+failover between a primary and secondary model, and
// strict schema validation of whatever comes back.
package llmpolicy

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/config"
	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/storage"
)

const (
	TierRelevance = "tier1"
	TierExtract   = "tier2"
)

// Policy wires the budget guard, pricing table, primary/secondary
// providers, and taxonomy repos that every Tier-1/Tier-2 call needs.
type Policy struct {
	cfg       config.LLMSettings
	budget    *BudgetGuard
	pricing   *llm.PricingConfig
	failover  *FailoverState
	primary   llm.Provider
	secondary llm.Provider
	tokens    *llm.TokenCounter
	trends    *storage.TrendRepo
	gaps      *storage.TaxonomyGapRepo
	log       zerolog.Logger
}

func New(cfg config.LLMSettings, apiUsage *storage.ApiUsageRepo, pricing *llm.PricingConfig, primary, secondary llm.Provider, trends *storage.TrendRepo, gaps *storage.TaxonomyGapRepo, log zerolog.Logger) *Policy {
	return &Policy{
		cfg:       cfg,
		budget:    NewBudgetGuard(apiUsage, cfg),
		pricing:   pricing,
		failover:  NewFailoverState(3, 2*time.Minute),
		primary:   primary,
		secondary: secondary,
		tokens:    llm.NewTokenCounter(primary.Name()),
		trends:    trends,
		gaps:      gaps,
		log:       log.With().Str("component", "llmpolicy").Logger(),
	}
}
