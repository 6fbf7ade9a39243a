package embed

import (
	"context"
	"fmt"

	"github.com/archwatch/sentinel/internal/llm"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// ProviderEmbedder adapts an llm.Provider's Embeddings call (the
// OpenAI-compatible /embeddings endpoint shape) into the narrow
// Embedder interface this package works with, applying the truncation
// policy before every call.
type ProviderEmbedder struct {
	p          llm.Provider
	model      string
	dimensions int
	policy     truncationPolicy
}

func NewProviderEmbedder(p llm.Provider, model string, dimensions, maxInputTokens int) *ProviderEmbedder {
	return &ProviderEmbedder{
		p: p, model: model, dimensions: dimensions,
		policy: newTruncationPolicy(maxInputTokens),
	}
}

func (e *ProviderEmbedder) Model() string   { return e.model }
func (e *ProviderEmbedder) Dimensions() int { return e.dimensions }

func (e *ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, models.EmbeddingLineage, error) {
	truncatedText, retainedTokens, truncated := e.policy.apply(text)
	inputTokens := len(text) / charsPerToken

	resp, err := e.p.Embeddings(ctx, &llm.EmbeddingsRequest{
		Model: e.model,
		Input: truncatedText,
	})
	if err != nil {
		return nil, models.EmbeddingLineage{}, fmt.Errorf("embed: provider call: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, models.EmbeddingLineage{}, fmt.Errorf("embed: provider returned no vectors")
	}

	vec64 := resp.Data[0].Embedding
	vec32 := make([]float32, len(vec64))
	for i, v := range vec64 {
		vec32[i] = float32(v)
	}

	lineage := lineageFor(e.model, inputTokens, retainedTokens, truncated)
	return vec32, lineage, nil
}
