// Package embed wraps the embedding model behind a narrow interface,
// applies the input truncation policy spec.md §4.1/§4.3 require, and
// fronts every call with a persistent cache so re-embedding an
// unchanged item never happens twice.
package embed

import (
	"context"
	"time"

	"github.com/archwatch/sentinel/internal/storage/models"
)

// Embedder produces a fixed-dimension vector for a piece of text along
// with the lineage metadata the caller must persist alongside it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, models.EmbeddingLineage, error)
	Model() string
	Dimensions() int
}

// charsPerToken is the same conservative stdlib-only estimate the
// teacher's default token-counting strategy uses for providers without
// a dedicated tokenizer.
const charsPerToken = 4

// truncationPolicy bounds input to maxTokens, retaining the leading
// portion of the text (the lede / most information-dense part of a
// news item) and reporting whether truncation occurred.
type truncationPolicy struct {
	maxTokens int
}

func newTruncationPolicy(maxTokens int) truncationPolicy {
	return truncationPolicy{maxTokens: maxTokens}
}

// apply returns the (possibly truncated) text, the estimated retained
// token count, and whether truncation occurred.
func (p truncationPolicy) apply(text string) (retained string, tokens int, truncated bool) {
	estimate := len(text) / charsPerToken
	if estimate <= p.maxTokens {
		return text, estimate, false
	}
	maxChars := p.maxTokens * charsPerToken
	if maxChars > len(text) {
		maxChars = len(text)
	}
	return text[:maxChars], p.maxTokens, true
}

// lineageFor builds the EmbeddingLineage metadata for one embed call,
// recording whether truncation happened so downstream dedup/cluster
// comparisons can reason about partial-text embeddings.
func lineageFor(model string, inputTokens, retainedTokens int, truncated bool) models.EmbeddingLineage {
	return models.EmbeddingLineage{
		Model:          model,
		GeneratedAt:    time.Now(),
		InputTokens:    inputTokens,
		RetainedTokens: retainedTokens,
		Truncated:      truncated,
	}
}
