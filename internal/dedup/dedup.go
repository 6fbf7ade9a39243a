package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/storage"
	"github.com/archwatch/sentinel/internal/storage/models"
	"github.com/archwatch/sentinel/internal/vectorindex"
)

// ContentHash returns the stable SHA-256 hex digest of an item's text,
// normalized the same way regardless of whitespace/case noise
// introduced by different scrapers of the same wire copy.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Verdict reports the outcome of a duplicate check against one raw
// item.
type Verdict struct {
	IsDuplicate bool
	MatchedID   *uuid.UUID
	MatchMethod string // "url" | "external_id" | "content_hash" | "embedding"
	Similarity  float64
}

// Checker runs the full dedup pipeline: the three-way exact lookup
// first (cheap, index-backed), then — only if nothing matched and an
// embedding is available — a similarity scan over recent items.
type Checker struct {
	rawItems   *storage.RawItemRepo
	normalizer *URLNormalizer
	window     time.Duration
	simMin     float64
	log        zerolog.Logger
}

func NewChecker(rawItems *storage.RawItemRepo, normalizer *URLNormalizer, recencyWindow time.Duration, embeddingSimilarityMin float64, log zerolog.Logger) *Checker {
	return &Checker{
		rawItems: rawItems, normalizer: normalizer, window: recencyWindow,
		simMin: embeddingSimilarityMin, log: log.With().Str("component", "dedup").Logger(),
	}
}

// CheckExact runs the normalized-URL / (source, external_id) /
// content-hash lookup — spec.md §4.1(b)'s first line of defense, fully
// delegated to an indexed database query.
func (c *Checker) CheckExact(ctx context.Context, sourceID uuid.UUID, externalID, rawURL, text string, fetchedAt time.Time) (Verdict, error) {
	normalizedURL := c.normalizer.Normalize(rawURL)
	hash := ContentHash(text)
	since := fetchedAt.Add(-c.window)

	match, err := c.rawItems.FindDuplicate(ctx, sourceID, externalID, normalizedURL, hash, since)
	if err != nil {
		return Verdict{}, fmt.Errorf("dedup: exact check: %w", err)
	}
	if match == nil {
		return Verdict{}, nil
	}

	method := "content_hash"
	switch {
	case match.NormalizedURL == normalizedURL:
		method = "url"
	case match.SourceID == sourceID && match.ExternalID == externalID:
		method = "external_id"
	}
	return Verdict{IsDuplicate: true, MatchedID: &match.ID, MatchMethod: method, Similarity: 1.0}, nil
}

// CheckEmbedding compares candidateEmbedding against a pool of recent
// items' embeddings. Per spec.md §4.1/§4.3's fail-safe rule, a
// candidate whose embedding model differs from an existing item's
// lineage is skipped rather than compared — cosine similarity across
// different embedding spaces is meaningless and a false match there
// would silently drop a genuinely new item.
func (c *Checker) CheckEmbedding(ctx context.Context, candidateEmbedding []float32, candidateModel string, pool []models.RawItem) (Verdict, error) {
	best := Verdict{}
	for _, item := range pool {
		if item.EmbeddingLineage == nil || item.EmbeddingLineage.Model != candidateModel {
			continue
		}
		if len(item.Embedding) == 0 {
			continue
		}
		sim := vectorindex.CosineSimilarity(candidateEmbedding, item.Embedding)
		if sim >= c.simMin && sim > best.Similarity {
			id := item.ID
			best = Verdict{IsDuplicate: true, MatchedID: &id, MatchMethod: "embedding", Similarity: sim}
		}
	}
	return best, nil
}
