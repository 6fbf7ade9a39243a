package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/archwatch/sentinel/internal/dedup"
	"github.com/archwatch/sentinel/internal/storage/models"
)

// cachedVector is the on-disk representation of one memoized embed
// call, keyed by content hash + model so a changed model version never
// serves a stale vector under the old lineage.
type cachedVector struct {
	Embedding []float32              `json:"embedding"`
	Lineage   models.EmbeddingLineage `json:"lineage"`
}

// CachingEmbedder fronts an Embedder with a badger-backed memoization
// cache, the same exact-hash fast path the teacher's semantic cache
// uses before falling back to a real embedding call — except here the
// key is the content hash rather than a normalized prompt, since the
// input text for a given raw item never changes.
type CachingEmbedder struct {
	inner Embedder
	db    *badger.DB
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachingEmbedder opens (or creates) a badger store at dir. Callers
// must call Close when done.
func NewCachingEmbedder(inner Embedder, dir string, ttl time.Duration, log zerolog.Logger) (*CachingEmbedder, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("embed: open cache at %s: %w", dir, err)
	}
	return &CachingEmbedder{
		inner: inner, db: db, ttl: ttl,
		log: log.With().Str("component", "embed_cache").Logger(),
	}, nil
}

func (c *CachingEmbedder) Close() error { return c.db.Close() }

func (c *CachingEmbedder) Model() string    { return c.inner.Model() }
func (c *CachingEmbedder) Dimensions() int  { return c.inner.Dimensions() }

func (c *CachingEmbedder) cacheKey(text string) []byte {
	return []byte(c.inner.Model() + ":" + dedup.ContentHash(text))
}

// Embed serves from cache on a hit; on a miss it calls the wrapped
// embedder and stores the result before returning.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, models.EmbeddingLineage, error) {
	key := c.cacheKey(text)

	var cached cachedVector
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if jerr := json.Unmarshal(val, &cached); jerr != nil {
				return jerr
			}
			found = true
			return nil
		})
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("embed cache read failed, falling back to live call")
	}
	if found {
		return cached.Embedding, cached.Lineage, nil
	}

	vec, lineage, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, models.EmbeddingLineage{}, err
	}

	payload, merr := json.Marshal(cachedVector{Embedding: vec, Lineage: lineage})
	if merr == nil {
		werr := c.db.Update(func(txn *badger.Txn) error {
			entry := badger.NewEntry(key, payload)
			if c.ttl > 0 {
				entry = entry.WithTTL(c.ttl)
			}
			return txn.SetEntry(entry)
		})
		if werr != nil {
			c.log.Warn().Err(werr).Msg("embed cache write failed")
		}
	}

	return vec, lineage, nil
}
