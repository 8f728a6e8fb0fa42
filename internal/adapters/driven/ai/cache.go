package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/custodia-labs/strata/internal/core/ports/driven"
)

// Ensure CachedEmbedder implements the interface.
var _ driven.EmbeddingService = (*CachedEmbedder)(nil)

// HitRecorder counts cache hits. The usage tracker satisfies it.
type HitRecorder interface {
	RecordCacheHit()
}

// CachedEmbedder memoises embeddings in a bounded LRU keyed by model and
// the SHA-256 of the text.
type CachedEmbedder struct {
	driven.EmbeddingService

	mu    sync.Mutex
	cache *lru.Cache
	hits  HitRecorder
}

// NewCachedEmbedder wraps svc with a cache of at most entries vectors.
// hits may be nil.
func NewCachedEmbedder(svc driven.EmbeddingService, entries int, hits HitRecorder) *CachedEmbedder {
	return &CachedEmbedder{
		EmbeddingService: svc,
		cache:            lru.New(entries),
		hits:             hits,
	}
}

// Embed returns a cached vector or embeds the text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds only the texts missing from the cache, in one call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int

	c.mu.Lock()
	for i, text := range texts {
		keys[i] = c.key(text)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = slices.Clone(v.([]float32))
			c.recordHit()
			continue
		}
		missing = append(missing, i)
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	batch := make([]string, len(missing))
	for j, i := range missing {
		batch[j] = texts[i]
	}
	vectors, err := c.EmbeddingService.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for j, i := range missing {
		out[i] = vectors[j]
		c.cache.Add(keys[i], slices.Clone(vectors[j]))
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.ModelName() + ":" + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) recordHit() {
	if c.hits != nil {
		c.hits.RecordCacheHit()
	}
}
