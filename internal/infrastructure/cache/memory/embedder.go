package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/calebyhan/bible-rag/internal/core/ports"
)

const (
	DefaultEmbeddingCacheSize = 10000
	DefaultEmbeddingCacheTTL  = 7 * 24 * time.Hour
)

// CachedEmbedder memoizes query vectors per model. Callers get their own
// copy of every vector.
type CachedEmbedder struct {
	inner ports.Embedder
	cache *expirable.LRU[string, []float32]
}

func NewCachedEmbedder(inner ports.Embedder, size int, ttl time.Duration) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultEmbeddingCacheTTL
	}
	return &CachedEmbedder{
		inner: inner,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		return slices.Clone(vec), nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, slices.Clone(vec))
	return vec, nil
}

func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}
