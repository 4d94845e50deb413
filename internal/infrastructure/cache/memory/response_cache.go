// Package memory holds process-local caches for search responses and query
// embeddings.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/calebyhan/bible-rag/internal/core/domain"
)

const DefaultResponseCacheSize = 2048

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// ResponseCache keeps serialized responses so callers never share mutable
// state with the cache.
type ResponseCache struct {
	entries *lru.Cache[string, entry]
	hits    atomic.Int64
	now     func() time.Time
}

func NewResponseCache(size int) (*ResponseCache, error) {
	if size <= 0 {
		size = DefaultResponseCacheSize
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &ResponseCache{entries: entries, now: time.Now}, nil
}

func (c *ResponseCache) Get(_ context.Context, fingerprint string) (*domain.SearchResponse, bool, error) {
	e, ok := c.entries.Get(fingerprint)
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.entries.Remove(fingerprint)
		return nil, false, nil
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(e.payload, &resp); err != nil {
		c.entries.Remove(fingerprint)
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	c.hits.Add(1)
	return &resp, true, nil
}

func (c *ResponseCache) Set(_ context.Context, fingerprint string, resp *domain.SearchResponse, ttl time.Duration) error {
	if resp == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	c.entries.Add(fingerprint, entry{payload: payload, expiresAt: c.now().Add(ttl)})
	return nil
}

func (c *ResponseCache) Flush(context.Context) (int, error) {
	n := c.entries.Len()
	c.entries.Purge()
	return n, nil
}

// Stats counts hits since the process started; Flush does not reset them.
func (c *ResponseCache) Stats(context.Context) (domain.CacheStats, error) {
	return domain.CacheStats{
		Backend: "memory",
		Entries: int64(c.entries.Len()),
		Hits:    c.hits.Load(),
	}, nil
}

func (c *ResponseCache) Len() int {
	return c.entries.Len()
}
