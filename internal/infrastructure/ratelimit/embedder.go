package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calebyhan/bible-rag/internal/core/domain"
	"github.com/calebyhan/bible-rag/internal/core/ports"
)

const ProviderEmbedding = "embedding"

// Embedder charges the embedding budget for every call that reaches the
// wrapped provider. Put it beneath any cache so hits stay free.
type Embedder struct {
	inner    ports.Embedder
	limiter  ports.RateLimiter
	provider string
}

func NewEmbedder(inner ports.Embedder, limiter ports.RateLimiter) *Embedder {
	return &Embedder{inner: inner, limiter: limiter, provider: ProviderEmbedding}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil && !e.limiter.TryAcquire(e.provider) {
		slog.Warn("rate_limited", "provider", e.provider)
		return nil, domain.WrapError(domain.ErrRateLimited, "embed query", fmt.Errorf("provider %s budget exhausted", e.provider))
	}
	return e.inner.EmbedQuery(ctx, text)
}

func (e *Embedder) ModelName() string {
	return e.inner.ModelName()
}
