// Package ratelimit enforces per-provider requests-per-minute budgets for
// outbound model calls.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per provider. A bucket of size rpm that
// refills at rpm per minute never admits more than 2*rpm calls in any
// one-minute window and admits a steady rpm per minute.
// Providers without a budget are unlimited.
type Limiter struct {
	mu       sync.Mutex
	budgets  map[string]int
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

func New(budgets map[string]int) *Limiter {
	normalized := make(map[string]int, len(budgets))
	for provider, rpm := range budgets {
		provider = strings.ToLower(strings.TrimSpace(provider))
		if provider == "" {
			continue
		}
		normalized[provider] = rpm
	}
	return &Limiter{
		budgets:  normalized,
		limiters: make(map[string]*rate.Limiter, len(normalized)),
		now:      time.Now,
	}
}

// TryAcquire reports whether a call to provider fits its budget. It never blocks.
func (l *Limiter) TryAcquire(provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))

	l.mu.Lock()
	defer l.mu.Unlock()

	rpm, ok := l.budgets[provider]
	if !ok {
		return true
	}
	if rpm <= 0 {
		return false
	}
	lim, ok := l.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
		l.limiters[provider] = lim
	}
	return lim.AllowN(l.now(), 1)
}

// Remaining reports the whole tokens currently available to provider, or -1
// when the provider is unlimited.
func (l *Limiter) Remaining(provider string) int {
	provider = strings.ToLower(strings.TrimSpace(provider))

	l.mu.Lock()
	defer l.mu.Unlock()

	rpm, ok := l.budgets[provider]
	if !ok {
		return -1
	}
	lim, ok := l.limiters[provider]
	if !ok {
		return max(rpm, 0)
	}
	return int(lim.TokensAt(l.now()))
}
