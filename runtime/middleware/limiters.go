package middleware

import (
	"context"
	"sync"

	"goa.design/pulse/rmap"
)

// Limiters lazily creates and caches one AdaptiveRateLimiter per
// (tenant, provider) pair, so a tenant backing off against one provider
// never throttles another tenant's calls, and a tenant's spend against one
// provider never throttles its calls to a different provider.
type Limiters struct {
	mu   sync.Mutex
	byID map[string]*AdaptiveRateLimiter

	cluster    *rmap.Map
	initialTPM float64
	maxTPM     float64
}

// NewLimiters builds a Limiters registry. cluster may be nil, in which case
// every limiter it creates is process-local; otherwise budgets are shared
// across the Pulse-replicated cluster keyed by tenant and provider.
func NewLimiters(cluster *rmap.Map, initialTPM, maxTPM float64) *Limiters {
	return &Limiters{
		byID:       make(map[string]*AdaptiveRateLimiter),
		cluster:    cluster,
		initialTPM: initialTPM,
		maxTPM:     maxTPM,
	}
}

// ForTenantProvider returns the AdaptiveRateLimiter for the given tenant and
// provider, creating it on first use.
func (l *Limiters) ForTenantProvider(ctx context.Context, tenantUID, provider string) *AdaptiveRateLimiter {
	key := tenantUID + "/" + provider

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byID[key]; ok {
		return existing
	}
	limiter := NewAdaptiveRateLimiter(ctx, l.cluster, "ratelimit:"+key, l.initialTPM, l.maxTPM)
	l.byID[key] = limiter
	return limiter
}
