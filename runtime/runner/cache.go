package runner

import (
	"context"
	"time"

	"github.com/anotherai/gateway/runtime/domain"
)

// defaultCacheTimeout bounds how long the Cache lookup step (spec §4.1 step
// 3) may block before the runner gives up and falls through to a live
// completion; a slow analytical store must never hold up a request.
const defaultCacheTimeout = 2 * time.Second

// Cache is the seam the Completion Runner uses to look up a previously
// stored completion by (version id, input id). It is satisfied by
// runtime/store/analytical's reader; NoopCache is used wherever no
// analytical store is wired (tests, or use_cache="never" deployments).
type Cache interface {
	// Lookup returns the stored completion for versionID/inputID, and true
	// if found. A cache miss is (nil, false, nil), never an error.
	Lookup(ctx context.Context, versionID, inputID string) (*domain.AgentCompletion, bool, error)
}

// NoopCache always misses. It is the Cache used when use_cache="never" or
// when no analytical store is configured.
type NoopCache struct{}

func (NoopCache) Lookup(context.Context, string, string) (*domain.AgentCompletion, bool, error) {
	return nil, false, nil
}

// lookupWithTimeout bounds cache.Lookup to defaultCacheTimeout so a slow or
// hung analytical store degrades to a live completion instead of stalling
// the request.
func lookupWithTimeout(ctx context.Context, cache Cache, versionID, inputID string) (*domain.AgentCompletion, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultCacheTimeout)
	defer cancel()
	return cache.Lookup(ctx, versionID, inputID)
}
