package rules

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const cacheKey = "rules"

// CachedProvider memoizes another provider for a fixed TTL. Errors are not cached.
type CachedProvider struct {
	next  Provider
	cache *expirable.LRU[string, Rules]
}

// NewCachedProvider wraps next. A non-positive ttl defaults to one minute.
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{
		next:  next,
		cache: expirable.NewLRU[string, Rules](1, nil, ttl),
	}
}

// Get implements Provider.
func (p *CachedProvider) Get(ctx context.Context) (Rules, error) {
	if r, ok := p.cache.Get(cacheKey); ok {
		return r.Clone(), nil
	}
	r, err := p.next.Get(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.Add(cacheKey, r.Clone())
	return r, nil
}

// Invalidate drops the cached value.
func (p *CachedProvider) Invalidate() { p.cache.Purge() }
