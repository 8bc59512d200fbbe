package rules

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/modguard/internal/cache"
)

// DefaultRedisKey is the key the rules document is stored under.
const DefaultRedisKey = "rules"

// JSONStore is the subset of cache.Manager used for rules.
type JSONStore interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisProvider loads rules from redis. A missing key yields the fallback.
type RedisProvider struct {
	store    JSONStore
	key      string
	fallback Rules
}

// NewRedisProvider creates a provider. An empty key means DefaultRedisKey and
// a nil fallback means Default.
func NewRedisProvider(store JSONStore, key string, fallback Rules) *RedisProvider {
	if key == "" {
		key = DefaultRedisKey
	}
	if fallback == nil {
		fallback = Default()
	}
	return &RedisProvider{store: store, key: key, fallback: fallback.Clone()}
}

// Get implements Provider.
func (p *RedisProvider) Get(ctx context.Context) (Rules, error) {
	var r Rules
	err := p.store.GetJSON(ctx, p.key, &r)
	if errors.Is(err, cache.ErrCacheMiss) {
		return p.fallback.Clone(), nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Publish stores rules without expiry.
func (p *RedisProvider) Publish(ctx context.Context, r Rules) error {
	return p.store.SetJSON(ctx, p.key, r, -1)
}
