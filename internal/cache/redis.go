package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chabad-mafteach/mafteach/internal/kv"
)

// Redis adapts a kv.Store to the cache contract so multiple instances
// share one cache. Expiry is server-side; Cleanup is not needed.
type Redis struct {
	store      kv.Store
	keyPrefix  string
	defaultTTL time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis creates a shared cache over a kv.Store. keyPrefix namespaces
// this service's keys within the store.
func NewRedis(store kv.Store, keyPrefix string, defaultTTL time.Duration) *Redis {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Redis{store: store, keyPrefix: keyPrefix, defaultTTL: defaultTTL}
}

// Get returns the value for key or ErrNotFound.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.store.Get(ctx, r.keyPrefix+key)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return data, nil
}

// Set stores value under key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.store.SetWithTTL(ctx, r.keyPrefix+key, value, ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.store.Del(ctx, r.keyPrefix+key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := r.store.Scan(ctx, r.keyPrefix+prefix+"*")
	if err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	for _, k := range keys {
		if err := r.store.Del(ctx, k); err != nil {
			return fmt.Errorf("cache delete %s: %w", k, err)
		}
	}
	return nil
}

// Clear removes all entries under the service's key prefix.
func (r *Redis) Clear(ctx context.Context) error {
	return r.DeletePrefix(ctx, "")
}
