// Package cache provides a TTL key-value cache behind a driver-neutral
// interface. The in-memory driver is the default; the Redis driver backs
// multi-instance deployments with a shared cache.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals an absent or expired entry. A missing key is a
// valid, silent outcome for every driver.
var ErrNotFound = errors.New("cache: entry not found")

// Store is the cache contract consumed by the search services.
type Store interface {
	// Get returns the value for key, or ErrNotFound when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key; ttl <= 0 uses the driver default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes one entry. Idempotent.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every entry whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// Clear removes all entries. Idempotent.
	Clear(ctx context.Context) error
}

// Stats describes cache occupancy for diagnostics.
type Stats struct {
	Entries   int   `json:"entries"`
	SizeBytes int64 `json:"size_bytes"`
}

// StatsReporter is implemented by drivers that can report occupancy.
type StatsReporter interface {
	Stats() Stats
}
