package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is applied when Set receives a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// DefaultCleanupInterval bounds memory growth between reads.
const DefaultCleanupInterval = 10 * time.Minute

type entry struct {
	data       []byte
	insertedAt time.Time
	ttl        time.Duration
}

// Memory is a process-local TTL cache. Expired entries are deleted lazily
// on read and swept by Cleanup. Safe for concurrent use. The zero value is
// not usable; construct with NewMemory.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time

	stopJanitor chan struct{}
	janitorOnce sync.Once
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithDefaultTTL overrides the default entry TTL.
func WithDefaultTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.defaultTTL = ttl }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:     make(map[string]entry),
		defaultTTL:  DefaultTTL,
		now:         time.Now,
		stopJanitor: make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ Store = (*Memory)(nil)

// Get returns the value for key or ErrNotFound. An expired entry is
// deleted as a side effect.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(e) {
		delete(m.entries, key)
		return nil, ErrNotFound
	}
	return e.data, nil
}

// Set stores value under key, overwriting any existing entry.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{data: value, insertedAt: m.now(), ttl: ttl}
	return nil
}

// Delete removes one entry.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Clear removes all entries.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]entry)
	return nil
}

// Cleanup sweeps and removes all expired entries.
func (m *Memory) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, e := range m.entries {
		if m.expired(e) {
			delete(m.entries, k)
		}
	}
}

// Len returns the number of stored entries, including not-yet-swept
// expired ones.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}

// Stats returns entry count and a rough memory estimate.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var size int64
	for k, e := range m.entries {
		size += int64(len(k) + len(e.data))
	}
	return Stats{Entries: len(m.entries), SizeBytes: size}
}

// StartJanitor runs Cleanup every interval until StopJanitor is called.
func (m *Memory) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopJanitor:
				return
			case <-ticker.C:
				m.Cleanup()
			}
		}
	}()
}

// StopJanitor stops the background cleanup goroutine. Idempotent.
func (m *Memory) StopJanitor() {
	m.janitorOnce.Do(func() { close(m.stopJanitor) })
}

func (m *Memory) expired(e entry) bool {
	return m.now().Sub(e.insertedAt) > e.ttl
}
