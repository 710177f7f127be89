// Package ratelimit implements a fixed-window per-client request counter.
// Counters are process-local; a multi-instance deployment rate-limits per
// instance.
package ratelimit

import (
	"sync"
	"time"
)

// Default limiter settings for the search endpoints.
const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RetryAfter returns the seconds until the window resets, rounded up,
// never below 1.
func (r Result) RetryAfter(now time.Time) int {
	if now.IsZero() {
		now = time.Now()
	}
	secs := int((r.ResetAt.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within a fixed window. Safe for
// concurrent use. In bypass mode every check is allowed with a full
// remaining budget, matching local development behavior.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]window
	limit   int
	window  time.Duration
	bypass  bool
	now     func() time.Time

	stopJanitor chan struct{}
	janitorOnce sync.Once
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBypass disables limiting entirely (local development mode).
func WithBypass(bypass bool) Option {
	return func(l *Limiter) { l.bypass = bypass }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a fixed-window limiter allowing limit requests per window.
func New(limit int, windowDur time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowDur <= 0 {
		windowDur = DefaultWindow
	}
	l := &Limiter{
		windows:     make(map[string]window),
		limit:       limit,
		window:      windowDur,
		now:         time.Now,
		stopJanitor: make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check records one request for key and reports whether it is allowed.
func (l *Limiter) Check(key string) Result {
	now := l.now()

	if l.bypass {
		return Result{Allowed: true, Remaining: l.limit, Limit: l.limit, ResetAt: now.Add(l.window)}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = window{count: 1, resetAt: now.Add(l.window)}
		l.windows[key] = w
		return Result{Allowed: true, Remaining: l.limit - 1, Limit: l.limit, ResetAt: w.resetAt}
	}

	if w.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, Limit: l.limit, ResetAt: w.resetAt}
	}

	w.count++
	l.windows[key] = w
	return Result{Allowed: true, Remaining: l.limit - w.count, Limit: l.limit, ResetAt: w.resetAt}
}

// Prune drops windows that reset in the past to bound memory.
func (l *Limiter) Prune() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// Len reports the number of tracked client windows, stale ones included.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartJanitor runs Prune every interval until StopJanitor is called.
func (l *Limiter) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultWindow
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stopJanitor:
				return
			case <-ticker.C:
				l.Prune()
			}
		}
	}()
}

// StopJanitor stops the background prune goroutine. Idempotent.
func (l *Limiter) StopJanitor() {
	l.janitorOnce.Do(func() { close(l.stopJanitor) })
}
