package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, opts ...Option) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(limit, time.Minute, opts...), clock
}

func TestLimiter_SixthAttemptDenied(t *testing.T) {
	l, _ := newTestLimiter(5)

	for i := 1; i <= 5; i++ {
		if res := l.Check("1.2.3.4"); !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}

	res := l.Check("1.2.3.4")
	if res.Allowed {
		t.Fatal("6th attempt within the window should be denied")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1)

	if res := l.Check("a"); !res.Allowed {
		t.Fatal("first request for a should pass")
	}
	if res := l.Check("b"); !res.Allowed {
		t.Error("b should have its own window")
	}
	if res := l.Check("a"); res.Allowed {
		t.Error("second request for a should be denied")
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	l, clock := newTestLimiter(1)

	_ = l.Check("a")
	if res := l.Check("a"); res.Allowed {
		t.Fatal("over-limit request should be denied")
	}

	clock.Advance(time.Minute + time.Second)

	if res := l.Check("a"); !res.Allowed {
		t.Error("request after window reset should be allowed")
	}
}

func TestLimiter_BypassMode(t *testing.T) {
	l, _ := newTestLimiter(5, WithBypass(true))

	for i := 0; i < 50; i++ {
		res := l.Check("1.2.3.4")
		if !res.Allowed {
			t.Fatalf("bypass mode denied request %d", i)
		}
		if res.Remaining != 5 {
			t.Fatalf("bypass mode Remaining = %d, want full limit", res.Remaining)
		}
	}
}

func TestLimiter_Prune(t *testing.T) {
	l, clock := newTestLimiter(5)

	l.Check("a")
	l.Check("b")
	clock.Advance(2 * time.Minute)
	l.Check("c")

	l.Prune()

	if n := l.Len(); n != 1 {
		t.Errorf("windows after Prune = %d, want 1", n)
	}
}

func TestLimiter_JanitorPrunesStaleWindows(t *testing.T) {
	l, clock := newTestLimiter(5)

	l.Check("a")
	l.Check("b")
	clock.Advance(2 * time.Minute)

	l.StartJanitor(time.Millisecond)
	defer l.StopJanitor()

	deadline := time.Now().Add(time.Second)
	for l.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("windows = %d, janitor never pruned stale entries", l.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	l.StopJanitor()
	l.StopJanitor() // idempotent
}

func TestResult_RetryAfterRoundsUp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		until time.Duration
		want  int
	}{
		{30*time.Second + 900*time.Millisecond, 31},
		{30 * time.Second, 30},
		{100 * time.Millisecond, 1},
		{-time.Second, 1},
	}

	for _, tt := range tests {
		res := Result{ResetAt: now.Add(tt.until)}
		if got := res.RetryAfter(now); got != tt.want {
			t.Errorf("RetryAfter(%v ahead) = %d, want %d", tt.until, got, tt.want)
		}
	}
}

func TestMiddleware_TooManyRequests(t *testing.T) {
	l, _ := newTestLimiter(2)
	handler := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var rec *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9")
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		remote string
		want   string
	}{
		{
			name:  "forwarded chain",
			setup: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2") },
			want:  "1.1.1.1",
		},
		{
			name:  "real ip",
			setup: func(r *http.Request) { r.Header.Set("X-Real-IP", "3.3.3.3") },
			want:  "3.3.3.3",
		},
		{
			name:   "remote addr",
			setup:  func(*http.Request) {},
			remote: "4.4.4.4:5555",
			want:   "4.4.4.4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.remote != "" {
				req.RemoteAddr = tt.remote
			}
			tt.setup(req)
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
