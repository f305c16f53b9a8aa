package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(perMinute int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewLimiter(Config{RequestsPerMinute: perMinute})
	rl.now = clock.now
	return rl, clock
}

func TestAllowWithinWindow(t *testing.T) {
	rl, clock := newTestLimiter(3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d rejected, want allowed", i+1)
		}
	}
	if rl.Allow("a") {
		t.Fatal("4th request allowed, want rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("other client rejected")
	}

	clock.t = clock.t.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("request after window rejected")
	}
	if got := rl.GetMetrics().TotalHits; got != 1 {
		t.Fatalf("TotalHits = %d, want 1", got)
	}
}

func TestRejectedRequestsDoNotExtendWindow(t *testing.T) {
	rl, clock := newTestLimiter(1)

	rl.Allow("a")
	clock.t = clock.t.Add(30 * time.Second)
	if rl.Allow("a") {
		t.Fatal("second request allowed")
	}
	clock.t = clock.t.Add(31 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("request in a new window rejected")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(10)
	rl.Allow("old")
	clock.t = clock.t.Add(11 * time.Minute)
	rl.Allow("new")

	if removed := rl.CleanupStaleEntries(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if got := rl.ActiveClients(); got != 1 {
		t.Fatalf("ActiveClients = %d, want 1", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 1, CleanupInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(1)
	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	tests := []struct {
		name string
		want int
	}{
		{"first request passes", http.StatusOK},
		{"second request limited", http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareCustomOnLimit(t *testing.T) {
	rl, _ := newTestLimiter(1)
	called := false
	h := rl.Middleware(func(*http.Request) string { return "ip" }, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !called || rec.Code != http.StatusTeapot {
		t.Fatalf("onLimit called=%v status=%d", called, rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatal("missing Retry-After header")
	}
}
