package ratelimiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

func TestMiddleware(t *testing.T) {
	rl := NewIPRateLimiter(2, time.Minute, 2, CleanupOpts{TTL: time.Minute, Interval: time.Minute})
	defer rl.Stop()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	handler := middleware.RealIP(rl.Middleware(next))

	do := func(remote, forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	tests := []struct {
		name      string
		remote    string
		forwarded string
		wantCode  int
	}{
		{"first", "10.0.0.1:1000", "", http.StatusOK},
		{"second_same_ip_new_port", "10.0.0.1:2000", "", http.StatusOK},
		{"third_is_limited", "10.0.0.1:3000", "", http.StatusTooManyRequests},
		{"other_ip", "10.0.0.2:1000", "", http.StatusOK},
		{"forwarded_ip_has_own_bucket", "10.0.0.1:4000", "203.0.113.7", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(tt.remote, tt.forwarded)
			if rec.Code != tt.wantCode {
				t.Errorf("want %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "30" {
				t.Errorf("want Retry-After 30, got %q", rec.Header().Get("Retry-After"))
			}
		})
	}

	if calls != 4 {
		t.Errorf("want next handler called 4 times, got %d", calls)
	}
}

func TestCleanupDropsIdleVisitors(t *testing.T) {
	rl := NewIPRateLimiter(1, time.Minute, 1, CleanupOpts{TTL: 10 * time.Millisecond, Interval: 5 * time.Millisecond})
	defer rl.Stop()

	rl.Allow("10.0.0.9")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rl.mu.Lock()
		n := len(rl.visitors)
		rl.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("idle visitor was not cleaned up")
}
