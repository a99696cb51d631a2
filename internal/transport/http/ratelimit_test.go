package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.allow() || !rl.allow() {
		t.Fatal("expected first two events to pass")
	}
	if rl.allow() {
		t.Fatal("expected third event in window to be rejected")
	}

	now = now.Add(time.Minute)
	if !rl.allow() {
		t.Fatal("expected counter reset after window")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.allow() {
			t.Fatal("disabled limiter rejected an event")
		}
	}

	var nilLimiter *rateLimiter
	if !nilLimiter.allow() {
		t.Fatal("nil limiter rejected an event")
	}
}

func TestRateLimitHandler(t *testing.T) {
	logger := zerolog.Nop()
	calls := 0
	h := RateLimit(newRateLimiter(1, time.Minute), &logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	var body ErrorResponse
	if err := json.NewDecoder(second.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error == "" {
		t.Fatal("expected error message in body")
	}
	if calls != 1 {
		t.Fatalf("expected wrapped handler to run once, got %d", calls)
	}
}
