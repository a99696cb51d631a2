package http

import (
	"sync"
	"time"
)

// rateLimiter allows up to limit events per fixed window. A limit of zero
// or less disables it.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	counter int
	resetAt time.Time
	now     func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if !now.Before(r.resetAt) {
		r.counter = 0
		r.resetAt = now.Add(r.window)
	}
	r.counter++
	return r.counter <= r.limit
}
