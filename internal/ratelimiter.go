package internal

import (
	"slices"
	"sync"
	"time"
)

// Default frame-rate limits applied per connection when the environment does
// not override them.
const (
	DefaultRateLimitBurst  = 20
	DefaultRateLimitWindow = 3 * time.Second
)

// RateLimiter is a sliding-window limiter keyed by an arbitrary string
// (connection id here). Forget must be called when a key goes away or the
// hit map grows without bound.
type RateLimiter struct {
	mu     sync.Mutex
	hits   map[string][]time.Time
	limit  int
	window time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimitBurst
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{
		hits:   make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Allow records a hit for key and reports whether it stays within limit hits
// per window.
func (r *RateLimiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := slices.DeleteFunc(r.hits[key], func(ts time.Time) bool {
		return !ts.After(cutoff)
	})
	if len(recent) >= r.limit {
		r.hits[key] = recent
		return false
	}
	r.hits[key] = append(recent, now)
	return true
}

// Forget drops all state for a key.
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hits, key)
}
