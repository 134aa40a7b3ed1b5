package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is an in-process fixed-window limiter. Buckets from previous windows are
// dropped lazily on the next Acquire for the same scope.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]bucket
	now     func() time.Time
}

type bucket struct {
	start time.Time
	count int
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]bucket), now: time.Now}
}

func (l *RateLimiter) Acquire(_ context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error) {
	if ratePerWindow <= 0 {
		return false, nil
	}
	now := l.now()
	start := now.Truncate(window)

	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.buckets[scope]
	if !b.start.Equal(start) {
		b = bucket{start: start}
	}
	if b.count >= ratePerWindow {
		l.buckets[scope] = b
		return false, nil
	}
	b.count++
	l.buckets[scope] = b
	return true, nil
}
