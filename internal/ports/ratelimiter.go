package ports

import (
	"context"
	"time"
)

// RateLimiter grants at most ratePerWindow successful Acquire calls per scope and window.
// Returns (true,nil) if granted; (false,nil) if rate-limited.
type RateLimiter interface {
	Acquire(ctx context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error)
}
