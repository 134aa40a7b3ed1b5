package memory

import (
	"context"
	"testing"
	"time"

	"zwop/internal/ports"

	"github.com/stretchr/testify/assert"
)

var _ ports.RateLimiter = (*RateLimiter)(nil)

func TestAcquire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC)
	l := NewRateLimiter()
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Acquire(ctx, "a", 2, time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Acquire(ctx, "a", 2, time.Minute)
	assert.False(t, ok)

	// Other scopes have their own bucket.
	ok, _ = l.Acquire(ctx, "b", 2, time.Minute)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Acquire(ctx, "a", 2, time.Minute)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "a", 0, time.Minute)
	assert.False(t, ok)
}
