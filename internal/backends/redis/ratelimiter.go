package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const windowKeyNameTemplate = "_zwop_rwin_%s_%d"

// acquireScript counts one request in the bucket KEYS[1] and returns the new count. The
// bucket gets its expiry (ARGV[1], milliseconds) when the first request creates it.
var acquireScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimiter counts requests per scope in fixed windows shared by every server using the
// same Redis.
type RateLimiter struct {
	cli *redis.Client
	now func() time.Time
}

func NewRateLimiter(cli *redis.Client) *RateLimiter {
	return &RateLimiter{cli: cli, now: time.Now}
}

func (s *RateLimiter) Acquire(ctx context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error) {
	if ratePerWindow <= 0 {
		return false, nil
	}
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return false, errors.New("rate window must be at least one millisecond")
	}
	bucket := s.now().UnixMilli() / windowMs

	// Denied requests are counted too.
	n, err := acquireScript.Run(ctx, s.cli,
		[]string{getWindowKeyName(scope, bucket)},
		2*windowMs,
	).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(ratePerWindow), nil
}

func getWindowKeyName(scope string, bucket int64) string {
	return fmt.Sprintf(windowKeyNameTemplate, scope, bucket)
}
