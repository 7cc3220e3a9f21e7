package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts allow decisions per (user, channel, event_type) inside
// a fixed TTL window using atomic INCR.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter creates a limiter that denies once the window count
// exceeds limit.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

func (rl *RateLimiter) key(userID, channel, eventType string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", userID, channel, eventType)
}

// Allow increments the window counter and reports whether the caller is
// still under the limit. The counter advances even when the answer is no;
// the TTL is set on the first increment of a window.
func (rl *RateLimiter) Allow(ctx context.Context, userID, channel, eventType string) (bool, error) {
	key := rl.key(userID, channel, eventType)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return count <= int64(rl.limit), nil
}
