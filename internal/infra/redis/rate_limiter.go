package redis

import (
	"context"
	"fmt"
	"time"
)

// Counts a hit and arms the window on the first one, in a single round trip.
// Returns {count, pttl}.
const luaHit = `
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`

// Decision is the outcome of one counted command.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// RateLimiter is a fixed-window counter shared by every bot instance.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Take counts one hit against key. The window starts at the first hit; a denied
// decision carries the time left until it closes.
func (r *RateLimiter) Take(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	res, err := r.client.Eval(ctx, luaHit, []string{key}, window.Milliseconds())
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return Decision{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, res)
	}
	n, _ := vals[0].(int64)
	ttl, _ := vals[1].(int64)

	d := Decision{Count: n, Allowed: n <= int64(limit)}
	if !d.Allowed && ttl > 0 {
		d.RetryAfter = time.Duration(ttl) * time.Millisecond
	}
	return d, nil
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	d, err := r.Take(ctx, key, limit, window)
	return d.Allowed, err
}

// UserCommandKey scopes the budget to one user and one command.
func UserCommandKey(userID int64, command string) string {
	return fmt.Sprintf("rate_limit:%d:%s", userID, command)
}
