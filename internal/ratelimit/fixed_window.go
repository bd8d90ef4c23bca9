package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript returns the window count and the key's remaining TTL.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// FixedWindowLimiter counts requests per key in a window shared by every API
// replica through Redis. Redis errors reject the request.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisFixedWindowLimiter dials its own Redis client.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: strings.TrimSpace(addr), Password: password})
	return NewFixedWindowLimiterWithClient(client, prefix, limit, window)
}

// NewFixedWindowLimiterWithClient shares an existing Redis client.
func NewFixedWindowLimiterWithClient(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	switch {
	case client == nil:
		return nil, errors.New("rate limiter redis client is required")
	case limit <= 0 || window < time.Millisecond:
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "bizassist:ratelimit"
	}
	return &FixedWindowLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}, nil
}

// Allow counts one request for key in the current window.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	vals, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(vals) != 2 {
		slog.Warn("rate limiter unavailable", "key", redisKey, "err", err)
		return Decision{Limit: l.limit, RetryAfter: time.Second}
	}
	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	if ttl <= 0 {
		ttl = l.window
	}
	if count > int64(l.limit) {
		return Decision{Limit: l.limit, RetryAfter: ttl}
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - int(count)}
}
