package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long a rejected caller should wait. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether one more request for key fits the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}

// MemoryLimiter is an in-process token bucket per key. It is used when no
// Redis is configured, so quotas are per replica.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	every   rate.Limit
	ttl     time.Duration
	buckets map[string]*bucket
	lastGC  time.Time
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter allows limit requests per window with a burst of limit.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		limit:   limit,
		every:   rate.Every(window / time.Duration(limit)),
		ttl:     10 * window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key. A rejected call consumes nothing.
func (l *MemoryLimiter) Allow(_ context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.gc(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{Limit: l.limit, RetryAfter: delay}
	}
	return Decision{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: max(0, int(b.limiter.TokensAt(now))),
	}
}

func (l *MemoryLimiter) gc(now time.Time) {
	if now.Sub(l.lastGC) < l.ttl {
		return
	}
	l.lastGC = now
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}
