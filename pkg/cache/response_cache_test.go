package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*ResponseCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := NewResponseCache(Config{Addr: srv.Addr(), TTL: time.Minute})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, srv
}

func TestResponseCacheExactKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "t1", "What's my revenue?", CachedResponse{Message: "Revenue is 10", Service: "groq"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "t1", "What's my revenue?")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got.Message != "Revenue is 10" || got.Service != "groq" {
		t.Fatalf("unexpected cached value %+v", got)
	}

	for _, miss := range []string{"What's my revenue? ", "what's my revenue?", " What's my revenue?"} {
		if _, ok, err := c.Get(ctx, "t1", miss); err != nil || ok {
			t.Fatalf("expected miss for %q, ok=%v err=%v", miss, ok, err)
		}
	}
}

func TestResponseCacheTenantScoped(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "t1", "hello", CachedResponse{Message: "a", Service: "groq"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "t2", "hello"); ok {
		t.Fatalf("tenant t2 must not see t1 cache entries")
	}
}

func TestResponseCacheTTL(t *testing.T) {
	c, srv := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "t1", "hello", CachedResponse{Message: "a"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	srv.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "t1", "hello"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestResponseCacheUnavailable(t *testing.T) {
	c, srv := newTestCache(t)
	srv.Close()
	if _, _, err := c.Get(context.Background(), "t1", "hello"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
