package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "bizassist:chat:response"
	defaultTTL    = 24 * time.Hour
)

// CachedResponse is a previously generated assistant answer.
type CachedResponse struct {
	Message string `json:"message"`
	Service string `json:"service"`
}

// ResponseCache maps an exact user message to a generated answer.
// Keys are scoped per tenant; the message is hashed byte for byte with no
// normalization, so messages differing only in whitespace are distinct.
type ResponseCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Config struct {
	Addr     string
	Password string
	Prefix   string
	TTL      time.Duration
}

// NewResponseCache connects to Redis.
func NewResponseCache(cfg Config) (*ResponseCache, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("response cache redis addr is required")
	}
	return NewResponseCacheWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}), cfg.Prefix, cfg.TTL), nil
}

// NewResponseCacheWithClient reuses an existing Redis client.
func NewResponseCacheWithClient(client *redis.Client, prefix string, ttl time.Duration) *ResponseCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ResponseCache{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached response for message, if any.
func (c *ResponseCache) Get(ctx context.Context, tenantID, message string) (CachedResponse, bool, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID, message)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedResponse{}, false, nil
	}
	if err != nil {
		return CachedResponse{}, false, fmt.Errorf("cache get: %w", err)
	}
	var out CachedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return CachedResponse{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return out, true, nil
}

// Set stores resp under message.
func (c *ResponseCache) Set(ctx context.Context, tenantID, message string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(tenantID, message), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *ResponseCache) key(tenantID, message string) string {
	sum := sha256.Sum256([]byte(message))
	return fmt.Sprintf("%s:%s:%s", c.prefix, tenantID, hex.EncodeToString(sum[:]))
}
