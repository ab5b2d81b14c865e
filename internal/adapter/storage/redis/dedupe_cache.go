package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupeCache implements ports.DedupeCache using Redis. It is a best-effort
// fast path in front of the durable webhook event table; a cache miss is never
// an error.
type DedupeCache struct {
	client *goredis.Client
	prefix string
}

// NewDedupeCache creates a new Redis-backed webhook dedupe cache.
func NewDedupeCache(client *goredis.Client) *DedupeCache {
	return &DedupeCache{
		client: client,
		prefix: "webhook:seen:",
	}
}

// Seen returns the terminal state recorded for the key, or "" when unknown.
func (c *DedupeCache) Seen(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if err == goredis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("redis dedupe get: %w", err)
	}
	return val, nil
}

// MarkSeen records the terminal state for the key with a TTL.
func (c *DedupeCache) MarkSeen(ctx context.Context, key string, state string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, state, ttl).Err(); err != nil {
		return fmt.Errorf("redis dedupe set: %w", err)
	}
	return nil
}
