package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// kvStore is the subset of RedisClient used by SearchCache.
type kvStore interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// SearchCache stores live search results as JSON under a common prefix.
type SearchCache struct {
	store kvStore
	ttl   time.Duration
}

// NewSearchCache creates a SearchCache. A ttl of zero keeps entries until
// they are evicted by Redis.
func NewSearchCache(client *RedisClient, ttl time.Duration) *SearchCache {
	return &SearchCache{store: client, ttl: ttl}
}

// key returns the Redis key for a search key: pricewatch:{key}
func (c *SearchCache) key(k string) string {
	return fmt.Sprintf("pricewatch:%s", k)
}

// Get decodes the cached value into dst. A miss returns (false, nil).
func (c *SearchCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := c.store.Get(ctx, c.key(key))
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached search: %w", err)
	}
	return true, nil
}

// Set stores value as JSON with the configured TTL.
func (c *SearchCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal search result: %w", err)
	}
	if err := c.store.Set(ctx, c.key(key), string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to cache search result: %w", err)
	}
	return nil
}

// Delete drops a cached search, typically after a crawl stored a newer
// snapshot of the same source set.
func (c *SearchCache) Delete(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, c.key(key)); err != nil {
		return fmt.Errorf("failed to invalidate cached search: %w", err)
	}
	return nil
}
