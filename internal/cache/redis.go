package cache

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/GTDGit/pricewatch/internal/config"
)

const pingTimeout = 5 * time.Second

// RedisClient is the go-redis client behind the search cache.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to the configured Redis and fails when it does
// not answer a ping.
func NewRedisClient(cfg *config.RedisConfig) (*RedisClient, error) {
	r := &RedisClient{client: redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := r.PingContext(ctx); err != nil {
		_ = r.client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return r, nil
}

// PingContext checks that Redis is reachable.
func (r *RedisClient) PingContext(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisClient) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil for a missing key.
func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *RedisClient) Delete(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
