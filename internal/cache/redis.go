// Package cache holds the Redis-backed business cache and the per-IP
// request limiter.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client shared by the business cache, the rate
// limiter and the event publisher.
type Cache struct {
	client      *redis.Client
	businessTTL time.Duration
}

func tunePool(opt *redis.Options) {
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
}

// New dials redisURL and verifies the server answers before returning.
func New(ctx context.Context, redisURL string) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	tunePool(opt)

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an already configured client.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client, businessTTL: DefaultBusinessTTL}
}

// SetBusinessTTL overrides how long business records stay cached.
// Non-positive values are ignored.
func (c *Cache) SetBusinessTTL(ttl time.Duration) {
	if ttl > 0 {
		c.businessTTL = ttl
	}
}

// Ping satisfies handler.HealthChecker.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the connection for the event publisher.
func (c *Cache) Client() *redis.Client {
	return c.client
}
