package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invoicely/invoicely/internal/model"
)

// Cache key prefixes and TTLs.
const (
	businessKeyPrefix = "business:"
	negCacheKeySuffix = ":neg"

	// DefaultBusinessTTL is the TTL for cached business records.
	DefaultBusinessTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// BusinessKey returns the Redis key holding a business record.
func BusinessKey(id string) string {
	return businessKeyPrefix + id
}

// GetBusiness retrieves a business from cache by id.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetBusiness(ctx context.Context, id string) (*model.CachedBusiness, error) {
	cmd := c.client.HGetAll(ctx, BusinessKey(id))
	result, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedBusiness
	if err := cmd.Scan(&cached); err != nil {
		return nil, fmt.Errorf("failed to decode cached business: %w", err)
	}

	// Entries written by an older layout are treated as absent.
	if cached.ID == "" || cached.CreatedAt == "" {
		return nil, ErrCacheMiss
	}

	return &cached, nil
}

// SetBusiness stores a business record in cache and clears any negative entry.
func (c *Cache) SetBusiness(ctx context.Context, business *model.Business) error {
	key := BusinessKey(business.ID)
	cached := business.ToCachedBusiness()

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, cached)
	pipe.Expire(ctx, key, c.businessTTL)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache business: %w", err)
	}

	return nil
}

// DeleteBusiness removes a business and its negative entry from cache.
func (c *Cache) DeleteBusiness(ctx context.Context, id string) error {
	key := BusinessKey(id)

	if err := c.client.Del(ctx, key, key+negCacheKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete business from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a business id is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, id string) (bool, error) {
	exists, err := c.client.Exists(ctx, BusinessKey(id)+negCacheKeySuffix).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a business id as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, id string) error {
	err := c.client.SetEx(ctx, BusinessKey(id)+negCacheKeySuffix, "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
