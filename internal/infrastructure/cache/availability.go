// Package cache provides the Redis-backed availability cache.
//
// The cache holds advisory availability snapshots for hot POS reads.
// Allocation never consults it: every decrement reads batch rows under lock,
// so a stale or missing cache entry can only make a read endpoint slower,
// never oversell.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"lotkeeper/internal/core/id"
	"lotkeeper/internal/core/types"
	"lotkeeper/pkg/logger"
)

// AvailabilityCache caches derived product availability per location with
// delete-on-write invalidation.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache creates a cache around an existing client.
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func availabilityKey(locationID, productID id.ID) string {
	return fmt.Sprintf("avail:%s:%s", locationID, productID)
}

// GetTotal returns the cached availability snapshot, reporting a miss on
// any error so callers fall through to the database.
func (c *AvailabilityCache) GetTotal(ctx context.Context, locationID, productID id.ID) (types.Quantity, bool) {
	val, err := c.client.Get(ctx, availabilityKey(locationID, productID)).Result()
	if err == redis.Nil {
		return 0, false
	}
	if err != nil {
		logger.Warn(ctx, "availability cache read failed", "error", err)
		return 0, false
	}

	scaled, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return types.NewQuantityFromInt64Scaled(scaled), true
}

// SetTotal stores a fresh snapshot. Best effort.
func (c *AvailabilityCache) SetTotal(ctx context.Context, locationID, productID id.ID, total types.Quantity) {
	key := availabilityKey(locationID, productID)
	if err := c.client.Set(ctx, key, strconv.FormatInt(total.Int64Scaled(), 10), c.ttl).Err(); err != nil {
		logger.Warn(ctx, "availability cache write failed", "key", key, "error", err)
	}
}

// Invalidate drops the snapshot after a batch mutation. Satisfies
// batch.AvailabilityCache; failures are logged and swallowed.
func (c *AvailabilityCache) Invalidate(ctx context.Context, locationID, productID id.ID) {
	key := availabilityKey(locationID, productID)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn(ctx, "availability cache invalidation failed", "key", key, "error", err)
	}
}

// Close releases the underlying client.
func (c *AvailabilityCache) Close() error {
	return c.client.Close()
}
