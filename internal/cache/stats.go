package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// statsUserCountKey caches the unique-user aggregate so that every
// /validate call does not trigger a full-table count.
const statsUserCountKey = "stats:unique_users"

// ErrStatsMiss is returned when no cached count is present.
var ErrStatsMiss = errors.New("user count not cached")

// GetUserCount returns the cached unique-user count, or ErrStatsMiss
// when the key is absent or expired.
func (c *Cache) GetUserCount(ctx context.Context) (int64, error) {
	val, err := c.client.Get(ctx, statsUserCountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrStatsMiss
		}
		return 0, fmt.Errorf("failed to read cached user count: %w", err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt cached user count %q: %w", val, err)
	}
	return count, nil
}

// SetUserCount caches the unique-user count for the given TTL.
func (c *Cache) SetUserCount(ctx context.Context, count int64, ttl time.Duration) error {
	if err := c.client.Set(ctx, statsUserCountKey, count, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache user count: %w", err)
	}
	return nil
}
