package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UnreadCachePrefix is the key prefix for per-account unread counts
	UnreadCachePrefix = "unread:account:"

	// UnreadCacheTTL bounds staleness when an invalidation is missed
	UnreadCacheTTL = 10 * time.Minute
)

// UnreadCache caches per-account unread notification counts. The badge
// count is read on every app foreground, so serving it from Redis keeps
// that hot path off Postgres.
// Using an interface enables testing with mocks and potential future backends.
type UnreadCache interface {
	// Get returns the cached count. found=false on a miss.
	Get(ctx context.Context, accountID int64) (count int, found bool, err error)

	// Set stores the count with the standard TTL.
	Set(ctx context.Context, accountID int64, count int) error

	// Invalidate drops the cached counts for the given accounts. Called
	// whenever notifications are written or marked viewed.
	Invalidate(ctx context.Context, accountIDs ...int64) error
}

// RedisUnreadCache implements UnreadCache on plain Redis string keys.
type RedisUnreadCache struct {
	client *redis.Client
}

// NewUnreadCache creates a new UnreadCache backed by Redis.
func NewUnreadCache(client *redis.Client) UnreadCache {
	return &RedisUnreadCache{client: client}
}

func unreadKey(accountID int64) string {
	return fmt.Sprintf("%s%d", UnreadCachePrefix, accountID)
}

func (c *RedisUnreadCache) Get(ctx context.Context, accountID int64) (int, bool, error) {
	count, err := c.client.Get(ctx, unreadKey(accountID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get unread count: %w", err)
	}
	return count, true, nil
}

func (c *RedisUnreadCache) Set(ctx context.Context, accountID int64, count int) error {
	err := c.client.Set(ctx, unreadKey(accountID), count, UnreadCacheTTL).Err()
	if err != nil {
		log.Printf("[UnreadCache] Set FAILED: account=%d err=%v", accountID, err)
		return fmt.Errorf("set unread count: %w", err)
	}
	return nil
}

func (c *RedisUnreadCache) Invalidate(ctx context.Context, accountIDs ...int64) error {
	if len(accountIDs) == 0 {
		return nil
	}

	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = unreadKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[UnreadCache] Invalidate FAILED: accounts=%d err=%v", len(accountIDs), err)
		return fmt.Errorf("invalidate unread counts: %w", err)
	}
	return nil
}
