package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nestmatch/engine/internal/config"
)

// counterTTL bounds staleness of cached counters; reconciliation reads
// refresh them well before expiry during active sessions.
const counterTTL = time.Hour

// Counter kinds cached per user.
const (
	CounterLikes    = "likes"
	CounterMatches  = "matches"
	CounterMessages = "messages"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.Client.Del(ctx, keys...).Err()
}

// KeyForCounter generates the Redis key for one of a user's unread counters.
func (c *RedisCache) KeyForCounter(kind string, userID uint64) string {
	return fmt.Sprintf("unread:%s:%d", kind, userID)
}

// SetCounter caches a reconciled counter value, refreshing the TTL.
func (c *RedisCache) SetCounter(ctx context.Context, kind string, userID uint64, count int64) error {
	key := c.KeyForCounter(kind, userID)
	return c.Client.Set(ctx, key, count, counterTTL).Err()
}

// GetCounter returns a cached counter value. ok is false on cache miss.
// TTL is refreshed on access since the user is evidently active.
func (c *RedisCache) GetCounter(ctx context.Context, kind string, userID uint64) (int64, bool, error) {
	key := c.KeyForCounter(kind, userID)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	} else if err != nil {
		return 0, false, err
	}
	_ = c.Client.Expire(ctx, key, counterTTL).Err()
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, nil // treat garbage as a miss
	}
	return n, true, nil
}

// DropCounters removes every cached counter for a user. Called on logout
// so stale values never leak into the next session.
func (c *RedisCache) DropCounters(ctx context.Context, userID uint64) error {
	return c.Del(ctx,
		c.KeyForCounter(CounterLikes, userID),
		c.KeyForCounter(CounterMatches, userID),
		c.KeyForCounter(CounterMessages, userID),
	)
}
