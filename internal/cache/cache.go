// Package cache stores read models (per-user recommendations and inventory
// listings, shared trending lists) in redis as JSON with a TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when the key is absent or undecodable.
var ErrMiss = errors.New("cache miss")

const keyPrefix = "fridgechef"

type Cache struct {
	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func New(redisClient *redis.Client, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{redis: redisClient, ttl: ttl, log: log}
}

// UserKey builds a key scoped to one user so InvalidateUser can find it.
func UserKey(userID string, parts ...string) string {
	key := fmt.Sprintf("%s:user:%s", keyPrefix, userID)
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// GlobalKey builds a key shared by every user.
func GlobalKey(parts ...string) string {
	key := keyPrefix + ":global"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	if c == nil {
		return ErrMiss
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.redis.Del(ctx, key)
		return ErrMiss
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.ttl).Err()
}

// Remember returns the cached value for key, or calls load and caches what
// it returns. Redis errors degrade to calling load.
func Remember[T any](ctx context.Context, c *Cache, key string, load func() (T, error)) (T, error) {
	var cached T
	err := c.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		c.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	if err := c.Set(ctx, key, value); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// InvalidateUser deletes every key under UserKey(userID). Failures are
// logged; stale entries expire with the TTL anyway.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	pattern := UserKey(userID) + ":*"
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("cache scan failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
	}
}
