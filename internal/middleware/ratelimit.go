package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fridgechef/api/pkg/response"
)

// RateLimiter counts requests per user in fixed redis windows.
type RateLimiter struct {
	redis *redis.Client
	log   *zap.Logger
}

func NewRateLimiter(redisClient *redis.Client, log *zap.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, log: log}
}

// Limit allows maxRequests per user per window under keyPrefix. Requests
// pass when redis is unavailable.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" || maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("fridgechef:ratelimit:%s:%s", keyPrefix, userID)
		ctx := c.UserContext()

		var incr *redis.IntCmd
		var ttl *redis.DurationCmd
		_, err := rl.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, key)
			p.ExpireNX(ctx, key, window)
			ttl = p.TTL(ctx, key)
			return nil
		})
		if err != nil {
			rl.log.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
			return c.Next()
		}

		count := incr.Val()
		c.Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(maxRequests)-count, 0), 10))

		if count > int64(maxRequests) {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Val().Seconds())))
			return response.RateLimited(c)
		}
		return c.Next()
	}
}

// ScanLimit limits scan uploads per hour.
func (rl *RateLimiter) ScanLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("scan", maxPerHour, time.Hour)
}

// MatchLimit limits match job creation per hour.
func (rl *RateLimiter) MatchLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("match", maxPerHour, time.Hour)
}

// LookupLimit limits product lookups per hour.
func (rl *RateLimiter) LookupLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("lookup", maxPerHour, time.Hour)
}
