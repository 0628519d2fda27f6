package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nakeslink/models"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RateLimiter applies a sliding-window limit backed by a Redis sorted set.
// When Redis is unavailable requests pass through; availability wins over
// strictness for an emergency service.
type RateLimiter struct {
	redis     *redis.Client
	requests  int
	window    time.Duration
	keyPrefix string
	message   string
	perUser   bool
}

// NewRateLimiter limits by client IP, for unauthenticated surfaces.
func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		requests:  requests,
		window:    window,
		keyPrefix: "rate_limit",
		message:   "Rate limit exceeded",
	}
}

// NewEmergencyRateLimiter limits emergency creation per authenticated user.
// Tight on purpose: duplicate reports flood dispatch and provider phones.
func NewEmergencyRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:     redisClient,
		requests:  3,
		window:    time.Minute,
		keyPrefix: "rate_limit:emergency",
		message:   "Too many emergency reports, please wait before trying again",
		perUser:   true,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		if rl.redis == nil {
			c.Next()
			return
		}

		key := rl.getKey(c)
		allowed, resetTime, remaining, err := rl.checkRateLimit(key)
		if err != nil {
			logrus.Errorf("Rate limit check failed: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			rl.handleRateLimitExceeded(c, resetTime)
			return
		}

		c.Next()
	})
}

// checkRateLimit runs the sliding window log: drop expired entries, count,
// add the new request, all in one pipeline.
func (rl *RateLimiter) checkRateLimit(key string) (allowed bool, resetTime time.Time, remaining int, err error) {
	ctx := context.Background()
	now := time.Now()

	pipe := rl.redis.Pipeline()

	expiredBefore := now.Add(-rl.window).UnixNano()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", expiredBefore))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	pipe.Expire(ctx, key, rl.window+time.Minute)

	results, err := pipe.Exec(ctx)
	if err != nil {
		return false, time.Time{}, 0, err
	}

	currentCount := results[1].(*redis.IntCmd).Val()

	remaining = rl.requests - int(currentCount) - 1
	if remaining < 0 {
		remaining = 0
	}

	resetTime = now.Add(rl.window)
	allowed = currentCount < int64(rl.requests)

	if !allowed {
		rl.redis.ZRem(ctx, key, fmt.Sprintf("%d", now.UnixNano()))
	}

	return allowed, resetTime, remaining, nil
}

func (rl *RateLimiter) getKey(c *gin.Context) string {
	if rl.perUser {
		if userID := c.GetString("userID"); userID != "" {
			return fmt.Sprintf("%s:user:%s", rl.keyPrefix, userID)
		}
	}
	return fmt.Sprintf("%s:ip:%s", rl.keyPrefix, rl.getClientIP(c))
}

func (rl *RateLimiter) getClientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		return xri
	}
	return c.ClientIP()
}

func (rl *RateLimiter) handleRateLimitExceeded(c *gin.Context, resetTime time.Time) {
	retryAfter := time.Until(resetTime).Seconds()
	if retryAfter < 0 {
		retryAfter = 0
	}

	c.Header("Retry-After", strconv.Itoa(int(retryAfter)))

	logrus.WithFields(logrus.Fields{
		"client_ip": rl.getClientIP(c),
		"user_id":   c.GetString("userID"),
		"path":      c.Request.URL.Path,
		"method":    c.Request.Method,
	}).Warn("Rate limit exceeded")

	c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
		Error:     "RATE_LIMIT_EXCEEDED",
		Message:   rl.message,
		Code:      "TOO_MANY_REQUESTS",
		RequestID: c.GetString("request_id"),
		Details: map[string]interface{}{
			"retry_after": int(retryAfter),
			"reset_time":  resetTime.Unix(),
		},
	})
	c.Abort()
}
