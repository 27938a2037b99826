package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/densematrix/resumeforge/internal/config"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyDevice = "ratelimit:device:%s"

// DeviceLimiter throttles generation requests per device. A nil limiter (no
// redis configured) allows everything.
type DeviceLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
	rate   float64
	burst  int
}

func NewDeviceLimiter(cfg config.Config, log *zap.Logger) *DeviceLimiter {
	if strings.TrimSpace(cfg.RedisAddr) == "" || cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &DeviceLimiter{
		bucket: NewTokenBucket(client),
		log:    log.Named("ratelimit"),
		rate:   float64(cfg.RateLimitPerMinute) / 60.0,
		burst:  burst,
	}
}

func (l *DeviceLimiter) Allow(ctx context.Context, deviceID string) (*Result, error) {
	if l == nil {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyDevice, strings.TrimSpace(deviceID)), l.rate, l.burst)
}

// Middleware rejects over-limit requests with 429. Redis failures let the
// request through, the entitlement ledger is still the hard gate behind it.
func (l *DeviceLimiter) Middleware(headerDeviceID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		deviceID := strings.TrimSpace(c.GetHeader(headerDeviceID))
		if deviceID == "" {
			c.Next()
			return
		}

		res, err := l.Allow(c.Request.Context(), deviceID)
		if err != nil {
			l.log.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"type":    "rate_limited",
					"message": "Too many requests. Try again shortly.",
				},
			})
			return
		}
		c.Next()
	}
}
