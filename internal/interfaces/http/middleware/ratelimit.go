package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/infrastructure/persistence/redis"
	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/pkg/errors"
	"campaign-forge-api/pkg/logger"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	// Limit 窗口内允许的请求数
	Limit  int
	Window time.Duration
}

// RateLimiter 限流器接口
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// remainingReporter 可选：支持查询剩余配额的限流器
type remainingReporter interface {
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

var (
	_ RateLimiter       = (*redis.RateLimiter)(nil)
	_ remainingReporter = (*redis.RateLimiter)(nil)
)

// RateLimit 滑动窗口限流中间件。
// 路由带 :cid 时按战役限流，否则按客户端 IP；限流器故障时放行。
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}

	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		var key string
		if cid := c.Param("cid"); cid != "" {
			key = redis.BuildCampaignRateLimitKey(cid, endpoint)
		} else {
			key = redis.BuildClientRateLimitKey(c.ClientIP(), endpoint)
		}

		allowed, err := limiter.Allow(c.Request.Context(), key, cfg.Limit, cfg.Window)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error(), "key", key)
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(cfg.Window.Seconds())))
			dto.TooManyRequests(c, "rate limit exceeded", &dto.ErrorDetail{ErrorCode: string(errors.CodeTooManyRequests)})
			c.Abort()
			return
		}

		if rr, ok := limiter.(remainingReporter); ok {
			if remaining, err := rr.Remaining(c.Request.Context(), key, cfg.Limit, cfg.Window); err == nil {
				c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
			}
		}
		c.Next()
	}
}
