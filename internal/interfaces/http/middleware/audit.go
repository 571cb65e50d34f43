package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/pkg/logger"
)

// DefaultAuditSkipPaths 默认不记录访问日志的路径
var DefaultAuditSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// Audit 访问日志中间件
func Audit(skipPaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, p := range skipPaths {
			if strings.HasPrefix(path, p) {
				c.Next()
				return
			}
		}

		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"body_size", c.Writer.Size(),
		}
		if cid := c.Param("cid"); cid != "" {
			fields = append(fields, "campaign_id", cid)
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "draft_id", id)
		}

		if c.Writer.Status() >= 500 {
			logger.Warn(c.Request.Context(), "api request failed", fields...)
			return
		}
		logger.Info(c.Request.Context(), "api request", fields...)
	}
}
