package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/config"
)

// exposedHeaders 浏览器端可读取的响应头：追踪、限流与 token 配额
var exposedHeaders = []string{
	RequestIDHeader,
	"X-Trace-ID",
	"X-RateLimit-Remaining",
	"Retry-After",
	"X-Token-Quota-Used",
	"X-Token-Quota-Limit",
}

// CORS 跨域中间件；允许任意来源时不携带凭证
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "OPTIONS"}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", RequestIDHeader}
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     headers,
		ExposeHeaders:    exposedHeaders,
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           12 * time.Hour,
	})
}
