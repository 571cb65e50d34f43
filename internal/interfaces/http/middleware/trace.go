package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/pkg/logger"
)

// Trace OpenTelemetry 追踪中间件；/health 等探针路径不产生 span
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !slices.Contains(DefaultAuditSkipPaths, r.URL.Path)
	}))
}

// TraceContext 把 trace/span ID 写入 gin 与 logger 上下文，并给 span 标注战役 ID
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if sc.IsValid() {
			traceID := sc.TraceID().String()
			spanID := sc.SpanID().String()

			c.Set(dto.TraceIDKey, traceID)
			c.Set("span_id", spanID)

			ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
			ctx = logger.WithContext(ctx, logger.SpanIDKey, spanID)
			c.Request = c.Request.WithContext(ctx)

			c.Header("X-Trace-ID", traceID)

			if cid := c.Param("cid"); cid != "" {
				span.SetAttributes(attribute.String("campaign.id", cid))
			}
			if reqID := c.GetString(RequestIDKey); reqID != "" {
				span.SetAttributes(attribute.String("http.request_id", reqID))
			}
		}

		c.Next()
	}
}
