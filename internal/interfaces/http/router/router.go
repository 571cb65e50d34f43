// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campaign-forge-api/internal/config"
	"campaign-forge-api/internal/interfaces/http/handler"
	"campaign-forge-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Generation *handler.GenerationHandler
	Draft      *handler.DraftHandler
	Grounding  *handler.GroundingHandler
	Template   *handler.TemplateHandler
	Lore       *handler.LoreHandler
	Campaign   *handler.CampaignHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers *Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers *Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(r.cfg.Security.CORS))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.Audit(middleware.DefaultAuditSkipPaths))
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.handlers.Health.Health)
	r.engine.GET("/ready", r.handlers.Health.Ready)
	r.engine.GET("/live", r.handlers.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	rl := r.cfg.Security.RateLimit
	generateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled: rl.Enabled,
		Limit:   rl.Limit,
		Window:  rl.Window,
	}, r.limiter)

	RegisterV1Routes(r.engine.Group("/v1"), r.handlers, generateLimit)
}
