package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Checker 依赖健康检查
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Dependency 参与就绪检查的依赖；Required 为 false 时失败只标记 degraded
type Dependency struct {
	Name     string
	Checker  Checker
	Required bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	version string
	deps    []Dependency
	timeout time.Duration
}

// NewHealthHandler 创建健康检查处理器；Checker 为 nil 的依赖视为未启用
func NewHealthHandler(version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{
		version: version,
		deps:    deps,
		timeout: 2 * time.Second,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadinessCheck 单个依赖的检查结果
type ReadinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*ReadinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 必需依赖失败时返回 503
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ready, resp := h.Readiness(c.Request.Context())
	if !ready {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness 依次检查全部依赖，gRPC 健康服务也使用该结果
func (h *HealthHandler) Readiness(ctx context.Context) (bool, *ReadinessResponse) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ready := true
	checks := make(map[string]*ReadinessCheck, len(h.deps))
	for _, dep := range h.deps {
		if dep.Checker == nil {
			if dep.Required {
				checks[dep.Name] = &ReadinessCheck{Status: "missing", Error: dep.Name + " not configured"}
				ready = false
			} else {
				checks[dep.Name] = &ReadinessCheck{Status: "disabled"}
			}
			continue
		}

		start := time.Now()
		err := dep.Checker.HealthCheck(ctx)
		check := &ReadinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			check.Error = err.Error()
			if dep.Required {
				check.Status = "error"
				ready = false
			} else {
				check.Status = "degraded"
			}
		}
		checks[dep.Name] = check
	}

	resp := &ReadinessResponse{Status: "ok", Checks: checks}
	if !ready {
		resp.Status = "not_ready"
	}
	return ready, resp
}
