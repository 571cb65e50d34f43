package handler

import (
	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/pkg/logger"
)

// TemplateHandler 模板处理器
type TemplateHandler struct {
	templates TemplateCatalog
}

// NewTemplateHandler 创建模板处理器
func NewTemplateHandler(templates TemplateCatalog) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// ListTemplates 列出已加载模板
// @Summary 模板列表
// @Tags Templates
// @Produce json
// @Success 200 {object} dto.Response[dto.TemplateListResponse]
// @Router /v1/templates [get]
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	dto.Success(c, dto.ToTemplateListResponse(h.templates.List()))
}

// ReloadTemplates 重新加载模板目录；失败时保留旧模板
// @Summary 重载模板
// @Tags Templates
// @Produce json
// @Success 200 {object} dto.Response[dto.TemplateReloadResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/templates/reload [post]
func (h *TemplateHandler) ReloadTemplates(c *gin.Context) {
	if err := h.templates.Reload(); err != nil {
		respondError(c, "reload templates", err)
		return
	}

	n := len(h.templates.List())
	logger.Info(c.Request.Context(), "templates reloaded", "dir", h.templates.Dir(), "count", n)
	dto.Success(c, &dto.TemplateReloadResponse{Dir: h.templates.Dir(), Templates: n})
}
