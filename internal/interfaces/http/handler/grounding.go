package handler

import (
	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/interfaces/http/dto"
)

// GroundingHandler 溯源处理器
type GroundingHandler struct {
	grounder grounding.Grounder
}

// NewGroundingHandler 创建溯源处理器
func NewGroundingHandler(grounder grounding.Grounder) *GroundingHandler {
	return &GroundingHandler{grounder: grounder}
}

// Ground 为文本添加引用标记
// @Summary 文本溯源
// @Tags Grounding
// @Accept json
// @Produce json
// @Param body body dto.GroundRequest true "溯源请求"
// @Success 200 {object} dto.Response[dto.GroundResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/grounding/ground [post]
func (h *GroundingHandler) Ground(c *gin.Context) {
	var req dto.GroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.grounder.Ground(c.Request.Context(), req.Text, req.CampaignID)
	if err != nil {
		respondError(c, "ground text", err)
		return
	}
	dto.Success(c, dto.ToGroundResponse(out))
}

// Validate 校验文本中的规则书引用
// @Summary 引用校验
// @Tags Grounding
// @Accept json
// @Produce json
// @Param body body dto.ValidateRequest true "校验请求"
// @Success 200 {object} dto.Response[dto.ValidateResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/grounding/validate [post]
func (h *GroundingHandler) Validate(c *gin.Context) {
	var req dto.ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	report, err := h.grounder.Validate(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, "validate references", err)
		return
	}
	dto.Success(c, dto.ToValidateResponse(report))
}
