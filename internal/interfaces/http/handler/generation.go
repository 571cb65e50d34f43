package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/pkg/logger"
)

// GenerationHandler 内容生成处理器
type GenerationHandler struct {
	generator Generator
	quota     QuotaChecker
}

// NewGenerationHandler 创建生成处理器；quota 可为 nil
func NewGenerationHandler(generator Generator, quota QuotaChecker) *GenerationHandler {
	return &GenerationHandler{
		generator: generator,
		quota:     quota,
	}
}

// Generate 生成内容并创建草稿
// @Summary 生成战役内容
// @Description 按生成类型组装上下文、调用 LLM、溯源并创建 Proposed 草稿
// @Tags Generations
// @Accept json
// @Produce json
// @Param cid path string true "战役 ID"
// @Param body body dto.GenerateRequest true "生成请求"
// @Success 201 {object} dto.Response[dto.GenerationResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid}/generations [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	campaignID := dto.BindCampaignID(c)

	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := logger.WithContext(c.Request.Context(), logger.CampaignIDKey, campaignID)
	ctx = logger.WithContext(ctx, logger.GenerationTypeKey, req.GenerationType)
	c.Request = c.Request.WithContext(ctx)

	if h.quota != nil {
		used, max, err := h.quota.CheckDailyTokens(ctx, campaignID)
		if max > 0 {
			c.Header("X-Token-Quota-Used", strconv.FormatInt(used, 10))
			c.Header("X-Token-Quota-Limit", strconv.FormatInt(max, 10))
		}
		if err != nil {
			respondError(c, "quota check", err)
			return
		}
	}

	resp, err := h.generator.Generate(ctx, req.ToGenerationRequest(campaignID))
	if err != nil {
		respondError(c, "generate", err)
		return
	}

	dto.Created(c, dto.ToGenerationResponse(resp))
}
