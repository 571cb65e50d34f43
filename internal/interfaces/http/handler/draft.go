package handler

import (
	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/pkg/logger"
)

// DraftHandler 草稿处理器
type DraftHandler struct {
	drafts DraftService
}

// NewDraftHandler 创建草稿处理器
func NewDraftHandler(drafts DraftService) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

// GetDraft 获取草稿详情
// @Summary 获取草稿
// @Tags Drafts
// @Produce json
// @Param id path string true "草稿 ID"
// @Success 200 {object} dto.Response[dto.DraftResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/drafts/{id} [get]
func (h *DraftHandler) GetDraft(c *gin.Context) {
	d, err := h.drafts.Get(c.Request.Context(), dto.BindDraftID(c))
	if err != nil {
		respondError(c, "get draft", err)
		return
	}
	dto.Success(c, dto.ToDraftResponse(d))
}

// ListDrafts 获取战役的草稿列表
// @Summary 草稿列表
// @Description 按创建时间排序，可按状态过滤（逗号分隔）
// @Tags Drafts
// @Produce json
// @Param cid path string true "战役 ID"
// @Param state query string false "状态过滤，如 proposed,applying"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.DraftListResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid}/drafts [get]
func (h *DraftHandler) ListDrafts(c *gin.Context) {
	var q dto.ListDraftsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	states, err := dto.ParseStates(q.State)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	pageReq := dto.BindPage(c)
	all, err := h.drafts.List(c.Request.Context(), dto.BindCampaignID(c), states...)
	if err != nil {
		respondError(c, "list drafts", err)
		return
	}

	start := pageReq.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + pageReq.Limit()
	if end > len(all) {
		end = len(all)
	}

	meta := dto.NewPageMeta(pageReq.Page, pageReq.PageSize, len(all))
	dto.SuccessWithPage(c, dto.ToDraftListResponse(all[start:end]), meta)
}

// AcceptDraft 接受草稿并写入战役
// @Summary 接受草稿
// @Tags Drafts
// @Produce json
// @Param id path string true "草稿 ID"
// @Success 200 {object} dto.Response[dto.DraftActionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/drafts/{id}/accept [post]
func (h *DraftHandler) AcceptDraft(c *gin.Context) {
	h.apply(c, "accept draft", generation.Accept())
}

// RejectDraft 拒绝草稿
// @Summary 拒绝草稿
// @Tags Drafts
// @Produce json
// @Param id path string true "草稿 ID"
// @Success 200 {object} dto.Response[dto.DraftActionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/drafts/{id}/reject [post]
func (h *DraftHandler) RejectDraft(c *gin.Context) {
	h.apply(c, "reject draft", generation.Reject())
}

// ModifyDraft 替换草稿内容并重新溯源
// @Summary 修改草稿
// @Tags Drafts
// @Accept json
// @Produce json
// @Param id path string true "草稿 ID"
// @Param body body dto.ModifyDraftRequest true "新内容"
// @Success 200 {object} dto.Response[dto.DraftActionResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /v1/drafts/{id}/modify [post]
func (h *DraftHandler) ModifyDraft(c *gin.Context) {
	var req dto.ModifyDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	h.apply(c, "modify draft", generation.Modify(req.Content))
}

func (h *DraftHandler) apply(c *gin.Context, op string, action generation.DraftAction) {
	draftID := dto.BindDraftID(c)
	ctx := logger.WithContext(c.Request.Context(), logger.DraftIDKey, draftID)
	c.Request = c.Request.WithContext(ctx)

	res, err := h.drafts.Apply(ctx, draftID, action)
	if err != nil {
		respondError(c, op, err)
		return
	}
	dto.Success(c, dto.ToDraftActionResponse(res))
}
