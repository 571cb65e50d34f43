package handler

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/interfaces/http/dto"
	"campaign-forge-api/internal/workflow/port"
)

// CampaignHandler 战役已落库记录查询
type CampaignHandler struct {
	campaigns repository.CampaignRepository
	sessions  repository.CampaignSessionRepository
	entities  repository.CampaignEntityRepository
	usages    repository.SourceUsageRepository
}

// NewCampaignHandler 创建战役记录处理器
func NewCampaignHandler(
	campaigns repository.CampaignRepository,
	sessions repository.CampaignSessionRepository,
	entities repository.CampaignEntityRepository,
	usages repository.SourceUsageRepository,
) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		sessions:  sessions,
		entities:  entities,
		usages:    usages,
	}
}

// requireCampaign 战役不存在时返回 port.ErrCampaignNotFound
func (h *CampaignHandler) requireCampaign(ctx context.Context, campaignID string) error {
	if _, err := h.campaigns.GetByID(ctx, campaignID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", port.ErrCampaignNotFound, campaignID)
		}
		return err
	}
	return nil
}

// ListEntities 已采纳草稿写入的实体
// @Summary 战役实体列表
// @Tags Campaigns
// @Produce json
// @Param cid path string true "战役 ID"
// @Param entity_type query string false "实体类别"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.CampaignEntityListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid}/entities [get]
func (h *CampaignHandler) ListEntities(c *gin.Context) {
	var q dto.ListEntitiesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		dto.BadRequest(c, "invalid query: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	campaignID := dto.BindCampaignID(c)
	if err := h.requireCampaign(ctx, campaignID); err != nil {
		respondError(c, "list campaign entities", err)
		return
	}

	pageReq := dto.BindPage(c)
	res, err := h.entities.ListByCampaign(ctx, campaignID, q.EntityType, repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		respondError(c, "list campaign entities", err)
		return
	}
	meta := dto.NewPageMeta(res.Page, res.PageSize, int(res.Total))
	dto.SuccessWithPage(c, dto.ToCampaignEntityListResponse(res.Items), meta)
}

// ListSessions 场次列表
// @Summary 场次列表
// @Tags Campaigns
// @Produce json
// @Param cid path string true "战役 ID"
// @Success 200 {object} dto.Response[dto.SessionListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid}/sessions [get]
func (h *CampaignHandler) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	campaignID := dto.BindCampaignID(c)
	if err := h.requireCampaign(ctx, campaignID); err != nil {
		respondError(c, "list sessions", err)
		return
	}

	sessions, err := h.sessions.ListByCampaign(ctx, campaignID)
	if err != nil {
		respondError(c, "list sessions", err)
		return
	}
	dto.Success(c, dto.ToSessionListResponse(sessions))
}

// ListSourceUsage 战役引用过的来源片段
// @Summary 来源使用记录
// @Tags Campaigns
// @Produce json
// @Param cid path string true "战役 ID"
// @Success 200 {object} dto.Response[dto.SourceUsageListResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /v1/campaigns/{cid}/source-usage [get]
func (h *CampaignHandler) ListSourceUsage(c *gin.Context) {
	ctx := c.Request.Context()
	campaignID := dto.BindCampaignID(c)
	if err := h.requireCampaign(ctx, campaignID); err != nil {
		respondError(c, "list source usage", err)
		return
	}

	usages, err := h.usages.ListByCampaign(ctx, campaignID)
	if err != nil {
		respondError(c, "list source usage", err)
		return
	}
	dto.Success(c, dto.ToSourceUsageListResponse(usages))
}
