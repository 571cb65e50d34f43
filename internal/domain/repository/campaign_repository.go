package repository

import (
	"context"

	"campaign-forge-api/internal/domain/entity"
)

// CampaignRepository 战役仓储；GetByID 不存在时返回 ErrNotFound
type CampaignRepository interface {
	Create(ctx context.Context, c *entity.Campaign) error
	GetByID(ctx context.Context, id string) (*entity.Campaign, error)
	Update(ctx context.Context, c *entity.Campaign) error
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.Campaign], error)
}

// CampaignSessionRepository 场次仓储
type CampaignSessionRepository interface {
	Create(ctx context.Context, s *entity.CampaignSession) error
	// GetCurrent 返回最近的进行中场次，没有则返回编号最大的场次；都没有时返回 nil, nil
	GetCurrent(ctx context.Context, campaignID string) (*entity.CampaignSession, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*entity.CampaignSession, error)
}

// CampaignEntityRepository 战役实体仓储
type CampaignEntityRepository interface {
	// CreateOnce 按 draft_id 幂等写入；已存在时返回已有实体与 false
	CreateOnce(ctx context.Context, e *entity.CampaignEntity) (*entity.CampaignEntity, bool, error)
	GetByDraftID(ctx context.Context, draftID string) (*entity.CampaignEntity, error)
	ListByCampaign(ctx context.Context, campaignID, entityType string, pagination Pagination) (*PagedResult[*entity.CampaignEntity], error)
}
