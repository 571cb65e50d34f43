package repository

import (
	"context"

	"campaign-forge-api/internal/domain/entity"
)

// GenerationDraftRepository 草稿留档仓储
type GenerationDraftRepository interface {
	// Save 按 ID upsert
	Save(ctx context.Context, d *entity.GenerationDraft) error
	GetByID(ctx context.Context, id string) (*entity.GenerationDraft, error)
	ListByCampaign(ctx context.Context, campaignID, state string, pagination Pagination) (*PagedResult[*entity.GenerationDraft], error)
}
