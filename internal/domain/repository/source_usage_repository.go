package repository

import (
	"context"
	"time"

	"campaign-forge-api/internal/domain/entity"
)

// SourceUsageRepository 来源使用记录仓储
type SourceUsageRepository interface {
	// Upsert 按 (campaign_id, passage_id) 幂等：首次插入，之后只刷新 last_used_at
	Upsert(ctx context.Context, campaignID, sourceID, passageID string, at time.Time) error
	ListByCampaign(ctx context.Context, campaignID string) ([]*entity.SourceUsage, error)
}
