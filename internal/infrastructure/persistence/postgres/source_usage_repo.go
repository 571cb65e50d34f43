package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
)

// SourceUsageRepository 来源使用记录仓储实现
type SourceUsageRepository struct {
	client *Client
}

var _ repository.SourceUsageRepository = (*SourceUsageRepository)(nil)

func NewSourceUsageRepository(client *Client) *SourceUsageRepository {
	return &SourceUsageRepository{client: client}
}

func (r *SourceUsageRepository) Upsert(ctx context.Context, campaignID, sourceID, passageID string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "postgres.SourceUsageRepository.Upsert")
	defer span.End()

	u := &entity.SourceUsage{
		CampaignID:  campaignID,
		SourceID:    sourceID,
		PassageID:   passageID,
		FirstUsedAt: at,
		LastUsedAt:  at,
	}
	err := getDB(ctx, r.client.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "passage_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"last_used_at": at}),
	}).Create(u).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert source usage: %w", err)
	}
	return nil
}

func (r *SourceUsageRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*entity.SourceUsage, error) {
	ctx, span := tracer.Start(ctx, "postgres.SourceUsageRepository.ListByCampaign")
	defer span.End()

	var items []*entity.SourceUsage
	if err := getDB(ctx, r.client.db).
		Where("campaign_id = ?", campaignID).
		Order("first_used_at ASC, passage_id ASC").
		Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list source usages: %w", err)
	}
	return items, nil
}
