package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
)

// CampaignEntityRepository 战役实体仓储实现
type CampaignEntityRepository struct {
	client *Client
}

var _ repository.CampaignEntityRepository = (*CampaignEntityRepository)(nil)

func NewCampaignEntityRepository(client *Client) *CampaignEntityRepository {
	return &CampaignEntityRepository{client: client}
}

func (r *CampaignEntityRepository) CreateOnce(ctx context.Context, e *entity.CampaignEntity) (*entity.CampaignEntity, bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignEntityRepository.CreateOnce")
	defer span.End()

	db := getDB(ctx, r.client.db)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "draft_id"}},
		DoNothing: true,
	}).Create(e)
	if res.Error != nil {
		span.RecordError(res.Error)
		return nil, false, fmt.Errorf("failed to create campaign entity: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return e, true, nil
	}

	existing, err := r.GetByDraftID(ctx, e.DraftID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *CampaignEntityRepository) GetByDraftID(ctx context.Context, draftID string) (*entity.CampaignEntity, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignEntityRepository.GetByDraftID")
	defer span.End()

	var e entity.CampaignEntity
	if err := getDB(ctx, r.client.db).First(&e, "draft_id = ?", draftID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get campaign entity: %w", err)
	}
	return &e, nil
}

func (r *CampaignEntityRepository) ListByCampaign(ctx context.Context, campaignID, entityType string, pagination repository.Pagination) (*repository.PagedResult[*entity.CampaignEntity], error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignEntityRepository.ListByCampaign")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.CampaignEntity{}).Where("campaign_id = ?", campaignID)
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count campaign entities: %w", err)
	}

	var items []*entity.CampaignEntity
	if err := query.Order("created_at ASC, id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list campaign entities: %w", err)
	}
	return repository.NewPagedResult(items, total, pagination), nil
}
