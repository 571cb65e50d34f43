package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
)

// CampaignRepository 战役仓储实现
type CampaignRepository struct {
	client *Client
}

var _ repository.CampaignRepository = (*CampaignRepository)(nil)

func NewCampaignRepository(client *Client) *CampaignRepository {
	return &CampaignRepository{client: client}
}

func (r *CampaignRepository) Create(ctx context.Context, c *entity.Campaign) error {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(c).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*entity.Campaign, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.GetByID")
	defer span.End()

	var c entity.Campaign
	if err := getDB(ctx, r.client.db).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *entity.Campaign) error {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.Update")
	defer span.End()

	if err := getDB(ctx, r.client.db).Save(c).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.Campaign], error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignRepository.List")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.Campaign{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count campaigns: %w", err)
	}

	var items []*entity.Campaign
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// CampaignSessionRepository 场次仓储实现
type CampaignSessionRepository struct {
	client *Client
}

var _ repository.CampaignSessionRepository = (*CampaignSessionRepository)(nil)

func NewCampaignSessionRepository(client *Client) *CampaignSessionRepository {
	return &CampaignSessionRepository{client: client}
}

func (r *CampaignSessionRepository) Create(ctx context.Context, s *entity.CampaignSession) error {
	ctx, span := tracer.Start(ctx, "postgres.CampaignSessionRepository.Create")
	defer span.End()

	if err := getDB(ctx, r.client.db).Create(s).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create campaign session: %w", err)
	}
	return nil
}

func (r *CampaignSessionRepository) GetCurrent(ctx context.Context, campaignID string) (*entity.CampaignSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignSessionRepository.GetCurrent")
	defer span.End()

	var sessions []*entity.CampaignSession
	err := getDB(ctx, r.client.db).
		Where("campaign_id = ?", campaignID).
		Order(fmt.Sprintf("CASE WHEN status = '%s' THEN 0 ELSE 1 END, number DESC", entity.SessionActive)).
		Limit(1).
		Find(&sessions).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get current session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return sessions[0], nil
}

func (r *CampaignSessionRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*entity.CampaignSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.CampaignSessionRepository.ListByCampaign")
	defer span.End()

	var sessions []*entity.CampaignSession
	if err := getDB(ctx, r.client.db).
		Where("campaign_id = ?", campaignID).
		Order("number ASC").
		Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list campaign sessions: %w", err)
	}
	return sessions, nil
}
