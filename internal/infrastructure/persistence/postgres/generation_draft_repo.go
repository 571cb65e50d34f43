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

// GenerationDraftRepository 草稿留档仓储实现
type GenerationDraftRepository struct {
	client *Client
}

var _ repository.GenerationDraftRepository = (*GenerationDraftRepository)(nil)

func NewGenerationDraftRepository(client *Client) *GenerationDraftRepository {
	return &GenerationDraftRepository{client: client}
}

func (r *GenerationDraftRepository) Save(ctx context.Context, d *entity.GenerationDraft) error {
	ctx, span := tracer.Start(ctx, "postgres.GenerationDraftRepository.Save")
	defer span.End()

	err := getDB(ctx, r.client.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "content", "marked_text", "data", "citations",
			"trust_assignments", "ungrounded_references", "confidence",
			"revision", "updated_at",
		}),
	}).Create(d).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

func (r *GenerationDraftRepository) GetByID(ctx context.Context, id string) (*entity.GenerationDraft, error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationDraftRepository.GetByID")
	defer span.End()

	var d entity.GenerationDraft
	if err := getDB(ctx, r.client.db).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return &d, nil
}

func (r *GenerationDraftRepository) ListByCampaign(ctx context.Context, campaignID, state string, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationDraft], error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationDraftRepository.ListByCampaign")
	defer span.End()

	query := getDB(ctx, r.client.db).Model(&entity.GenerationDraft{}).Where("campaign_id = ?", campaignID)
	if state != "" {
		query = query.Where("state = ?", state)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count drafts: %w", err)
	}

	var items []*entity.GenerationDraft
	if err := query.Order("created_at ASC, id ASC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	return repository.NewPagedResult(items, total, pagination), nil
}
