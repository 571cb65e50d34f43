package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/workflow/port"
)

// CampaignStore port.CampaignStore 的数据库实现：
// ApplyEntity 在事务内校验战役并按 draft_id 幂等写入实体，RecordUsage 按 (campaign, passage) upsert。
type CampaignStore struct {
	tx        repository.Transactor
	campaigns repository.CampaignRepository
	entities  repository.CampaignEntityRepository
	usages    repository.SourceUsageRepository
	now       func() time.Time
}

var _ port.CampaignStore = (*CampaignStore)(nil)

func NewCampaignStore(
	tx repository.Transactor,
	campaigns repository.CampaignRepository,
	entities repository.CampaignEntityRepository,
	usages repository.SourceUsageRepository,
) *CampaignStore {
	return &CampaignStore{
		tx:        tx,
		campaigns: campaigns,
		entities:  entities,
		usages:    usages,
		now:       time.Now,
	}
}

func (s *CampaignStore) ApplyEntity(ctx context.Context, campaignID string, content port.EntityContent) (string, error) {
	if strings.TrimSpace(content.DraftID) == "" {
		return "", fmt.Errorf("draft id is required")
	}

	var entityID string
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return port.ErrCampaignNotFound
			}
			return err
		}

		saved, _, err := s.entities.CreateOnce(ctx, &entity.CampaignEntity{
			CampaignID: campaignID,
			DraftID:    content.DraftID,
			EntityType: content.EntityType,
			Name:       content.Name,
			Data:       []byte(content.Data),
		})
		if err != nil {
			return err
		}
		entityID = saved.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to apply entity: %w", err)
	}
	return entityID, nil
}

func (s *CampaignStore) RecordUsage(ctx context.Context, campaignID, sourceID, passageID string) error {
	return s.usages.Upsert(ctx, campaignID, sourceID, passageID, s.now().UTC())
}
