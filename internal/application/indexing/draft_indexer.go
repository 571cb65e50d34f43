// Package indexing 把已采纳的草稿实体写入 campaign 检索范围
package indexing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
)

// EntityIndexer retrieval.Indexer 的最小依赖
type EntityIndexer interface {
	IndexEntity(ctx context.Context, campaignID, entityID, entityType, name string, data json.RawMessage) (*retrieval.IndexStats, error)
}

// CacheInvalidator 按前缀清理检索缓存
type CacheInvalidator interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// 受 campaign 范围变更影响的检索缓存前缀
var campaignSearchPrefixes = []string{
	"search:" + string(port.ScopeCampaign) + ":",
	"search:all:",
}

// DraftIndexer 处理 draft.accepted 事件
type DraftIndexer struct {
	entities repository.CampaignEntityRepository
	indexer  EntityIndexer
	cache    CacheInvalidator
}

func NewDraftIndexer(entities repository.CampaignEntityRepository, indexer EntityIndexer, cache CacheInvalidator) *DraftIndexer {
	return &DraftIndexer{entities: entities, indexer: indexer, cache: cache}
}

// HandleEvent 只处理采纳事件；实体以数据库中的记录为准，重复投递时结果相同
func (d *DraftIndexer) HandleEvent(ctx context.Context, ev generation.DraftEvent) error {
	if ev.Type != generation.EventDraftAccepted {
		return nil
	}
	if ev.DraftID == "" {
		return fmt.Errorf("draft event without draft_id")
	}

	e, err := d.entities.GetByDraftID(ctx, ev.DraftID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 采纳事务回滚时实体不存在，无需重试
			logger.Warn(ctx, "accepted draft has no campaign entity", "draft_id", ev.DraftID)
			return nil
		}
		return fmt.Errorf("failed to load campaign entity: %w", err)
	}

	stats, err := d.indexer.IndexEntity(ctx, e.CampaignID, e.ID, e.EntityType, e.Name, json.RawMessage(e.Data))
	if err != nil {
		if errors.Is(err, retrieval.ErrVectorDisabled) {
			logger.Warn(ctx, "vector index disabled, accepted entity not indexed", "entity_id", e.ID)
			return nil
		}
		return fmt.Errorf("failed to index campaign entity: %w", err)
	}

	if d.cache != nil {
		for _, prefix := range campaignSearchPrefixes {
			if err := d.cache.DeletePrefix(ctx, prefix); err != nil {
				logger.Warn(ctx, "failed to invalidate search cache", "prefix", prefix, "error", err.Error())
			}
		}
	}

	logger.Info(ctx, "campaign entity indexed",
		"entity_id", e.ID,
		"entity_type", e.EntityType,
		"passages", stats.Passages,
	)
	return nil
}
