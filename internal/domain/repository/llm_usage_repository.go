package repository

import (
	"context"
	"time"

	"campaign-forge-api/internal/domain/entity"
)

type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	GetTokenUsage(ctx context.Context, campaignID string, startInclusive, endExclusive time.Time) (int64, error)
}
