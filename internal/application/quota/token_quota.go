// Package quota 提供战役级 LLM 用量记录与配额检查
package quota

import (
	"context"
	"fmt"
	"time"

	"campaign-forge-api/internal/domain/repository"
)

// TokenQuotaExceededError 表示战役当日 Token 配额已耗尽
type TokenQuotaExceededError struct {
	CampaignID string
	Max        int64
	Used       int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: campaign=%s used=%d max=%d", e.CampaignID, e.Used, e.Max)
}

// TokenQuotaChecker 检查战役 Token 日配额（按 UTC 自然日）
type TokenQuotaChecker struct {
	llmRepo  repository.LLMUsageEventRepository
	maxDaily int64
	now      func() time.Time
}

func NewTokenQuotaChecker(llmRepo repository.LLMUsageEventRepository, maxDaily int64) *TokenQuotaChecker {
	return &TokenQuotaChecker{
		llmRepo:  llmRepo,
		maxDaily: maxDaily,
		now:      time.Now,
	}
}

// CheckDailyTokens 返回 used/max 便于客户端展示；超额时返回 TokenQuotaExceededError。
// 未配置配额时 max 为 0 且不查询数据库。
func (c *TokenQuotaChecker) CheckDailyTokens(ctx context.Context, campaignID string) (used int64, max int64, err error) {
	if c == nil || c.llmRepo == nil || c.maxDaily <= 0 {
		return 0, 0, nil
	}

	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	used, err = c.llmRepo.GetTokenUsage(ctx, campaignID, start, end)
	if err != nil {
		return 0, c.maxDaily, err
	}
	if used >= c.maxDaily {
		return used, c.maxDaily, TokenQuotaExceededError{
			CampaignID: campaignID,
			Max:        c.maxDaily,
			Used:       used,
		}
	}
	return used, c.maxDaily, nil
}
