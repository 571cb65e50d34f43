package quota

import (
	"context"
	"fmt"
	"strings"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/domain/service"
)

// LLMUsageRecorder 把 LLM 用量写入 llm_usage_events；未归属战役的调用不记录
type LLMUsageRecorder struct {
	usageRepo repository.LLMUsageEventRepository
}

var _ service.LLMUsageRecorder = (*LLMUsageRecorder)(nil)

func NewLLMUsageRecorder(usageRepo repository.LLMUsageEventRepository) *LLMUsageRecorder {
	return &LLMUsageRecorder{usageRepo: usageRepo}
}

func (r *LLMUsageRecorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}

	campaignID := strings.TrimSpace(in.CampaignID)
	if campaignID == "" {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	return r.usageRepo.Create(ctx, &entity.LLMUsageEvent{
		CampaignID:       campaignID,
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		Workflow:         strings.TrimSpace(in.Workflow),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
	})
}
