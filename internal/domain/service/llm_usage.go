package service

import "context"

// LLMUsageInput 一次 LLM 调用的用量数据
type LLMUsageInput struct {
	CampaignID string

	Workflow string
	Provider string
	Model    string

	PromptTokens     int
	CompletionTokens int
	DurationMs       int
}

// LLMUsageRecorder 记录 LLM 用量流水。
// 实现应尽力而为，不阻塞生成流程。
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
