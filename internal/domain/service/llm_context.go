package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyWorkflow llmCtxKey = "llm_workflow"
	llmCtxKeyProvider llmCtxKey = "llm_provider"
	llmCtxKeyCampaign llmCtxKey = "llm_campaign"
)

func withValue(ctx context.Context, key llmCtxKey, v string) context.Context {
	if ctx == nil {
		return nil
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOr(ctx context.Context, key llmCtxKey, fallback string) string {
	if ctx == nil {
		return fallback
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}

func WithWorkflow(ctx context.Context, workflow string) context.Context {
	return withValue(ctx, llmCtxKeyWorkflow, workflow)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

// WithCampaign 标记本次 LLM 调用归属的战役，用于用量流水
func WithCampaign(ctx context.Context, campaignID string) context.Context {
	return withValue(ctx, llmCtxKeyCampaign, campaignID)
}

func WithWorkflowProvider(ctx context.Context, workflow, provider string) context.Context {
	return WithProvider(WithWorkflow(ctx, workflow), provider)
}

func WorkflowFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyWorkflow, "unknown")
}

func ProviderFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyProvider, "unknown")
}

// CampaignFromContext 未设置时返回空串
func CampaignFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyCampaign, "")
}
