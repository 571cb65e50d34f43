package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"campaign-forge-api/internal/config"
	llmctx "campaign-forge-api/internal/domain/service"
	"campaign-forge-api/internal/workflow/chain"
	wfmodel "campaign-forge-api/internal/workflow/model"
	wfnode "campaign-forge-api/internal/workflow/node"
	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
)

const completionWorkflow = "campaign_generate"

// Completer 基于 CompletionChain 的 port.Completer 实现。
// 开启 llm.json_repair 时，输出中找不到 JSON 对象会追加一次修复调用；修复失败则原样返回首次输出。
// 默认关闭，散文输出由上层按句子抽取断言。
type Completer struct {
	chain    *chain.CompletionChain
	provider string
	model    string
	limiter  *rate.Limiter
	repair   bool
}

var _ port.Completer = (*Completer)(nil)

// CompleterOption Completer 配置项
type CompleterOption func(*Completer)

// WithoutRepair 关闭 JSON 修复调用
func WithoutRepair() CompleterOption {
	return func(c *Completer) { c.repair = false }
}

// NewCompleter 创建 Completer；requests_per_minute<=0 时不限速，cfg 为 nil 时不做修复
func NewCompleter(cfg *config.LLMConfig, factory port.ChatModelFactory, opts ...CompleterOption) *Completer {
	c := &Completer{
		chain: chain.NewCompletionChain(factory),
	}
	if cfg != nil {
		c.provider = cfg.DefaultProvider
		c.repair = cfg.JSONRepair
		if p, ok := cfg.Providers[cfg.DefaultProvider]; ok {
			c.model = p.Model
		}
		if cfg.RequestsPerMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete 实现 port.Completer
func (c *Completer) Complete(ctx context.Context, prompt string, maxCompletionTokens int) (string, error) {
	if c == nil || c.chain == nil {
		return "", fmt.Errorf("llm completer not configured")
	}

	out, err := c.invoke(ctx, &wfmodel.CompletionInput{
		Prompt:    prompt,
		MaxTokens: maxTokensPtr(maxCompletionTokens),
	})
	if err != nil {
		return "", err
	}

	if !c.repair {
		return out, nil
	}
	if _, err := wfnode.ExtractJSONObject(out); !errors.Is(err, wfnode.ErrNoJSONObject) {
		return out, nil
	}

	logger.Warn(ctx, "llm output has no json object, attempting repair",
		"campaign_id", llmctx.CampaignFromContext(ctx),
		"output_len", len(out),
	)
	repaired, err := c.invoke(ctx, &wfmodel.CompletionInput{
		Workflow:     "campaign_repair",
		Prompt:       prompt,
		RepairOutput: out,
		MaxTokens:    maxTokensPtr(maxCompletionTokens),
	})
	if err != nil {
		logger.Warn(ctx, "llm repair call failed, keeping original output", "error", err.Error())
		return out, nil
	}
	return repaired, nil
}

func (c *Completer) invoke(ctx context.Context, in *wfmodel.CompletionInput) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("llm rate limit wait: %w", err)
		}
	}

	if strings.TrimSpace(in.Workflow) == "" {
		in.Workflow = completionWorkflow
	}
	in.CampaignID = llmctx.CampaignFromContext(ctx)
	in.Provider = c.provider
	in.Model = c.model
	in.JSONMode = true

	out, err := c.chain.Invoke(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to complete prompt: %w", err)
	}
	return out.Content, nil
}

func maxTokensPtr(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
