package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "campaign-forge-api/internal/domain/service"
	wfmodel "campaign-forge-api/internal/workflow/model"
	wfnode "campaign-forge-api/internal/workflow/node"
	workflowport "campaign-forge-api/internal/workflow/port"
	workflowprompt "campaign-forge-api/internal/workflow/prompt"
	"campaign-forge-api/pkg/logger"
)

const defaultCompletionWorkflow = "campaign_generate"

// CompletionChain prompt -> ChatModel -> 文本；链在首次调用时编译一次
type CompletionChain struct {
	factory workflowport.ChatModelFactory
	prompts *workflowprompt.Registry

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.CompletionInput, *wfmodel.CompletionOutput]
	chainErr  error
}

func NewCompletionChain(factory workflowport.ChatModelFactory) *CompletionChain {
	return &CompletionChain{factory: factory, prompts: workflowprompt.NewRegistry()}
}

func (c *CompletionChain) Invoke(ctx context.Context, in *wfmodel.CompletionInput) (*wfmodel.CompletionOutput, error) {
	if c == nil || c.factory == nil {
		return nil, fmt.Errorf("llm factory not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

type completionChainState struct {
	In       *wfmodel.CompletionInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *CompletionChain) getChain() (compose.Runnable[*wfmodel.CompletionInput, *wfmodel.CompletionOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *CompletionChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.CompletionInput, *wfmodel.CompletionOutput], error) {
	chain := compose.NewChain[*wfmodel.CompletionInput, *wfmodel.CompletionOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.CompletionInput) (*completionChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &completionChainState{In: in}, nil
		}),
		compose.WithNodeName("completion.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *completionChainState) (*completionChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}
			msgs, err := c.formatMessages(ctx, st.In)
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("completion.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *completionChainState) (*completionChainState, error) {
			if st == nil || st.In == nil {
				return nil, fmt.Errorf("state is nil")
			}

			provider := strings.TrimSpace(st.In.Provider)
			ctx = llmctx.WithWorkflowProvider(ctx, workflowName(st.In), provider)
			ctx = llmctx.WithCampaign(ctx, st.In.CampaignID)
			chatModel, err := c.factory.Get(ctx, provider)
			if err != nil {
				return nil, err
			}

			outMsg, err := chatModel.Generate(ctx, st.Messages, buildCompletionOptions(st.In, st.In.JSONMode)...)
			if err != nil && st.In.JSONMode && wfnode.IsResponseFormatUnsupportedError(err) {
				logger.Warn(ctx, "llm json mode not supported, fallback to prompt-only",
					"provider", provider,
					"model", strings.TrimSpace(st.In.Model),
					"error", err.Error(),
				)
				outMsg, err = chatModel.Generate(ctx, st.Messages, buildCompletionOptions(st.In, false)...)
			}
			if err != nil {
				return nil, err
			}
			if outMsg == nil {
				return nil, fmt.Errorf("empty llm response")
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("completion.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *completionChainState) (*wfmodel.CompletionOutput, error) {
			if st == nil || st.OutMsg == nil {
				return nil, fmt.Errorf("state is nil")
			}
			content := strings.TrimSpace(st.OutMsg.Content)
			if content == "" {
				return nil, fmt.Errorf("empty llm response")
			}
			return &wfmodel.CompletionOutput{
				Content: content,
				Meta:    usageMeta(st.In, st.OutMsg),
			}, nil
		}),
		compose.WithNodeName("completion.finalize"),
	)

	return chain.Compile(ctx)
}

func (c *CompletionChain) formatMessages(ctx context.Context, in *wfmodel.CompletionInput) ([]*schema.Message, error) {
	if raw := strings.TrimSpace(in.RepairOutput); raw != "" {
		tpl, err := c.prompts.ChatTemplate(workflowprompt.PromptCompletionRepairV1)
		if err != nil {
			return nil, err
		}
		return tpl.Format(ctx, map[string]any{"raw_output": raw})
	}
	tpl, err := c.prompts.ChatTemplate(workflowprompt.PromptCampaignCompletionV1)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, map[string]any{"prompt": strings.TrimSpace(in.Prompt)})
}

func buildCompletionOptions(in *wfmodel.CompletionInput, jsonMode bool) []model.Option {
	opts := make([]model.Option, 0, 4)
	if in == nil {
		return opts
	}
	if in.Temperature != nil {
		opts = append(opts, model.WithTemperature(*in.Temperature))
	}
	if in.MaxTokens != nil && *in.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(*in.MaxTokens))
	}
	if m := strings.TrimSpace(in.Model); m != "" {
		opts = append(opts, model.WithModel(m))
	}
	if jsonMode {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{"type": "json_object"},
		}))
	}
	return opts
}

func workflowName(in *wfmodel.CompletionInput) string {
	if in != nil && strings.TrimSpace(in.Workflow) != "" {
		return strings.TrimSpace(in.Workflow)
	}
	return defaultCompletionWorkflow
}

func usageMeta(in *wfmodel.CompletionInput, out *schema.Message) wfmodel.LLMUsageMeta {
	meta := wfmodel.LLMUsageMeta{
		Provider:    strings.TrimSpace(in.Provider),
		Model:       strings.TrimSpace(in.Model),
		GeneratedAt: time.Now().UTC(),
	}
	if in.Temperature != nil {
		meta.Temperature = float64(*in.Temperature)
	}
	if out != nil && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		meta.PromptTokens = out.ResponseMeta.Usage.PromptTokens
		meta.CompletionTokens = out.ResponseMeta.Usage.CompletionTokens
	}
	return meta
}
