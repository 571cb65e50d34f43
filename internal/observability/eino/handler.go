package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/internal/domain/service"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

// startTimeKey 在 OnStart 写入开始时间，OnEnd/OnError 计算耗时
type startTimeKey struct{}

// newChatModelCallbackHandler 记录每次 ChatModel 调用的次数、耗时、token 与追踪信息，
// 并把用量交给 usageRecorder（可为 nil）。
func newChatModelCallbackHandler(usageRecorder service.LLMUsageRecorder) *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", service.WorkflowFromContext(ctx)),
				attribute.String("llm.provider", service.ProviderFromContext(ctx)),
				attribute.String("llm.model", modelNameFromInput(input)),
			}
			if campaignID := service.CampaignFromContext(ctx); campaignID != "" {
				attrs = append(attrs, attribute.String("campaign.id", campaignID))
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			provider := service.ProviderFromContext(ctx)
			modelName := modelNameFromOutput(output)

			metrics.LLMCallTotal.WithLabelValues(workflow, provider, modelName, "success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(workflow, provider, modelName).Observe(d)
			}

			if output != nil && output.TokenUsage != nil {
				promptTokens := output.TokenUsage.PromptTokens
				completionTokens := output.TokenUsage.CompletionTokens

				metrics.LLMTokensUsed.WithLabelValues(workflow, provider, modelName, "prompt").Add(float64(promptTokens))
				metrics.LLMTokensUsed.WithLabelValues(workflow, provider, modelName, "completion").Add(float64(completionTokens))

				if usageRecorder != nil {
					err := usageRecorder.Record(ctx, service.LLMUsageInput{
						CampaignID:       service.CampaignFromContext(ctx),
						Workflow:         workflow,
						Provider:         provider,
						Model:            modelName,
						PromptTokens:     promptTokens,
						CompletionTokens: completionTokens,
						DurationMs:       int(elapsedSeconds(ctx) * 1000),
					})
					if err != nil {
						logger.Warn(ctx, "failed to record llm usage", "error", err.Error())
					}
				}
			}

			if span := trace.SpanFromContext(ctx); span != nil {
				if output != nil && output.TokenUsage != nil {
					span.SetAttributes(
						attribute.Int("llm.prompt_tokens", output.TokenUsage.PromptTokens),
						attribute.Int("llm.completion_tokens", output.TokenUsage.CompletionTokens),
					)
				}
				span.End()
			}
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			workflow := service.WorkflowFromContext(ctx)
			provider := service.ProviderFromContext(ctx)
			modelName := ""
			if info != nil {
				modelName = info.Type
			}

			metrics.LLMCallTotal.WithLabelValues(workflow, provider, modelName, "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(workflow, provider, modelName).Observe(d)
			}

			if span := trace.SpanFromContext(ctx); span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
			}
			return ctx
		},
	}
}

func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
