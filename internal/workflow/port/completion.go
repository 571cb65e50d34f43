package port

import "context"

// Completer 定义生成流程对 LLM 的最小依赖：输入完整 prompt 与补全预算，返回原始文本。
// 超时与重试策略由实现方决定，调用方只关心错误是否发生。
type Completer interface {
	Complete(ctx context.Context, prompt string, maxCompletionTokens int) (string, error)
}

// CompleterFunc 便于测试与装饰器组合
type CompleterFunc func(ctx context.Context, prompt string, maxCompletionTokens int) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string, maxCompletionTokens int) (string, error) {
	return f(ctx, prompt, maxCompletionTokens)
}
