package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
)

// ChatModelFactory 按供应商名取得 ChatModel；name 为空时返回默认供应商
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// ChatModelFactoryFunc 函数适配器，测试中用于注入假模型
type ChatModelFactoryFunc func(ctx context.Context, name string) (model.BaseChatModel, error)

// Get 实现 ChatModelFactory
func (f ChatModelFactoryFunc) Get(ctx context.Context, name string) (model.BaseChatModel, error) {
	return f(ctx, name)
}
