package retrieval

import (
	"context"

	"campaign-forge-api/internal/workflow/port"
)

// NopSearcher 向量检索不可用时的占位实现：总是返回空结果，引用全部记为未溯源
type NopSearcher struct{}

var _ port.Searcher = NopSearcher{}

func (NopSearcher) Search(context.Context, port.SearchRequest) ([]port.SearchHit, error) {
	return nil, nil
}
