package retrieval

import (
	"context"

	"campaign-forge-api/internal/workflow/port"
)

// VectorRepository 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorRepository interface {
	EnsurePassagesCollection(ctx context.Context) error
	SearchPassages(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
	DeletePassagesByDoc(ctx context.Context, scope port.SearchScope, docID string) error
	InsertPassages(ctx context.Context, passages []*VectorPassage) error
}

type VectorSearchParams struct {
	Scope       port.SearchScope
	Filter      string
	QueryVector []float32
	TopK        int
}

// VectorSearchResult Score 为 COSINE 相似度
type VectorSearchResult struct {
	ID      string
	Score   float32
	Content string
	Source  port.SourceMetadata
}

type VectorPassage struct {
	ID         string
	DocID      string
	Scope      port.SearchScope
	Content    string
	GameSystem string
	Setting    string
	Source     port.SourceMetadata
	Vector     []float32
}
