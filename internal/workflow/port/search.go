package port

import "context"

// SearchScope 检索范围（对应向量库中的 index_scope 字段）
type SearchScope string

const (
	ScopeRules    SearchScope = "rules"
	ScopeFiction  SearchScope = "fiction"
	ScopeCampaign SearchScope = "campaign"
)

// SearchRequest 检索请求
type SearchRequest struct {
	Scope  SearchScope
	Query  string
	Filter string
	Limit  int
}

// SourceMetadata 命中片段的来源信息
type SourceMetadata struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	SourceType string `json:"source_type"`
	Page       *int   `json:"page,omitempty"`
	Section    string `json:"section,omitempty"`
	ChunkType  string `json:"chunk_type,omitempty"`
	Title      string `json:"title,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
}

// SearchHit 单条命中；Confidence 取值 0.0~1.0
type SearchHit struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Source     SourceMetadata `json:"source"`
	Confidence float64        `json:"confidence"`
}

// Searcher 定义对检索能力的最小依赖（port）。
// 返回结果按相关度降序；同分时保持检索引擎的原始顺序。
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchHit, error)
}
