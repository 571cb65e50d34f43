package retrieval

import "errors"

var (
	// ErrVectorDisabled 表示向量检索/索引能力未配置（Milvus 或 Embedder 不可用）。
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrEmptyQuery 检索词为空
	ErrEmptyQuery = errors.New("query is required")
	// ErrInvalidScope 未知检索范围
	ErrInvalidScope = errors.New("invalid search scope")
)
