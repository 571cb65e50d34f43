package retrieval

import "campaign-forge-api/internal/workflow/port"

// SourceDocument 一份待入库的来源文档（规则书、小说、冒险模组等）
type SourceDocument struct {
	SourceID   string            `json:"source_id" yaml:"source_id"`
	SourceName string            `json:"source_name" yaml:"source_name"`
	SourceType string            `json:"source_type" yaml:"source_type"`
	Scope      port.SearchScope  `json:"scope" yaml:"scope"`
	GameSystem string            `json:"game_system" yaml:"game_system"`
	Setting    string            `json:"setting" yaml:"setting"`
	Sections   []DocumentSection `json:"sections" yaml:"sections"`
}

// DocumentSection 文档中的一节；过长时会被切分为多个片段
type DocumentSection struct {
	Title     string `json:"title" yaml:"title"`
	Page      int    `json:"page,omitempty" yaml:"page"`
	ChunkType string `json:"chunk_type,omitempty" yaml:"chunk_type"`
	Text      string `json:"text" yaml:"text"`
}

// IndexStats 一次入库的统计
type IndexStats struct {
	DocID    string
	Passages int
}
