package milvus

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionSourcePassages 来源片段集合（规则书、小说、已采纳的战役实体）
	CollectionSourcePassages = "source_passages"

	// DefaultVectorDimension 未配置维度时的默认值
	DefaultVectorDimension = 1024

	fieldID         = "id"
	fieldVector     = "vector"
	fieldScope      = "index_scope"
	fieldDocID      = "doc_id"
	fieldSourceID   = "source_id"
	fieldSourceName = "source_name"
	fieldSourceType = "source_type"
	fieldGameSystem = "game_system"
	fieldSetting    = "setting"
	fieldCampaignID = "campaign_id"
	fieldChunkType  = "chunk_type"
	fieldSection    = "section"
	fieldTitle      = "title"
	fieldPage       = "page"
	fieldContent    = "content"
)

// outputFields 检索时回传的标量字段
var outputFields = []string{
	fieldID, fieldContent, fieldSourceID, fieldSourceName, fieldSourceType,
	fieldCampaignID, fieldChunkType, fieldSection, fieldTitle, fieldPage,
}

func varchar(name string, maxLen int) *entity.Field {
	return &entity.Field{
		Name:     name,
		DataType: entity.FieldTypeVarChar,
		TypeParams: map[string]string{
			"max_length": strconv.Itoa(maxLen),
		},
	}
}

// SourcePassagesSchema 来源片段 Collection Schema
func SourcePassagesSchema(dim int) *entity.Schema {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	id := varchar(fieldID, 64)
	id.PrimaryKey = true

	return &entity.Schema{
		CollectionName: CollectionSourcePassages,
		Description:    "Rulebook, fiction and campaign passages for grounding",
		Fields: []*entity.Field{
			id,
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			varchar(fieldScope, 16),
			varchar(fieldDocID, 64),
			varchar(fieldSourceID, 64),
			varchar(fieldSourceName, 256),
			varchar(fieldSourceType, 32),
			varchar(fieldGameSystem, 64),
			varchar(fieldSetting, 128),
			varchar(fieldCampaignID, 64),
			varchar(fieldChunkType, 32),
			varchar(fieldSection, 256),
			varchar(fieldTitle, 256),
			{
				Name:     fieldPage,
				DataType: entity.FieldTypeInt64,
			},
			varchar(fieldContent, 65535),
		},
	}
}

// SourcePassage 来源片段数据结构；Page 为 0 表示无页码
type SourcePassage struct {
	ID         string    `json:"id"`
	Vector     []float32 `json:"vector"`
	Scope      string    `json:"index_scope"`
	DocID      string    `json:"doc_id"`
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	SourceType string    `json:"source_type"`
	GameSystem string    `json:"game_system"`
	Setting    string    `json:"setting"`
	CampaignID string    `json:"campaign_id"`
	ChunkType  string    `json:"chunk_type"`
	Section    string    `json:"section"`
	Title      string    `json:"title"`
	Page       int64     `json:"page"`
	Content    string    `json:"content"`
}

// PartitionName 每个检索范围一个分区
func PartitionName(scope string) string {
	return "scope_" + scope
}

// QuoteString 生成 Milvus 表达式中的字符串字面量
func QuoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// truncateBytes 按 varchar 字节上限截断，不切断多字节字符
func truncateBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := []byte(s)[:maxBytes]
	for len(b) > 0 && !utf8.Valid(b) {
		b = b[:len(b)-1]
	}
	return string(b)
}
