// Package generation 负责战役内容的生成流程：模板选择、上下文组装、LLM 调用、溯源、信任评估与草稿管理。
package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"campaign-forge-api/internal/application/grounding"
)

// Type 生成类型
type Type string

const (
	TypeCharacter Type = "character"
	TypeNPC       Type = "npc"
	TypeSession   Type = "session"
	TypeParty     Type = "party"
	TypeArc       Type = "arc"
)

// AllTypes 全部生成类型（即模板文件名顺序）
var AllTypes = []Type{TypeCharacter, TypeNPC, TypeSession, TypeParty, TypeArc}

func (t Type) Valid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParseType 解析生成类型（大小写不敏感）
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown generation type %q", s)
	}
	return t, nil
}

// Request 生成请求，提交后不可变
type Request struct {
	Type        Type              `json:"generation_type" validate:"required,oneof=character npc session party arc"`
	CampaignID  string            `json:"campaign_id" validate:"required,max=64"`
	FreeText    string            `json:"free_text_context" validate:"max=8000"`
	Parameters  map[string]string `json:"parameters,omitempty" validate:"max=32,dive,keys,required,max=64,endkeys,max=1000"`
	RequestedBy string            `json:"requested_by" validate:"required,max=128"`
}

// Response 生成结果
type Response struct {
	DraftID              string                `json:"draft_id"`
	Type                 Type                  `json:"generation_type"`
	TemplateID           string                `json:"template_id"`
	Content              string                `json:"content"`
	Data                 json.RawMessage       `json:"data,omitempty"`
	MarkedText           string                `json:"marked_text"`
	Citations            []grounding.Citation  `json:"citations"`
	TrustAssignments     []TrustAssignment     `json:"trust_assignments"`
	UngroundedReferences []grounding.Reference `json:"ungrounded_references"`
	Confidence           float64               `json:"confidence"`
	ContextTokens        int                   `json:"context_tokens"`
}
