// Package grounding 将生成文本中的规则书/设定引用解析为可追溯的引用标注（Citation）。
package grounding

import (
	"context"

	"campaign-forge-api/internal/workflow/port"
)

// MinLinkConfidence 引用被视为"已解析"的最低检索置信度
const MinLinkConfidence = 0.5

// ReferenceType 引用类别
type ReferenceType string

const (
	RefPage              ReferenceType = "page_reference"
	RefChapter           ReferenceType = "chapter_reference"
	RefParentheticalBook ReferenceType = "parenthetical_book"
	RefSpell             ReferenceType = "spell"
	RefMonster           ReferenceType = "monster"
	RefFeat              ReferenceType = "feat"
	RefClassFeature      ReferenceType = "class_feature"
	RefCondition         ReferenceType = "condition"
	RefGameMechanic      ReferenceType = "game_mechanic"
	RefItem              ReferenceType = "item"
	RefGenericTerm       ReferenceType = "generic_term"
)

// Reference 文本中检测到的一处引用。StartPos/EndPos 为字节偏移，EndPos 不含。
type Reference struct {
	RawText    string        `json:"raw_text"`
	Type       ReferenceType `json:"reference_type"`
	SourceName string        `json:"source_name,omitempty"`
	Page       *int          `json:"page,omitempty"`
	Chapter    string        `json:"chapter,omitempty"`
	Section    string        `json:"section,omitempty"`
	Term       string        `json:"term,omitempty"`
	StartPos   int           `json:"start_pos"`
	EndPos     int           `json:"end_pos"`
}

// LinkedContent 引用在检索库中对应的片段
type LinkedContent struct {
	PassageID     string              `json:"passage_id"`
	Content       string              `json:"content"`
	Source        port.SourceMetadata `json:"source"`
	Confidence    float64             `json:"confidence"`
	ReferenceType ReferenceType       `json:"reference_type"`
}

// ValidatedReference 解析成功的引用
type ValidatedReference struct {
	Reference Reference     `json:"reference"`
	Linked    LinkedContent `json:"linked"`
}

// InvalidReference 未能解析的引用
type InvalidReference struct {
	Reference Reference `json:"reference"`
	Reason    string    `json:"reason"`
}

// ValidationReport 引用校验结果
type ValidationReport struct {
	Valid   []ValidatedReference `json:"valid"`
	Invalid []InvalidReference   `json:"invalid"`
}

// Total 参与校验的引用总数
func (r *ValidationReport) Total() int {
	if r == nil {
		return 0
	}
	return len(r.Valid) + len(r.Invalid)
}

// SuccessRate 有效引用占比；无引用时视为 1.0
func (r *ValidationReport) SuccessRate() float64 {
	total := r.Total()
	if total == 0 {
		return 1.0
	}
	return float64(len(r.Valid)) / float64(total)
}

// GroundedContent 溯源后的文本
type GroundedContent struct {
	Text                 string      `json:"text"`
	MarkedText           string      `json:"marked_text"`
	Citations            []Citation  `json:"citations"`
	Confidence           float64     `json:"confidence"`
	UngroundedReferences []Reference `json:"ungrounded_references"`
}

// Grounder 溯源能力
type Grounder interface {
	Ground(ctx context.Context, text, campaignID string) (*GroundedContent, error)
	Validate(ctx context.Context, text string) (*ValidationReport, error)
}

// meanConfidence 引用置信度均值；无引用时为 0
func meanConfidence(citations []Citation) float64 {
	if len(citations) == 0 {
		return 0
	}
	var sum float64
	for _, c := range citations {
		sum += c.Confidence
	}
	return sum / float64(len(citations))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func intPtr(v int) *int { return &v }
