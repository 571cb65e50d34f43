package grounding

import (
	"strings"

	"github.com/google/uuid"

	"campaign-forge-api/internal/workflow/node"
)

// CitationSourceType 引用来源类别
type CitationSourceType string

const (
	SourceRulebook       CitationSourceType = "rulebook"
	SourceFlavour        CitationSourceType = "flavour_source"
	SourceAdventure      CitationSourceType = "adventure"
	SourceHomebrew       CitationSourceType = "homebrew"
	SourceCampaignEntity CitationSourceType = "campaign_entity"
	SourceUserInput      CitationSourceType = "user_input"
)

// SourceLocation 来源内的位置
type SourceLocation struct {
	Page    *int   `json:"page,omitempty"`
	Chapter string `json:"chapter,omitempty"`
	Section string `json:"section,omitempty"`
}

func (l *SourceLocation) empty() bool {
	return l == nil || (l.Page == nil && l.Chapter == "" && l.Section == "")
}

// Citation 一条引用标注。Marker 对应文本中的 [n] 编号（从 1 开始），
// Reference 为被解析引用在原文中的片段。
type Citation struct {
	ID          string             `json:"id"`
	Marker      int                `json:"marker"`
	SourceType  CitationSourceType `json:"source_type"`
	SourceName  string             `json:"source_name"`
	SourceID    string             `json:"source_id,omitempty"`
	PassageID   string             `json:"passage_id,omitempty"`
	Location    *SourceLocation    `json:"location,omitempty"`
	Excerpt     string             `json:"excerpt,omitempty"`
	Confidence  float64            `json:"confidence"`
	TermMatched string             `json:"term_matched"`
	Reference   string             `json:"reference,omitempty"`
}

// CitationBuilder 链式构建 Citation
type CitationBuilder struct {
	c   Citation
	loc SourceLocation
}

// NewCitationBuilder 创建指定来源类型的构建器
func NewCitationBuilder(sourceType CitationSourceType, sourceName string, confidence float64) *CitationBuilder {
	return &CitationBuilder{c: Citation{
		SourceType: sourceType,
		SourceName: strings.TrimSpace(sourceName),
		Confidence: clamp01(confidence),
	}}
}

func FromRulebook(name string) *CitationBuilder {
	return NewCitationBuilder(SourceRulebook, name, 0.9)
}

func FromFlavourSource(name string) *CitationBuilder {
	return NewCitationBuilder(SourceFlavour, name, 0.8)
}

func FromAdventure(name string) *CitationBuilder {
	return NewCitationBuilder(SourceAdventure, name, 0.85)
}

func FromHomebrew(name string) *CitationBuilder {
	return NewCitationBuilder(SourceHomebrew, name, 0.7)
}

// FromCampaignEntity 战役内已确认实体，置信度恒为 1.0
func FromCampaignEntity(name string) *CitationBuilder {
	return NewCitationBuilder(SourceCampaignEntity, name, 1.0)
}

func FromUserInput(name string) *CitationBuilder {
	return NewCitationBuilder(SourceUserInput, name, 1.0)
}

// ForSourceType 按索引时记录的 source_type 选择构建器；未知或为空时使用 fallback
func ForSourceType(sourceType string, fallback CitationSourceType, name string) *CitationBuilder {
	if b, ok := builderFor(CitationSourceType(strings.TrimSpace(sourceType)), name); ok {
		return b
	}
	if b, ok := builderFor(fallback, name); ok {
		return b
	}
	return FromFlavourSource(name)
}

func builderFor(t CitationSourceType, name string) (*CitationBuilder, bool) {
	switch t {
	case SourceRulebook:
		return FromRulebook(name), true
	case SourceFlavour:
		return FromFlavourSource(name), true
	case SourceAdventure:
		return FromAdventure(name), true
	case SourceHomebrew:
		return FromHomebrew(name), true
	case SourceCampaignEntity:
		return FromCampaignEntity(name), true
	case SourceUserInput:
		return FromUserInput(name), true
	}
	return nil, false
}

func (b *CitationBuilder) SourceID(id string) *CitationBuilder {
	b.c.SourceID = strings.TrimSpace(id)
	return b
}

func (b *CitationBuilder) PassageID(id string) *CitationBuilder {
	b.c.PassageID = strings.TrimSpace(id)
	return b
}

func (b *CitationBuilder) Page(page int) *CitationBuilder {
	b.loc.Page = intPtr(page)
	return b
}

func (b *CitationBuilder) Chapter(chapter string) *CitationBuilder {
	b.loc.Chapter = strings.TrimSpace(chapter)
	return b
}

func (b *CitationBuilder) Section(section string) *CitationBuilder {
	b.loc.Section = strings.TrimSpace(section)
	return b
}

// Excerpt 截取前 200 个字符作为摘录
func (b *CitationBuilder) Excerpt(content string) *CitationBuilder {
	b.c.Excerpt = node.TruncateByRunes(content, excerptRunes)
	return b
}

func (b *CitationBuilder) Confidence(v float64) *CitationBuilder {
	b.c.Confidence = clamp01(v)
	return b
}

func (b *CitationBuilder) Term(term string) *CitationBuilder {
	b.c.TermMatched = strings.TrimSpace(term)
	return b
}

// Reference 记录原文中的引用片段，不做裁剪
func (b *CitationBuilder) Reference(raw string) *CitationBuilder {
	b.c.Reference = raw
	return b
}

// Build 生成 Citation；位置信息全空时 Location 为 nil
func (b *CitationBuilder) Build() Citation {
	out := b.c
	out.ID = uuid.NewString()
	if !b.loc.empty() {
		loc := b.loc
		out.Location = &loc
	}
	return out
}

const excerptRunes = 200
