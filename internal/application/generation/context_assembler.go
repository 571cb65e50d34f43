package generation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"campaign-forge-api/internal/workflow/node"
	"campaign-forge-api/internal/workflow/port"
)

// DefaultMinSectionTokens 低于该剩余预算时直接丢弃分段
const DefaultMinSectionTokens = 20

// Priority 分段优先级
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// SectionKind 上下文分段类别
type SectionKind string

const (
	SectionCampaign  SectionKind = "campaign"
	SectionSession   SectionKind = "session"
	SectionRequest   SectionKind = "request"
	SectionGrounding SectionKind = "grounding"
	SectionTemplate  SectionKind = "template"
)

// sectionOrder 固定的分段顺序即优先顺序
var sectionOrder = []struct {
	kind     SectionKind
	priority Priority
	label    string
}{
	{SectionCampaign, PriorityHigh, "Campaign"},
	{SectionSession, PriorityHigh, "Current Session"},
	{SectionRequest, PriorityMedium, "Request"},
	{SectionGrounding, PriorityMedium, "Reference Material"},
	{SectionTemplate, PriorityLow, "Instructions"},
}

// TokenBudget token 预算
type TokenBudget struct {
	MaxTotalTokens        int                 `json:"max_total_tokens"`
	ReservedForCompletion int                 `json:"reserved_for_completion"`
	SectionCaps           map[SectionKind]int `json:"section_caps,omitempty"`
	MinSectionTokens      int                 `json:"min_section_tokens"`
}

// DefaultTokenBudget 默认预算：8000 总量，2000 预留补全
func DefaultTokenBudget() TokenBudget {
	return TokenBudget{
		MaxTotalTokens:        8000,
		ReservedForCompletion: 2000,
		SectionCaps: map[SectionKind]int{
			SectionCampaign:  1000,
			SectionSession:   1000,
			SectionGrounding: 2000,
			SectionTemplate:  500,
		},
		MinSectionTokens: DefaultMinSectionTokens,
	}
}

// Available prompt 可用的 token 数
func (b TokenBudget) Available() int {
	return b.MaxTotalTokens - b.ReservedForCompletion
}

// Validate 校验预算：各分段上限之和不超过 MaxTotalTokens - ReservedForCompletion
func (b TokenBudget) Validate() error {
	if b.MaxTotalTokens <= 0 {
		return fmt.Errorf("%w: max_total_tokens must be positive", ErrContextAssembly)
	}
	if b.ReservedForCompletion < 0 || b.ReservedForCompletion >= b.MaxTotalTokens {
		return fmt.Errorf("%w: reserved_for_completion must be in [0, max_total_tokens)", ErrContextAssembly)
	}
	if b.MinSectionTokens < 0 {
		return fmt.Errorf("%w: min_section_tokens must not be negative", ErrContextAssembly)
	}
	sum := 0
	for kind, limit := range b.SectionCaps {
		if limit < 0 {
			return fmt.Errorf("%w: cap for section %s is negative", ErrContextAssembly, kind)
		}
		sum += limit
	}
	if sum > b.Available() {
		return fmt.Errorf("%w: section caps sum %d exceeds available %d", ErrContextAssembly, sum, b.Available())
	}
	return nil
}

// ContextSection 组装后的上下文分段
type ContextSection struct {
	Kind         SectionKind `json:"kind"`
	Priority     Priority    `json:"priority"`
	SourceLabel  string      `json:"source_label"`
	Text         string      `json:"text"`
	TokenCount   int         `json:"token_count"`
	// HeaderTokens 渲染时分隔符与标题占用的 token，计入 TotalTokens
	HeaderTokens int         `json:"header_tokens,omitempty"`
	Truncated    bool        `json:"truncated,omitempty"`
}

// AssembledContext 组装结果，TotalTokens 含分段标题，不超过预算可用量
type AssembledContext struct {
	Sections    []ContextSection `json:"sections"`
	TotalTokens int              `json:"total_tokens"`
	Budget      TokenBudget      `json:"budget"`
	Dropped     []SectionKind    `json:"dropped,omitempty"`
}

// Section 返回指定分段
func (c *AssembledContext) Section(kind SectionKind) (ContextSection, bool) {
	if c == nil {
		return ContextSection{}, false
	}
	for _, s := range c.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return ContextSection{}, false
}

// Prompt 渲染最终 prompt：模板说明在前，其余分段按优先顺序附带标题。
// 标题与分隔符已按 sectionHeader 计入各分段的 HeaderTokens。
func (c *AssembledContext) Prompt() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	if tpl, ok := c.Section(SectionTemplate); ok {
		b.WriteString(tpl.Text)
	}
	for _, s := range c.Sections {
		if s.Kind == SectionTemplate {
			continue
		}
		header := sectionHeader(s.SourceLabel)
		if b.Len() == 0 {
			header = strings.TrimLeft(header, "\n")
		}
		b.WriteString(header)
		b.WriteString(s.Text)
	}
	return b.String()
}

// sectionHeader 非模板分段在 prompt 中的前缀
func sectionHeader(label string) string {
	return "\n\n### " + label + "\n"
}

// headerTokens 分段前缀的 token 数；模板分段没有前缀
func headerTokens(kind SectionKind, label string) int {
	if kind == SectionTemplate {
		return 0
	}
	return node.EstimateTokens(sectionHeader(label))
}

// AssembleInput 上下文组装输入
type AssembleInput struct {
	Snapshot *port.CampaignSnapshot
	Excerpts []string
	Template string
	Request  *Request
	Budget   TokenBudget
}

// ContextAssembler 在 token 预算内按优先级组装上下文
type ContextAssembler struct{}

func NewContextAssembler() *ContextAssembler { return &ContextAssembler{} }

// Assemble 依次加入各分段；超出时在句子/行边界截断，剩余预算不足最小分段时丢弃。
// 分段上限与总预算都包含该分段的标题开销。
// 最高优先级的非空分段无法放入时返回 ErrBudgetTooSmall。
func (a *ContextAssembler) Assemble(in AssembleInput) (*AssembledContext, error) {
	if err := in.Budget.Validate(); err != nil {
		return nil, err
	}
	minSection := in.Budget.MinSectionTokens
	if minSection <= 0 {
		minSection = DefaultMinSectionTokens
	}

	texts := map[SectionKind]string{
		SectionCampaign:  campaignText(in.Snapshot),
		SectionSession:   sessionText(in.Snapshot),
		SectionRequest:   requestText(in.Request),
		SectionGrounding: groundingText(in.Excerpts),
		SectionTemplate:  strings.TrimSpace(in.Template),
	}

	out := &AssembledContext{Budget: in.Budget}
	available := in.Budget.Available()
	first := true
	for _, def := range sectionOrder {
		text := texts[def.kind]
		if text == "" {
			continue
		}
		isFirst := first
		first = false

		header := headerTokens(def.kind, def.label)
		limit := available - out.TotalTokens
		if c, ok := in.Budget.SectionCaps[def.kind]; ok && c < limit {
			limit = c
		}
		limit -= header

		tokens := node.EstimateTokens(text)
		truncated := false
		if tokens > limit {
			if limit >= minSection {
				text = truncateToTokens(text, limit)
				tokens = node.EstimateTokens(text)
				truncated = true
			}
			if limit < minSection || text == "" {
				if isFirst {
					return nil, fmt.Errorf("%w: section %s needs %d tokens, %d available", ErrBudgetTooSmall, def.kind, node.EstimateTokens(texts[def.kind]), limit)
				}
				out.Dropped = append(out.Dropped, def.kind)
				continue
			}
		}

		out.Sections = append(out.Sections, ContextSection{
			Kind:         def.kind,
			Priority:     def.priority,
			SourceLabel:  def.label,
			Text:         text,
			TokenCount:   tokens,
			HeaderTokens: header,
			Truncated:    truncated,
		})
		out.TotalTokens += tokens + header
	}
	return out, nil
}

// truncateToTokens 截断到 maxTokens 以内：优先句子/行边界，其次单词边界，不切断单词。
// 无法在边界截断时返回空串。
func truncateToTokens(text string, maxTokens int) string {
	runes := []rune(text)
	maxRunes := node.RunesForTokens(maxTokens)
	if len(runes) <= maxRunes {
		return text
	}
	window := runes[:maxRunes]

	// 句子或行边界：保留到边界字符（含）
	for i := len(window) - 1; i > 0; i-- {
		r := window[i]
		if r == '\n' {
			return strings.TrimSpace(string(window[:i]))
		}
		if (r == '.' || r == '!' || r == '?' || r == '。') && (i+1 >= len(runes) || unicode.IsSpace(runes[i+1])) {
			return strings.TrimSpace(string(window[:i+1]))
		}
	}
	// 单词边界：截断点之后的字符必须是空白
	for i := len(window); i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimSpace(string(runes[:i]))
		}
	}
	return ""
}

func campaignText(s *port.CampaignSnapshot) string {
	if s == nil {
		return ""
	}
	var lines []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Campaign", s.Name)
	add("Game System", s.GameSystem)
	add("Setting", s.Setting)
	add("Tone", s.Tone)
	add("Description", s.Description)
	return strings.Join(lines, "\n")
}

func sessionText(s *port.CampaignSnapshot) string {
	if s == nil {
		return ""
	}
	var lines []string
	if t := strings.TrimSpace(s.SessionTitle); t != "" {
		if s.SessionNumber > 0 {
			lines = append(lines, fmt.Sprintf("Session %d: %s", s.SessionNumber, t))
		} else {
			lines = append(lines, "Session: "+t)
		}
	}
	if v := strings.TrimSpace(s.SessionSummary); v != "" {
		lines = append(lines, "Summary: "+v)
	}
	if v := strings.TrimSpace(s.ActiveScene); v != "" {
		lines = append(lines, "Active Scene: "+v)
	}
	return strings.Join(lines, "\n")
}

func requestText(r *Request) string {
	if r == nil {
		return ""
	}
	var lines []string
	lines = append(lines, "Generate: "+string(r.Type))
	if v := strings.TrimSpace(r.FreeText); v != "" {
		lines = append(lines, "Details: "+v)
	}
	keys := make([]string, 0, len(r.Parameters))
	for k := range r.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(r.Parameters[k]); v != "" {
			lines = append(lines, k+": "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func groundingText(excerpts []string) string {
	parts := make([]string, 0, len(excerpts))
	for _, e := range excerpts {
		if e = strings.TrimSpace(e); e != "" {
			parts = append(parts, "- "+e)
		}
	}
	return strings.Join(parts, "\n")
}
