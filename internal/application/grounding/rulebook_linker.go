package grounding

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/tracer"
)

var groundingTracer = otel.Tracer("grounding")

const defaultLinkLimit = 5

// 引用识别规则，按优先级排列；同一位置、同等长度的匹配取优先级高者
var (
	pageRefPattern = regexp.MustCompile(`(?i)\b(PHB|DMG|MM|XGtE|TCoE|VGtM|MToF|FToD|MotM|Player'?s?\s*Handbook|Dungeon\s*Master'?s?\s*Guide|Monster\s*Manual)\s*(?:p\.?|pg\.?|page)\s*(\d+)\b`)

	chapterRefPattern = regexp.MustCompile(`(?i)\b(PHB|DMG|MM|XGtE|TCoE|Player'?s?\s*Handbook|Dungeon\s*Master'?s?\s*Guide)\s*(?:Chapter|Ch\.?)\s*(\d+|[IVX]+)\b(?:\s*[:\-]\s*([^,\.\n]+))?`)

	seePagePattern = regexp.MustCompile(`(?i)\bsee\s+page\s+(\d+)\s+of\s+(?:the\s+)?([A-Za-z][A-Za-z0-9'\- ]*[A-Za-z0-9])`)

	parenBookPattern = regexp.MustCompile(`(?i)\((?:see\s+)?(Player'?s?\s*Handbook|Dungeon\s*Master'?s?\s*Guide|Monster\s*Manual|Xanathar'?s?\s*Guide|Tasha'?s?\s*Cauldron|Volo'?s?\s*Guide)\)`)

	seeParenPattern = regexp.MustCompile(`(?i)\(see\s+([^()\n]{2,120}?)\)`)

	mechanicPattern = regexp.MustCompile(`\b(DC|AC|CR)\s*(\d+(?:/\d+)?)\b`)

	conditionPattern = regexp.MustCompile(`(?i)\b(blinded|charmed|deafened|exhaustion|frightened|grappled|incapacitated|invisible|paralyzed|petrified|poisoned|prone|restrained|stunned|unconscious)\b`)
)

// RulebookLinker 识别文本中的规则书引用，并在 rules 检索范围内解析它们。
type RulebookLinker struct {
	searcher port.Searcher
	limit    int
}

// NewRulebookLinker 创建 RulebookLinker
func NewRulebookLinker(searcher port.Searcher) *RulebookLinker {
	return &RulebookLinker{searcher: searcher, limit: defaultLinkLimit}
}

type candidate struct {
	ref      Reference
	priority int
}

// FindReferences 检测文本中的全部引用（纯函数）。
// 重叠的匹配去重：起点最早者优先，其次最长者，再次规则优先级。结果按起点升序。
func (l *RulebookLinker) FindReferences(text string) []Reference {
	return FindReferences(text)
}

// FindReferences 见 RulebookLinker.FindReferences
func FindReferences(text string) []Reference {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var cands []candidate
	add := func(priority int, ref Reference) {
		cands = append(cands, candidate{ref: ref, priority: priority})
	}

	for _, m := range pageRefPattern.FindAllStringSubmatchIndex(text, -1) {
		page, _ := strconv.Atoi(text[m[4]:m[5]])
		add(0, Reference{
			RawText:    text[m[0]:m[1]],
			Type:       RefPage,
			SourceName: NormalizeBookName(text[m[2]:m[3]]),
			Page:       intPtr(page),
			StartPos:   m[0],
			EndPos:     m[1],
		})
	}

	for _, m := range chapterRefPattern.FindAllStringSubmatchIndex(text, -1) {
		ref := Reference{
			RawText:    text[m[0]:m[1]],
			Type:       RefChapter,
			SourceName: NormalizeBookName(text[m[2]:m[3]]),
			Chapter:    text[m[4]:m[5]],
			StartPos:   m[0],
			EndPos:     m[1],
		}
		if m[6] >= 0 {
			ref.Section = strings.TrimSpace(text[m[6]:m[7]])
		}
		add(1, ref)
	}

	for _, m := range seePagePattern.FindAllStringSubmatchIndex(text, -1) {
		page, _ := strconv.Atoi(text[m[2]:m[3]])
		add(2, Reference{
			RawText:    text[m[0]:m[1]],
			Type:       RefPage,
			SourceName: NormalizeBookName(strings.TrimSpace(text[m[4]:m[5]])),
			Page:       intPtr(page),
			StartPos:   m[0],
			EndPos:     m[1],
		})
	}

	for _, m := range parenBookPattern.FindAllStringSubmatchIndex(text, -1) {
		add(3, Reference{
			RawText:    text[m[0]:m[1]],
			Type:       RefParentheticalBook,
			SourceName: NormalizeBookName(text[m[2]:m[3]]),
			StartPos:   m[0],
			EndPos:     m[1],
		})
	}

	for _, m := range seeParenPattern.FindAllStringSubmatchIndex(text, -1) {
		term := strings.TrimSpace(text[m[2]:m[3]])
		// "(see PHB p.12)" 之类交给结构化规则处理
		inner := text[m[0]+1 : m[1]-1]
		if term == "" || pageRefPattern.MatchString(term) || chapterRefPattern.MatchString(term) || seePagePattern.MatchString(inner) {
			continue
		}
		add(4, Reference{
			RawText:  text[m[0]:m[1]],
			Type:     RefGenericTerm,
			Term:     term,
			StartPos: m[0],
			EndPos:   m[1],
		})
	}

	for _, m := range mechanicPattern.FindAllStringSubmatchIndex(text, -1) {
		add(5, Reference{
			RawText:  text[m[0]:m[1]],
			Type:     RefGameMechanic,
			Term:     strings.ToUpper(text[m[2]:m[3]]) + " " + text[m[4]:m[5]],
			StartPos: m[0],
			EndPos:   m[1],
		})
	}

	for _, m := range conditionPattern.FindAllStringSubmatchIndex(text, -1) {
		add(6, Reference{
			RawText:    text[m[0]:m[1]],
			Type:       RefCondition,
			SourceName: "Player's Handbook",
			Section:    "Appendix A: Conditions",
			Term:       strings.ToLower(text[m[2]:m[3]]),
			StartPos:   m[0],
			EndPos:     m[1],
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].ref, cands[j].ref
		if a.StartPos != b.StartPos {
			return a.StartPos < b.StartPos
		}
		if la, lb := a.EndPos-a.StartPos, b.EndPos-b.StartPos; la != lb {
			return la > lb
		}
		return cands[i].priority < cands[j].priority
	})

	out := make([]Reference, 0, len(cands))
	lastEnd := -1
	for _, c := range cands {
		// 与已接受的引用重叠则丢弃
		if c.ref.StartPos < lastEnd {
			continue
		}
		out = append(out, c.ref)
		lastEnd = c.ref.EndPos
	}
	return out
}

// LinkToRulebook 在 rules 范围检索 query，结果按置信度降序（同分保持检索原序）。
func (l *RulebookLinker) LinkToRulebook(ctx context.Context, query, filter string) ([]LinkedContent, error) {
	return l.link(ctx, port.ScopeRules, query, filter)
}

func (l *RulebookLinker) link(ctx context.Context, scope port.SearchScope, query, filter string) ([]LinkedContent, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if l == nil || l.searcher == nil {
		return nil, fmt.Errorf("rulebook linker has no searcher")
	}

	ctx, span := groundingTracer.Start(ctx, "grounding.LinkToRulebook",
		trace.WithAttributes(
			attribute.String("search.scope", string(scope)),
			attribute.String("search.query", query),
		))
	defer span.End()

	hits, err := l.searcher.Search(ctx, port.SearchRequest{
		Scope:  scope,
		Query:  query,
		Filter: filter,
		Limit:  l.limit,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to search %s scope: %w", scope, err)
	}

	out := make([]LinkedContent, 0, len(hits))
	for _, h := range hits {
		out = append(out, LinkedContent{
			PassageID:     h.ID,
			Content:       h.Content,
			Source:        h.Source,
			Confidence:    computeConfidence(h, query),
			ReferenceType: inferReferenceType(h),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	span.SetAttributes(attribute.Int("search.hits", len(out)))
	return out, nil
}

// ValidateReferences 逐条解析引用；最佳命中置信度 >= MinLinkConfidence 视为有效。
// 检索传输错误直接返回。
func (l *RulebookLinker) ValidateReferences(ctx context.Context, refs []Reference) (*ValidationReport, error) {
	report := &ValidationReport{
		Valid:   make([]ValidatedReference, 0, len(refs)),
		Invalid: make([]InvalidReference, 0),
	}
	for _, ref := range refs {
		linked, err := l.LinkToRulebook(ctx, BuildSearchQuery(ref), "")
		if err != nil {
			return nil, err
		}
		switch {
		case len(linked) == 0:
			report.Invalid = append(report.Invalid, InvalidReference{Reference: ref, Reason: "No matching content found"})
		case linked[0].Confidence >= MinLinkConfidence:
			report.Valid = append(report.Valid, ValidatedReference{Reference: ref, Linked: linked[0]})
		default:
			report.Invalid = append(report.Invalid, InvalidReference{
				Reference: ref,
				Reason:    fmt.Sprintf("Low confidence match: %.2f", linked[0].Confidence),
			})
		}
	}
	return report, nil
}

// BuildCitation 由引用与其解析结果构建规则书引用标注。
// linked 为空时使用 0.5 的默认置信度。
func (l *RulebookLinker) BuildCitation(ref Reference, linked *LinkedContent) Citation {
	sourceName := ref.SourceName
	if sourceName == "" && linked != nil {
		sourceName = linked.Source.SourceName
	}
	if sourceName == "" {
		sourceName = "Unknown Source"
	}

	sourceType := ""
	if linked != nil {
		sourceType = linked.Source.SourceType
	}
	b := ForSourceType(sourceType, SourceRulebook, sourceName).Confidence(0.5).Term(TermMatched(ref)).Reference(ref.RawText)
	if ref.Page != nil {
		b.Page(*ref.Page)
	}
	if ref.Chapter != "" {
		b.Chapter(ref.Chapter)
	}
	if ref.Section != "" {
		b.Section(ref.Section)
	}
	if linked != nil {
		b.Confidence(linked.Confidence).
			SourceID(linked.Source.SourceID).
			PassageID(linked.PassageID)
		if ref.Page == nil && linked.Source.Page != nil {
			b.Page(*linked.Source.Page)
		}
		if ref.Section == "" && linked.Source.Section != "" {
			b.Section(linked.Source.Section)
		}
		if linked.Content != "" {
			b.Excerpt(linked.Content)
		}
	}
	return b.Build()
}

// TermMatched 引用对应的匹配词：优先 Term，否则为原始文本
func TermMatched(ref Reference) string {
	if t := strings.TrimSpace(ref.Term); t != "" {
		return t
	}
	return strings.TrimSpace(ref.RawText)
}

// BuildSearchQuery 组合 term / section / chapter / source 作为检索词，全空时回退到原始文本
func BuildSearchQuery(ref Reference) string {
	parts := make([]string, 0, 4)
	if ref.Term != "" {
		parts = append(parts, ref.Term)
	}
	if ref.Section != "" {
		parts = append(parts, ref.Section)
	}
	if ref.Chapter != "" {
		parts = append(parts, "chapter "+ref.Chapter)
	}
	if ref.SourceName != "" {
		parts = append(parts, ref.SourceName)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(ref.RawText)
	}
	return strings.Join(parts, " ")
}

var bookAbbreviations = map[string]string{
	"PHB":  "Player's Handbook",
	"DMG":  "Dungeon Master's Guide",
	"MM":   "Monster Manual",
	"XGTE": "Xanathar's Guide to Everything",
	"TCOE": "Tasha's Cauldron of Everything",
	"VGTM": "Volo's Guide to Monsters",
	"MTOF": "Mordenkainen's Tome of Foes",
	"FTOD": "Fizban's Treasury of Dragons",
	"MOTM": "Mordenkainen Presents: Monsters of the Multiverse",
}

// NormalizeBookName 将缩写或变体书名规范为完整书名
func NormalizeBookName(name string) string {
	name = strings.TrimSpace(name)
	if full, ok := bookAbbreviations[strings.ToUpper(name)]; ok {
		return full
	}
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "player"):
		return "Player's Handbook"
	case strings.Contains(lower, "dungeon"):
		return "Dungeon Master's Guide"
	case strings.Contains(lower, "monster"):
		return "Monster Manual"
	default:
		return name
	}
}

var boostedChunkTypes = map[string]struct{}{
	"stat_block": {},
	"spell":      {},
	"item":       {},
	"table":      {},
}

// computeConfidence 在检索分数上叠加内容/标题/片段类型加权，结果截断到 [0, 1]
func computeConfidence(hit port.SearchHit, query string) float64 {
	conf := hit.Confidence
	q := strings.ToLower(strings.TrimSpace(query))
	if q != "" && strings.Contains(strings.ToLower(hit.Content), q) {
		conf += 0.1
	}
	if title := strings.ToLower(strings.TrimSpace(hit.Source.Title)); title != "" && q != "" {
		if strings.Contains(q, title) || strings.Contains(title, q) {
			conf += 0.05
		}
	}
	if _, ok := boostedChunkTypes[strings.ToLower(hit.Source.ChunkType)]; ok {
		conf += 0.05
	}
	return clamp01(conf)
}

func inferReferenceType(hit port.SearchHit) ReferenceType {
	switch strings.ToLower(strings.TrimSpace(hit.Source.ChunkType)) {
	case "spell":
		return RefSpell
	case "stat_block", "monster":
		return RefMonster
	case "item":
		return RefItem
	case "feat":
		return RefFeat
	case "class_feature":
		return RefClassFeature
	}

	content := strings.ToLower(hit.Content)
	switch {
	case strings.Contains(content, "saving throw") || strings.Contains(content, "spell attack"):
		return RefSpell
	case strings.Contains(content, "hit points") && strings.Contains(content, "armor class"):
		return RefMonster
	case strings.Contains(content, "prerequisite:"):
		return RefFeat
	default:
		return RefGenericTerm
	}
}
