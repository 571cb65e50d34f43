package grounding

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
	"campaign-forge-api/pkg/tracer"
)

const defaultLoreLimit = 3

// CombinedGrounder 先在规则书中解析引用，未命中时回退到设定与战役笔记。
type CombinedGrounder struct {
	linker        *RulebookLinker
	flavour       *FlavourSearcher
	usage         *UsageTracker
	minConfidence float64
	loreLimit     int
}

var _ Grounder = (*CombinedGrounder)(nil)

// GrounderOption CombinedGrounder 可选配置
type GrounderOption func(*CombinedGrounder)

// WithMinConfidence 覆盖引用被采纳的最低置信度
func WithMinConfidence(v float64) GrounderOption {
	return func(g *CombinedGrounder) {
		if v > 0 && v <= 1 {
			g.minConfidence = v
		}
	}
}

// WithLoreLimit 设定回退检索的条数
func WithLoreLimit(n int) GrounderOption {
	return func(g *CombinedGrounder) {
		if n > 0 {
			g.loreLimit = n
		}
	}
}

// NewCombinedGrounder 创建 CombinedGrounder；flavour 与 usage 可为 nil
func NewCombinedGrounder(linker *RulebookLinker, flavour *FlavourSearcher, usage *UsageTracker, opts ...GrounderOption) *CombinedGrounder {
	g := &CombinedGrounder{
		linker:        linker,
		flavour:       flavour,
		usage:         usage,
		minConfidence: MinLinkConfidence,
		loreLimit:     defaultLoreLimit,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ground 解析 text 中的引用并插入 [n] 标记。
// 引用按位置倒序处理；未解析的引用记入 UngroundedReferences，不视为错误。
// 仅检索传输错误会返回 error。
func (g *CombinedGrounder) Ground(ctx context.Context, text, campaignID string) (*GroundedContent, error) {
	ctx, span := groundingTracer.Start(ctx, "grounding.Ground")
	defer span.End()

	out := &GroundedContent{
		Text:                 text,
		MarkedText:           text,
		Citations:            []Citation{},
		UngroundedReferences: []Reference{},
	}

	refs := FindReferences(text)
	span.SetAttributes(attribute.Int("grounding.references", len(refs)))
	if len(refs) == 0 {
		return out, nil
	}

	type cited struct {
		endPos   int
		citation Citation
	}
	var (
		citedRev      []cited
		ungroundedRev []Reference
	)
	for i := len(refs) - 1; i >= 0; i-- {
		ref := refs[i]
		citation, ok, err := g.resolve(ctx, ref, campaignID)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		if !ok {
			metrics.GroundingReferencesTotal.WithLabelValues("ungrounded").Inc()
			ungroundedRev = append(ungroundedRev, ref)
			continue
		}
		metrics.GroundingReferencesTotal.WithLabelValues("cited").Inc()
		citedRev = append(citedRev, cited{endPos: ref.EndPos, citation: citation})
	}

	// 倒序收集后翻转，使编号从左到右递增
	for i := len(citedRev) - 1; i >= 0; i-- {
		c := citedRev[i].citation
		c.Marker = len(out.Citations) + 1
		out.Citations = append(out.Citations, c)
	}
	for i := len(ungroundedRev) - 1; i >= 0; i-- {
		out.UngroundedReferences = append(out.UngroundedReferences, ungroundedRev[i])
	}

	points := make([]insertion, 0, len(out.Citations))
	for i, c := range out.Citations {
		points = append(points, insertion{pos: citedRev[len(citedRev)-1-i].endPos, marker: c.Marker})
	}
	out.MarkedText = insertMarkers(text, points)
	out.Confidence = meanConfidence(out.Citations)

	if campaignID != "" && len(out.Citations) > 0 {
		g.usage.Track(ctx, campaignID, out.Citations)
	}

	logger.Debug(ctx, "grounding completed",
		"references", len(refs),
		"citations", len(out.Citations),
		"ungrounded", len(out.UngroundedReferences),
	)
	return out, nil
}

// Validate 校验 text 中的引用能否在规则书中找到
func (g *CombinedGrounder) Validate(ctx context.Context, text string) (*ValidationReport, error) {
	ctx, span := groundingTracer.Start(ctx, "grounding.Validate")
	defer span.End()

	report, err := g.linker.ValidateReferences(ctx, FindReferences(text))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	return report, nil
}

// resolve 返回引用的标注；ok=false 表示未找到足够置信的来源
func (g *CombinedGrounder) resolve(ctx context.Context, ref Reference, campaignID string) (Citation, bool, error) {
	query := BuildSearchQuery(ref)

	linked, err := g.linker.LinkToRulebook(ctx, query, "")
	if err != nil {
		return Citation{}, false, err
	}
	if len(linked) > 0 && linked[0].Confidence >= g.minConfidence {
		return g.linker.BuildCitation(ref, &linked[0]), true, nil
	}

	if g.flavour == nil {
		return Citation{}, false, nil
	}
	lore, err := g.flavour.SearchLore(ctx, query, campaignID, g.loreLimit)
	if err != nil {
		return Citation{}, false, err
	}
	if len(lore) > 0 && lore[0].Relevance >= g.minConfidence {
		c := lore[0].Citation
		c.TermMatched = TermMatched(ref)
		c.Reference = ref.RawText
		return c, true, nil
	}
	return Citation{}, false, nil
}

type insertion struct {
	pos    int
	marker int
}

// insertMarkers 一次遍历重建文本，在每个插入点之后追加 " [n]"
func insertMarkers(text string, points []insertion) string {
	if len(points) == 0 {
		return text
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].pos < points[j].pos })

	var b strings.Builder
	b.Grow(len(text) + len(points)*5)
	prev := 0
	for _, p := range points {
		b.WriteString(text[prev:p.pos])
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(p.marker))
		b.WriteString("]")
		prev = p.pos
	}
	b.WriteString(text[prev:])
	return b.String()
}
