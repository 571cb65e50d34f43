package grounding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"campaign-forge-api/internal/workflow/node"
	"campaign-forge-api/internal/workflow/port"
)

// ErrNoLoreResults 设定检索无结果
var ErrNoLoreResults = errors.New("no lore results found")

// LoreCategory 设定内容分类
type LoreCategory string

const (
	LoreHistory   LoreCategory = "history"
	LoreGeography LoreCategory = "geography"
	LoreCulture   LoreCategory = "culture"
	LoreFaction   LoreCategory = "faction"
	LoreCharacter LoreCategory = "character"
	LoreCosmology LoreCategory = "cosmology"
	LoreGeneral   LoreCategory = "general"
)

// 顺序即判定优先级
var loreKeywords = []struct {
	category LoreCategory
	keywords []string
}{
	{LoreHistory, []string{"history", "timeline", "year", "era", "ancient", "war", "founded"}},
	{LoreGeography, []string{"region", "city", "town", "mountain", "river", "forest", "location", "map"}},
	{LoreCulture, []string{"culture", "tradition", "custom", "religion", "festival", "language"}},
	{LoreFaction, []string{"faction", "organization", "guild", "order", "alliance", "group"}},
	{LoreCharacter, []string{"character", "hero", "villain", "notable", "famous", "legendary"}},
	{LoreCosmology, []string{"plane", "deity", "god", "goddess", "divine", "celestial", "infernal"}},
}

// InferCategory 命中同一分类至少两个关键词时归入该分类，否则为 general
func InferCategory(content string) LoreCategory {
	lower := strings.ToLower(content)
	for _, entry := range loreKeywords {
		matches := 0
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches >= 2 {
			return entry.category
		}
	}
	return LoreGeneral
}

// FlavourFilters 设定检索过滤条件，映射为向量库过滤表达式
type FlavourFilters struct {
	Setting         string
	CampaignID      string
	Source          string
	GameSystem      string
	ContentCategory string
}

func escapeFilterValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

// FilterString 生成过滤表达式；无条件时返回空串
func (f *FlavourFilters) FilterString() string {
	if f == nil {
		return ""
	}
	fields := []struct{ name, value string }{
		{"setting", f.Setting},
		{"campaign_id", f.CampaignID},
		{"source_name", f.Source},
		{"game_system", f.GameSystem},
		{"chunk_type", f.ContentCategory},
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		v := strings.TrimSpace(field.value)
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, field.name, escapeFilterValue(v)))
	}
	return strings.Join(parts, " && ")
}

// LoreResult 设定检索结果
type LoreResult struct {
	Hit       port.SearchHit
	Scope     port.SearchScope
	Citation  Citation
	Category  LoreCategory
	Relevance float64
}

// NameType 名称类别
type NameType string

const (
	NamePerson       NameType = "person"
	NamePlace        NameType = "place"
	NameOrganization NameType = "organization"
	NameItem         NameType = "item"
	NameCreature     NameType = "creature"
	NameEvent        NameType = "event"
	NameOther        NameType = "other"
)

var nameQueries = map[NameType]string{
	NamePerson:       "character name person hero",
	NamePlace:        "location city town region",
	NameOrganization: "guild order faction organization",
	NameItem:         "artifact weapon item magic",
	NameCreature:     "creature monster beast",
	NameEvent:        "battle war event",
	NameOther:        "name",
}

// NameResult 从设定片段中提取的专有名称
type NameResult struct {
	Name     string
	NameType NameType
	Source   string
	Citation Citation
	Context  string
}

// LocationType 地点类别
type LocationType string

const (
	LocationContinent  LocationType = "continent"
	LocationRegion     LocationType = "region"
	LocationCountry    LocationType = "country"
	LocationCity       LocationType = "city"
	LocationTown       LocationType = "town"
	LocationVillage    LocationType = "village"
	LocationLandmark   LocationType = "landmark"
	LocationDungeon    LocationType = "dungeon"
	LocationBuilding   LocationType = "building"
	LocationWilderness LocationType = "wilderness"
	LocationOther      LocationType = "other"
)

var locationKeywords = []struct {
	kind     LocationType
	keywords []string
}{
	{LocationContinent, []string{"continent"}},
	{LocationRegion, []string{"region", "realm"}},
	{LocationCountry, []string{"country", "kingdom"}},
	{LocationCity, []string{"city", "metropolis"}},
	{LocationTown, []string{"town"}},
	{LocationVillage, []string{"village", "hamlet"}},
	{LocationDungeon, []string{"dungeon", "lair", "cave"}},
	{LocationBuilding, []string{"tavern", "inn", "temple", "castle", "tower", "forge"}},
	{LocationWilderness, []string{"forest", "swamp", "desert", "mountain", "wilderness"}},
	{LocationLandmark, []string{"landmark", "monument", "ruin"}},
}

// LocationResult 地点检索结果
type LocationResult struct {
	Name         string
	LocationType LocationType
	Description  string
	Setting      string
	Citation     Citation
}

// FlavourSearcher 检索设定书、冒险模组与战役笔记中的设定内容
type FlavourSearcher struct {
	searcher port.Searcher
}

func NewFlavourSearcher(searcher port.Searcher) *FlavourSearcher {
	return &FlavourSearcher{searcher: searcher}
}

func (s *FlavourSearcher) search(ctx context.Context, scope port.SearchScope, query, filter string, limit int) ([]port.SearchHit, error) {
	if s == nil || s.searcher == nil {
		return nil, fmt.Errorf("flavour searcher has no searcher")
	}
	if limit <= 0 {
		return nil, nil
	}
	hits, err := s.searcher.Search(ctx, port.SearchRequest{Scope: scope, Query: query, Filter: filter, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s scope: %w", scope, err)
	}
	return hits, nil
}

// SearchLore 依次检索 fiction 与 campaign 范围（后者仅在指定战役时检索），
// 结果按相关度降序，同分保持检索顺序。未命中返回空切片。
func (s *FlavourSearcher) SearchLore(ctx context.Context, query, campaignID string, limit int) ([]LoreResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	ctx, span := groundingTracer.Start(ctx, "grounding.SearchLore")
	defer span.End()

	fiction, err := s.search(ctx, port.ScopeFiction, query, "", limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	out := make([]LoreResult, 0, len(fiction))
	seen := make(map[string]struct{})
	for _, h := range fiction {
		seen[h.ID] = struct{}{}
		out = append(out, s.toLoreResult(h, port.ScopeFiction))
	}

	if campaignID = strings.TrimSpace(campaignID); campaignID != "" {
		filters := FlavourFilters{CampaignID: campaignID}
		notes, err := s.search(ctx, port.ScopeCampaign, query, filters.FilterString(), limit)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, h := range notes {
			if _, ok := seen[h.ID]; ok {
				continue
			}
			seen[h.ID] = struct{}{}
			out = append(out, s.toLoreResult(h, port.ScopeCampaign))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Relevance > out[j].Relevance })
	return out, nil
}

// SearchSettingLore 先检索 fiction，再以一半额度检索 rules 中的设定信息，按 id 去重。
func (s *FlavourSearcher) SearchSettingLore(ctx context.Context, query string, filters *FlavourFilters, limit int) ([]LoreResult, error) {
	query = strings.TrimSpace(query)
	filter := filters.FilterString()

	fiction, err := s.search(ctx, port.ScopeFiction, query, filter, limit)
	if err != nil {
		return nil, err
	}
	rules, err := s.search(ctx, port.ScopeRules, query, filter, limit/2)
	if err != nil {
		return nil, err
	}

	out := make([]LoreResult, 0, len(fiction)+len(rules))
	seen := make(map[string]struct{})
	appendHits := func(hits []port.SearchHit, scope port.SearchScope) {
		for _, h := range hits {
			if len(out) >= limit {
				return
			}
			if _, ok := seen[h.ID]; ok {
				continue
			}
			seen[h.ID] = struct{}{}
			out = append(out, s.toLoreResult(h, scope))
		}
	}
	appendHits(fiction, port.ScopeFiction)
	appendHits(rules, port.ScopeRules)

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoLoreResults, query)
	}
	return out, nil
}

// SearchNames 按名称类别检索并提取片段中的首个专有名词
func (s *FlavourSearcher) SearchNames(ctx context.Context, nameType NameType, filters *FlavourFilters, limit int) ([]NameResult, error) {
	query, ok := nameQueries[nameType]
	if !ok {
		query = nameQueries[NameOther]
	}
	hits, err := s.search(ctx, port.ScopeFiction, query, filters.FilterString(), limit*2)
	if err != nil {
		return nil, err
	}

	out := make([]NameResult, 0, limit)
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		name := firstProperNoun(h.Content)
		if name == "" {
			continue
		}
		source := sourceLabel(h)
		out = append(out, NameResult{
			Name:     name,
			NameType: nameType,
			Source:   source,
			Citation: hitCitation(h, SourceFlavour).Term(name).Build(),
			Context:  node.TruncateByRunes(h.Content, 100),
		})
	}
	return out, nil
}

// SearchLocations 检索地点描述
func (s *FlavourSearcher) SearchLocations(ctx context.Context, query string, filters *FlavourFilters, limit int) ([]LocationResult, error) {
	enhanced := strings.TrimSpace(query + " location region city town")
	hits, err := s.search(ctx, port.ScopeFiction, enhanced, filters.FilterString(), limit*2)
	if err != nil {
		return nil, err
	}

	setting := ""
	if filters != nil {
		setting = filters.Setting
	}
	out := make([]LocationResult, 0, limit)
	for _, h := range hits {
		if len(out) >= limit {
			break
		}
		name := firstProperNoun(h.Content)
		if name == "" {
			continue
		}
		out = append(out, LocationResult{
			Name:         name,
			LocationType: inferLocationType(h.Content),
			Description:  node.TruncateByRunes(h.Content, excerptRunes),
			Setting:      setting,
			Citation:     hitCitation(h, SourceFlavour).Term(name).Build(),
		})
	}
	return out, nil
}

func (s *FlavourSearcher) toLoreResult(h port.SearchHit, scope port.SearchScope) LoreResult {
	fallback := SourceFlavour
	switch scope {
	case port.ScopeCampaign:
		fallback = SourceCampaignEntity
	case port.ScopeRules:
		fallback = SourceRulebook
	}
	b := hitCitation(h, fallback)
	if h.Source.Page != nil {
		b.Page(*h.Source.Page)
	}
	if h.Source.Section != "" {
		b.Section(h.Source.Section)
	}
	if h.Content != "" {
		b.Excerpt(h.Content)
	}
	return LoreResult{
		Hit:       h,
		Scope:     scope,
		Citation:  b.Build(),
		Category:  InferCategory(h.Content),
		Relevance: h.Confidence,
	}
}

// hitCitation 以命中的来源类型构建引用，置信度取检索置信度
func hitCitation(h port.SearchHit, fallback CitationSourceType) *CitationBuilder {
	return ForSourceType(h.Source.SourceType, fallback, sourceLabel(h)).
		SourceID(h.Source.SourceID).
		PassageID(h.ID).
		Confidence(h.Confidence)
}

func sourceLabel(h port.SearchHit) string {
	if t := strings.TrimSpace(h.Source.Title); t != "" {
		return t
	}
	if n := strings.TrimSpace(h.Source.SourceName); n != "" {
		return n
	}
	return "Unknown Source"
}

var nameStopWords = map[string]struct{}{
	"The": {}, "A": {}, "An": {}, "And": {}, "Or": {}, "But": {},
	"In": {}, "On": {}, "At": {}, "To": {}, "For": {},
}

func firstProperNoun(content string) string {
	for _, w := range strings.Fields(content) {
		w = strings.TrimFunc(w, func(r rune) bool { return unicode.IsPunct(r) })
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, stop := nameStopWords[w]; stop {
			continue
		}
		if unicode.IsUpper([]rune(w)[0]) {
			return w
		}
	}
	return ""
}

func inferLocationType(content string) LocationType {
	lower := strings.ToLower(content)
	for _, entry := range locationKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.kind
			}
		}
	}
	return LocationOther
}
