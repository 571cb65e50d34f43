package dto

import (
	"fmt"
	"strings"

	"campaign-forge-api/internal/application/grounding"
)

const (
	defaultLoreLimit = 5
	maxLoreLimit     = 20
)

// LoreQuery 设定检索查询参数
type LoreQuery struct {
	Query      string `form:"q" binding:"max=512"`
	Setting    string `form:"setting" binding:"max=128"`
	GameSystem string `form:"game_system" binding:"max=64"`
	Source     string `form:"source" binding:"max=128"`
	Category   string `form:"category" binding:"max=32"`
	Type       string `form:"type" binding:"max=32"`
	Limit      int    `form:"limit" binding:"min=0"`
}

// Filters 转换为向量库过滤条件
func (q *LoreQuery) Filters() *grounding.FlavourFilters {
	return &grounding.FlavourFilters{
		Setting:         q.Setting,
		GameSystem:      q.GameSystem,
		Source:          q.Source,
		ContentCategory: q.Category,
	}
}

// NormalizedLimit 默认 5，最多 20
func (q *LoreQuery) NormalizedLimit() int {
	switch {
	case q.Limit <= 0:
		return defaultLoreLimit
	case q.Limit > maxLoreLimit:
		return maxLoreLimit
	default:
		return q.Limit
	}
}

var nameTypes = []grounding.NameType{
	grounding.NamePerson,
	grounding.NamePlace,
	grounding.NameOrganization,
	grounding.NameItem,
	grounding.NameCreature,
	grounding.NameEvent,
	grounding.NameOther,
}

// ParseNameType 解析名称类别；为空时取 person
func ParseNameType(raw string) (grounding.NameType, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return grounding.NamePerson, nil
	}
	for _, t := range nameTypes {
		if string(t) == raw {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown name type %q", raw)
}

// LoreItem 设定片段
type LoreItem struct {
	ID        string             `json:"id"`
	Content   string             `json:"content"`
	Scope     string             `json:"scope"`
	Category  string             `json:"category"`
	Relevance float64            `json:"relevance"`
	Citation  grounding.Citation `json:"citation"`
}

// NameItem 设定中的专有名称
type NameItem struct {
	Name     string             `json:"name"`
	NameType string             `json:"name_type"`
	Source   string             `json:"source"`
	Context  string             `json:"context"`
	Citation grounding.Citation `json:"citation"`
}

// LocationItem 地点
type LocationItem struct {
	Name         string             `json:"name"`
	LocationType string             `json:"location_type"`
	Description  string             `json:"description"`
	Setting      string             `json:"setting,omitempty"`
	Citation     grounding.Citation `json:"citation"`
}

// LoreResponse 设定检索结果
type LoreResponse struct {
	Results []LoreItem `json:"results"`
}

// NameListResponse 名称检索结果
type NameListResponse struct {
	Names []NameItem `json:"names"`
}

// LocationListResponse 地点检索结果
type LocationListResponse struct {
	Locations []LocationItem `json:"locations"`
}

func ToLoreResponse(results []grounding.LoreResult) *LoreResponse {
	items := make([]LoreItem, 0, len(results))
	for _, r := range results {
		items = append(items, LoreItem{
			ID:        r.Hit.ID,
			Content:   r.Hit.Content,
			Scope:     string(r.Scope),
			Category:  string(r.Category),
			Relevance: r.Relevance,
			Citation:  r.Citation,
		})
	}
	return &LoreResponse{Results: items}
}

func ToNameListResponse(results []grounding.NameResult) *NameListResponse {
	items := make([]NameItem, 0, len(results))
	for _, r := range results {
		items = append(items, NameItem{
			Name:     r.Name,
			NameType: string(r.NameType),
			Source:   r.Source,
			Context:  r.Context,
			Citation: r.Citation,
		})
	}
	return &NameListResponse{Names: items}
}

func ToLocationListResponse(results []grounding.LocationResult) *LocationListResponse {
	items := make([]LocationItem, 0, len(results))
	for _, r := range results {
		items = append(items, LocationItem{
			Name:         r.Name,
			LocationType: string(r.LocationType),
			Description:  r.Description,
			Setting:      r.Setting,
			Citation:     r.Citation,
		})
	}
	return &LocationListResponse{Locations: items}
}
