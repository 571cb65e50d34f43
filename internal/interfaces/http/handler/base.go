// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
)

// Generator 执行一次内容生成
type Generator interface {
	Generate(ctx context.Context, req *generation.Request) (*generation.Response, error)
}

// DraftService 草稿查询与审阅操作
type DraftService interface {
	Get(ctx context.Context, draftID string) (*generation.Draft, error)
	List(ctx context.Context, campaignID string, states ...generation.DraftState) ([]*generation.Draft, error)
	Apply(ctx context.Context, draftID string, action generation.DraftAction) (*generation.ActionResult, error)
}

// QuotaChecker 战役 Token 日配额检查
type QuotaChecker interface {
	CheckDailyTokens(ctx context.Context, campaignID string) (used int64, max int64, err error)
}

// TemplateCatalog 模板目录
type TemplateCatalog interface {
	List() []*generation.Template
	Reload() error
	Dir() string
}

// LoreSearcher 设定书、冒险模组中的设定检索
type LoreSearcher interface {
	SearchSettingLore(ctx context.Context, query string, filters *grounding.FlavourFilters, limit int) ([]grounding.LoreResult, error)
	SearchNames(ctx context.Context, nameType grounding.NameType, filters *grounding.FlavourFilters, limit int) ([]grounding.NameResult, error)
	SearchLocations(ctx context.Context, query string, filters *grounding.FlavourFilters, limit int) ([]grounding.LocationResult, error)
}

var (
	_ DraftService    = (*generation.AcceptanceManager)(nil)
	_ Generator       = (*generation.Orchestrator)(nil)
	_ TemplateCatalog = (*generation.TemplateRegistry)(nil)
	_ LoreSearcher    = (*grounding.FlavourSearcher)(nil)
)
