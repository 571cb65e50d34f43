package wire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/config"
	"campaign-forge-api/internal/infrastructure/persistence/memory"
)

func TestOrchestratorConfig_Defaults(t *testing.T) {
	got := OrchestratorConfig(&config.GenerationConfig{IncludeGrounding: true})
	want := generation.DefaultOrchestratorConfig()
	assert.Equal(t, want.Budget, got.Budget)
	assert.Equal(t, want.ExcerptLimit, got.ExcerptLimit)
	assert.True(t, got.IncludeGrounding)
}

func TestOrchestratorConfig_Overrides(t *testing.T) {
	got := OrchestratorConfig(&config.GenerationConfig{
		TokenBudget:       12000,
		CompletionTokens:  3000,
		MinSectionTokens:  64,
		GroundingExcerpts: 5,
		SectionCaps:       map[string]int{"grounding": 4000},
	})

	assert.False(t, got.IncludeGrounding)
	assert.Equal(t, 5, got.ExcerptLimit)
	assert.Equal(t, 12000, got.Budget.MaxTotalTokens)
	assert.Equal(t, 3000, got.Budget.ReservedForCompletion)
	assert.Equal(t, 64, got.Budget.MinSectionTokens)
	assert.Equal(t, 4000, got.Budget.SectionCaps[generation.SectionGrounding])
	assert.Equal(t, 1000, got.Budget.SectionCaps[generation.SectionCampaign])
	require.NoError(t, got.Budget.Validate())

	// 默认值不应被修改
	assert.Equal(t, 2000, generation.DefaultTokenBudget().SectionCaps[generation.SectionGrounding])
}

func TestRedisOptionalProviders(t *testing.T) {
	cache := ProvideSearchCache(nil)
	_, ok := cache.(*memory.Cache)
	assert.True(t, ok)

	assert.Nil(t, ProvideRateLimiter(nil))
	assert.Nil(t, ProvideEventPublisher(&config.Config{Generation: config.GenerationConfig{PublishEvents: true}}, nil))
}

func TestProvideSearcher_DisabledVectorPath(t *testing.T) {
	s := ProvideSearcher(context.Background(), &config.Config{}, nil, nil, ProvideSearchCache(nil))
	assert.Equal(t, retrieval.NopSearcher{}, s)
}

func TestProvideHealthHandler_OptionalDependencies(t *testing.T) {
	h := ProvideHealthHandler(&config.Config{}, nil, nil, nil)
	ready, resp := h.Readiness(context.Background())
	assert.False(t, ready)
	assert.Equal(t, "missing", resp.Checks["postgres"].Status)
	assert.Equal(t, "disabled", resp.Checks["redis"].Status)
	assert.Equal(t, "disabled", resp.Checks["milvus"].Status)
}
