//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/application/indexing"
	"campaign-forge-api/internal/application/quota"
	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/config"
	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/infrastructure/llm"
	"campaign-forge-api/internal/infrastructure/persistence/postgres"
	"campaign-forge-api/internal/interfaces/http/handler"
	"campaign-forge-api/internal/interfaces/http/router"
	"campaign-forge-api/internal/workflow/port"
)

// InitializeApp 初始化 API 进程（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		RepoSet,
		CacheSet,
		VectorSet,
		GenerationSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化草稿事件消费进程
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		RepoSet,
		ProvideRedisClient,
		ProvideSearchCache,
		ProvideCacheInvalidator,
		ProvideConsumer,
		VectorSet,
		wire.Bind(new(indexing.EntityIndexer), new(*retrieval.Indexer)),
		indexing.NewDraftIndexer,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeIndexTools 初始化 forgectl 的索引依赖；Milvus 与 Embedding 均为必需
func InitializeIndexTools(ctx context.Context, cfg *config.Config) (*IndexTools, func(), error) {
	wire.Build(
		ProvideMilvusClient,
		ProvideMilvusRepository,
		ProvideRetrievalVectorRepositoryOptional,
		ProvideEmbedderOptional,
		ProvideRetrievalIndexer,
		retrieval.NewEngine,
		wire.Struct(new(IndexTools), "*"),
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	postgres.NewTxManager,
	postgres.NewCampaignRepository,
	postgres.NewCampaignSessionRepository,
	postgres.NewCampaignEntityRepository,
	postgres.NewSourceUsageRepository,
	postgres.NewGenerationDraftRepository,
	postgres.NewLLMUsageEventRepository,
)

// RepoSet 整合了具体实现与接口绑定的集合
var RepoSet = wire.NewSet(
	PostgresSet,
	wire.Bind(new(repository.Transactor), new(*postgres.TxManager)),
	wire.Bind(new(repository.CampaignRepository), new(*postgres.CampaignRepository)),
	wire.Bind(new(repository.CampaignSessionRepository), new(*postgres.CampaignSessionRepository)),
	wire.Bind(new(repository.CampaignEntityRepository), new(*postgres.CampaignEntityRepository)),
	wire.Bind(new(repository.SourceUsageRepository), new(*postgres.SourceUsageRepository)),
	wire.Bind(new(repository.GenerationDraftRepository), new(*postgres.GenerationDraftRepository)),
	wire.Bind(new(repository.LLMUsageEventRepository), new(*postgres.LLMUsageEventRepository)),
)

// CacheSet Redis 可选：缓存退化为进程内缓存，限流与事件发布关闭
var CacheSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideSearchCache,
	ProvideRateLimiter,
	ProvideEventPublisher,
)

// VectorSet 可选 Milvus 与 Embedder（不可达时不阻塞启动）
var VectorSet = wire.NewSet(
	ProvideMilvusClientOptional,
	ProvideMilvusRepositoryOptional,
	ProvideRetrievalVectorRepositoryOptional,
	ProvideEmbedderOptional,
	ProvideRetrievalIndexer,
)

// GenerationSet 生成、溯源与草稿审阅
var GenerationSet = wire.NewSet(
	ProvideSearcher,
	postgres.NewSnapshotLoader,
	ProvideSnapshotLoader,
	postgres.NewCampaignStore,
	postgres.NewDraftStore,
	ProvideTemplateRegistry,
	ProvideTemplateWatcher,
	llm.NewEinoFactory,
	wire.Bind(new(port.ChatModelFactory), new(*llm.EinoFactory)),
	ProvideCompleter,
	ProvideGrounder,
	grounding.NewFlavourSearcher,
	ProvideAcceptanceManager,
	ProvideOrchestrator,
	ProvideQuotaChecker,
	quota.NewLLMUsageRecorder,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	wire.Bind(new(handler.Generator), new(*generation.Orchestrator)),
	wire.Bind(new(handler.QuotaChecker), new(*quota.TokenQuotaChecker)),
	wire.Bind(new(handler.DraftService), new(*generation.AcceptanceManager)),
	wire.Bind(new(handler.TemplateCatalog), new(*generation.TemplateRegistry)),
	wire.Bind(new(handler.LoreSearcher), new(*grounding.FlavourSearcher)),
	wire.Bind(new(grounding.Grounder), new(*grounding.CombinedGrounder)),
	ProvideHealthHandler,
	handler.NewGenerationHandler,
	handler.NewDraftHandler,
	handler.NewGroundingHandler,
	handler.NewTemplateHandler,
	handler.NewLoreHandler,
	handler.NewCampaignHandler,
	wire.Struct(new(router.Handlers), "*"),
	ProvideRouter,
)
