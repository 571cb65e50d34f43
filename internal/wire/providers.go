package wire

import (
	"context"
	"fmt"
	"time"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/application/indexing"
	"campaign-forge-api/internal/application/quota"
	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/config"
	"campaign-forge-api/internal/domain/repository"
	infraembedding "campaign-forge-api/internal/infrastructure/embedding"
	"campaign-forge-api/internal/infrastructure/llm"
	"campaign-forge-api/internal/infrastructure/messaging"
	"campaign-forge-api/internal/infrastructure/persistence/memory"
	"campaign-forge-api/internal/infrastructure/persistence/milvus"
	"campaign-forge-api/internal/infrastructure/persistence/postgres"
	"campaign-forge-api/internal/infrastructure/persistence/redis"
	"campaign-forge-api/internal/interfaces/http/handler"
	"campaign-forge-api/internal/interfaces/http/middleware"
	"campaign-forge-api/internal/interfaces/http/router"
	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
)

const (
	defaultStreamMaxLen   = 100000
	defaultLocalCacheTTL  = 5 * time.Minute
	defaultCacheCleanup   = 10 * time.Minute
	defaultReloadDebounce = 500 * time.Millisecond
)

// SearchCache 检索/快照缓存，支持按前缀失效
type SearchCache interface {
	port.KVCache
	indexing.CacheInvalidator
}

// App API 进程依赖容器
type App struct {
	Router        *router.Router
	Health        *handler.HealthHandler
	UsageRecorder *quota.LLMUsageRecorder
	// Watcher 为 nil 表示未开启模板热加载
	Watcher *generation.TemplateWatcher
}

// Worker 草稿事件消费进程依赖容器
type Worker struct {
	Consumer *messaging.Consumer
	Indexer  *indexing.DraftIndexer
}

// IndexTools forgectl 索引相关命令的依赖
type IndexTools struct {
	Indexer *retrieval.Indexer
	Engine  *retrieval.Engine
	Vectors *milvus.Repository
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClientOptional Redis 未启用或不可达时返回 nil，由本地缓存兜底
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, falling back to local cache", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient worker 必须连接 Redis
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, nil, fmt.Errorf("redis is disabled, draft worker requires redis streams")
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideSearchCache 有 Redis 时使用 Redis，否则使用进程内缓存
func ProvideSearchCache(rc *redis.Client) SearchCache {
	if rc == nil {
		return memory.NewCache(defaultLocalCacheTTL, defaultCacheCleanup)
	}
	return redis.NewCache(rc)
}

// ProvideRateLimiter 没有 Redis 时不限流
func ProvideRateLimiter(rc *redis.Client) middleware.RateLimiter {
	if rc == nil {
		return nil
	}
	return redis.NewRateLimiter(rc)
}

// ProvideEventPublisher 关闭事件发布或没有 Redis 时返回 nil
func ProvideEventPublisher(cfg *config.Config, rc *redis.Client) generation.EventPublisher {
	if rc == nil || !cfg.Generation.PublishEvents {
		return nil
	}
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return messaging.NewProducer(rc.Redis(), int64(maxLen))
}

// ProvideMilvusClientOptional 未启用或不可达时返回 nil，不阻塞启动
func ProvideMilvusClientOptional(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	if !cfg.Vector.Milvus.Enabled {
		return nil, func() {}, nil
	}
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		logger.Warn(ctx, "milvus not available, vector features disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMilvusClient forgectl 索引命令必须连接 Milvus
func ProvideMilvusClient(ctx context.Context, cfg *config.Config) (*milvus.Client, func(), error) {
	client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

func ProvideMilvusRepositoryOptional(cfg *config.Config, client *milvus.Client) *milvus.Repository {
	if client == nil {
		return nil
	}
	return milvus.NewRepository(client, cfg.Embedding.Dimension)
}

func ProvideRetrievalVectorRepositoryOptional(repo *milvus.Repository) retrieval.VectorRepository {
	if repo == nil {
		return nil
	}
	return milvus.NewRetrievalVectorRepository(repo)
}

func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) einoembedding.Embedder {
	embedder, err := infraembedding.NewEinoEmbedder(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, vector features disabled", "error", err.Error())
		return nil
	}
	return embedder
}

// ProvideSearcher 向量链路不可用时退化为空检索，引用全部记为未溯源
func ProvideSearcher(ctx context.Context, cfg *config.Config, embedder einoembedding.Embedder, vectorRepo retrieval.VectorRepository, cache SearchCache) port.Searcher {
	engine := retrieval.NewEngine(embedder, vectorRepo)
	if !engine.Enabled() {
		logger.Warn(ctx, "vector search disabled, references will be reported as ungrounded")
		return retrieval.NopSearcher{}
	}
	return retrieval.NewCachedSearcher(engine, cache, cfg.Cache.SearchTTL)
}

func ProvideRetrievalIndexer(cfg *config.Config, embedder einoembedding.Embedder, vectorRepo retrieval.VectorRepository) *retrieval.Indexer {
	return retrieval.NewIndexer(embedder, vectorRepo, cfg.Embedding.BatchSize)
}

// ProvideSnapshotLoader 带缓存的战役快照加载
func ProvideSnapshotLoader(cfg *config.Config, loader *postgres.SnapshotLoader, cache SearchCache) port.SnapshotLoader {
	return generation.NewCachedSnapshotLoader(loader, cache, cfg.Cache.SnapshotTTL)
}

func ProvideTemplateRegistry(cfg *config.Config) (*generation.TemplateRegistry, error) {
	return generation.LoadTemplateRegistry(cfg.Generation.TemplateDir)
}

// ProvideTemplateWatcher 开启热加载时在后台监听模板目录
func ProvideTemplateWatcher(ctx context.Context, cfg *config.Config, registry *generation.TemplateRegistry) (*generation.TemplateWatcher, func(), error) {
	if !cfg.Generation.WatchTemplates {
		return nil, func() {}, nil
	}
	w, err := generation.NewTemplateWatcher(registry, defaultReloadDebounce)
	if err != nil {
		return nil, nil, err
	}
	go w.Run(ctx)
	return w, w.Stop, nil
}

func ProvideCompleter(cfg *config.Config, factory port.ChatModelFactory) port.Completer {
	return llm.NewCompleter(&cfg.LLM, factory)
}

// ProvideGrounder 组合规则书链接、风味检索与来源使用记录
func ProvideGrounder(cfg *config.Config, searcher port.Searcher, store *postgres.CampaignStore) *grounding.CombinedGrounder {
	var opts []grounding.GrounderOption
	if cfg.Generation.MinLinkConfidence > 0 {
		opts = append(opts, grounding.WithMinConfidence(cfg.Generation.MinLinkConfidence))
	}
	return grounding.NewCombinedGrounder(
		grounding.NewRulebookLinker(searcher),
		grounding.NewFlavourSearcher(searcher),
		grounding.NewUsageTracker(store),
		opts...,
	)
}

// ProvideAcceptanceManager 草稿表；持久化与事件发布均可选
func ProvideAcceptanceManager(
	cfg *config.Config,
	store *postgres.CampaignStore,
	grounder *grounding.CombinedGrounder,
	drafts *postgres.DraftStore,
	publisher generation.EventPublisher,
) *generation.AcceptanceManager {
	var opts []generation.AcceptanceOption
	if cfg.Generation.SaveDrafts {
		opts = append(opts, generation.WithDraftRepository(drafts))
	}
	if publisher != nil {
		opts = append(opts, generation.WithEventPublisher(publisher))
	}
	return generation.NewAcceptanceManager(store, grounder, opts...)
}

// OrchestratorConfig 把生成配置换算为编排参数；未配置的字段保留默认值
func OrchestratorConfig(cfg *config.GenerationConfig) generation.OrchestratorConfig {
	out := generation.DefaultOrchestratorConfig()
	out.IncludeGrounding = cfg.IncludeGrounding
	if cfg.GroundingExcerpts > 0 {
		out.ExcerptLimit = cfg.GroundingExcerpts
	}
	if cfg.TokenBudget > 0 {
		out.Budget.MaxTotalTokens = cfg.TokenBudget
	}
	if cfg.CompletionTokens > 0 {
		out.Budget.ReservedForCompletion = cfg.CompletionTokens
	}
	if cfg.MinSectionTokens > 0 {
		out.Budget.MinSectionTokens = cfg.MinSectionTokens
	}
	if len(cfg.SectionCaps) > 0 {
		caps := make(map[generation.SectionKind]int, len(out.Budget.SectionCaps)+len(cfg.SectionCaps))
		for k, v := range out.Budget.SectionCaps {
			caps[k] = v
		}
		for k, v := range cfg.SectionCaps {
			caps[generation.SectionKind(k)] = v
		}
		out.Budget.SectionCaps = caps
	}
	return out
}

func ProvideOrchestrator(
	cfg *config.Config,
	templates *generation.TemplateRegistry,
	completer port.Completer,
	searcher port.Searcher,
	snapshots port.SnapshotLoader,
	grounder *grounding.CombinedGrounder,
	drafts *generation.AcceptanceManager,
) *generation.Orchestrator {
	return generation.NewOrchestrator(OrchestratorConfig(&cfg.Generation), templates, completer, searcher, snapshots, grounder, drafts)
}

func ProvideQuotaChecker(cfg *config.Config, repo repository.LLMUsageEventRepository) *quota.TokenQuotaChecker {
	return quota.NewTokenQuotaChecker(repo, cfg.LLM.DailyTokenQuota)
}

// ProvideHealthHandler 就绪检查：PostgreSQL 必需，Redis 与 Milvus 可选
func ProvideHealthHandler(cfg *config.Config, pg *postgres.Client, rc *redis.Client, mc *milvus.Client) *handler.HealthHandler {
	pgDep := handler.Dependency{Name: "postgres", Required: true}
	if pg != nil {
		pgDep.Checker = pg
	}
	redisDep := handler.Dependency{Name: "redis"}
	if rc != nil {
		redisDep.Checker = rc
	}
	milvusDep := handler.Dependency{Name: "milvus"}
	if mc != nil {
		milvusDep.Checker = mc
	}
	return handler.NewHealthHandler(cfg.App.Version, pgDep, redisDep, milvusDep)
}

func ProvideRouter(cfg *config.Config, handlers *router.Handlers, limiter middleware.RateLimiter) *router.Router {
	return router.New(cfg, handlers, limiter)
}

// ProvideConsumer 草稿事件消费者
func ProvideConsumer(cfg *config.Config, rc *redis.Client) *messaging.Consumer {
	rs := cfg.Messaging.RedisStream
	backoff := messaging.DefaultBackoffConfig()
	if rs.RetryBackoff.Initial > 0 {
		backoff.Initial = rs.RetryBackoff.Initial
	}
	if rs.RetryBackoff.Max > 0 {
		backoff.Max = rs.RetryBackoff.Max
	}
	if rs.RetryBackoff.Multiplier > 0 {
		backoff.Multiplier = rs.RetryBackoff.Multiplier
	}
	return messaging.NewConsumer(rc.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamDraftEvents,
		Group:         messaging.ConsumerGroupDraftIndexer,
		ConsumerName:  rs.ConsumerName,
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff:       backoff,
	})
}

func ProvideCacheInvalidator(cache SearchCache) indexing.CacheInvalidator {
	return cache
}

// ProvideMilvusRepository 索引命令使用的仓储，启动时确保集合存在
func ProvideMilvusRepository(ctx context.Context, cfg *config.Config, client *milvus.Client) (*milvus.Repository, error) {
	repo := milvus.NewRepository(client, cfg.Embedding.Dimension)
	if err := repo.EnsurePassagesCollection(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}
