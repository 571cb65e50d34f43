// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envPlaceholder 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPlaceholder = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从 configs 目录加载配置（可用 CONFIG_DIR 覆盖）。
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	dir := strings.TrimSpace(os.Getenv("CONFIG_DIR"))
	if dir == "" {
		dir = "configs"
	}
	return LoadFrom(dir)
}

// LoadFrom 从指定目录加载 config.yaml 与 config.$APP_ENV.yaml
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := loadConfigFile(v, filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env)), true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验跨字段约束
func (c *Config) Validate() error {
	g := c.Generation
	if g.TokenBudget <= 0 {
		return fmt.Errorf("generation.token_budget must be positive")
	}
	if g.CompletionTokens < 0 || g.CompletionTokens >= g.TokenBudget {
		return fmt.Errorf("generation.completion_tokens must be in [0, token_budget)")
	}
	sum := 0
	for name, limit := range g.SectionCaps {
		if limit < 0 {
			return fmt.Errorf("generation.section_caps.%s must not be negative", name)
		}
		sum += limit
	}
	if sum > g.TokenBudget-g.CompletionTokens {
		return fmt.Errorf("generation.section_caps sum %d exceeds prompt budget %d", sum, g.TokenBudget-g.CompletionTokens)
	}
	if g.MinLinkConfidence < 0 || g.MinLinkConfidence > 1 {
		return fmt.Errorf("generation.min_link_confidence must be within [0, 1]")
	}
	return nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，后续文件走 MergeConfig
		v.SetConfigFile(path)
		return nil
	}
	if err := v.MergeConfig(reader); err != nil {
		return fmt.Errorf("failed to merge processed config %s: %w", path, err)
	}
	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符；未定义且无默认值的变量保留原样
func expandEnv(s string) string {
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPlaceholder.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(submatch[1]); ok {
			return val
		}
		if submatch[2] != "" {
			return submatch[3]
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "campaign-forge-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "180s")
	v.SetDefault("server.http.idle_timeout", "120s")

	v.SetDefault("server.grpc.enabled", true)
	v.SetDefault("server.grpc.host", "0.0.0.0")
	v.SetDefault("server.grpc.port", 50051)
	v.SetDefault("server.grpc.max_recv_msg_size", 4194304)
	v.SetDefault("server.grpc.max_send_msg_size", 4194304)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "campaign_forge")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 50)
	v.SetDefault("database.postgres.max_idle_conns", 10)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.auto_migrate", true)

	v.SetDefault("cache.redis.enabled", true)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")
	v.SetDefault("cache.search_ttl", "10m")
	v.SetDefault("cache.snapshot_ttl", "30s")

	v.SetDefault("vector.milvus.enabled", true)
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "campaign_forge")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.json_repair", false)

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1024)
	v.SetDefault("embedding.timeout", "30s")

	// 生成默认值：总预算 8000，其中 2000 预留给补全
	v.SetDefault("generation.template_dir", "templates")
	v.SetDefault("generation.watch_templates", false)
	v.SetDefault("generation.token_budget", 8000)
	v.SetDefault("generation.completion_tokens", 2000)
	v.SetDefault("generation.section_caps", map[string]int{
		"campaign":  1000,
		"session":   1000,
		"grounding": 2000,
		"template":  500,
	})
	v.SetDefault("generation.min_section_tokens", 20)
	v.SetDefault("generation.include_grounding", true)
	v.SetDefault("generation.grounding_excerpts", 3)
	v.SetDefault("generation.min_link_confidence", 0.5)
	v.SetDefault("generation.save_drafts", true)
	v.SetDefault("generation.publish_events", true)

	v.SetDefault("messaging.redis_stream.max_len", 100000)
	v.SetDefault("messaging.redis_stream.consumer_name", "draft-worker-1")
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "1m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.limit", 30)
	v.SetDefault("security.rate_limit.window", "1m")
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Origin", "Content-Type", "X-Request-ID"})
}
