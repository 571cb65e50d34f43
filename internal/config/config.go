// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	Generation    GenerationConfig    `yaml:"generation" mapstructure:"generation"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
	GRPC GRPCServerConfig `yaml:"grpc" mapstructure:"grpc"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Addr 返回 HTTP 监听地址
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCServerConfig gRPC 服务器配置（当前仅承载健康检查服务）
type GRPCServerConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	Host           string `yaml:"host" mapstructure:"host"`
	Port           int    `yaml:"port" mapstructure:"port"`
	MaxRecvMsgSize int    `yaml:"max_recv_msg_size" mapstructure:"max_recv_msg_size"`
	MaxSendMsgSize int    `yaml:"max_send_msg_size" mapstructure:"max_send_msg_size"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// DSN 返回 PostgreSQL 连接串
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// SearchTTL 检索结果缓存时长；<=0 表示不缓存
	SearchTTL time.Duration `yaml:"search_ttl" mapstructure:"search_ttl"`
	// SnapshotTTL 战役快照缓存时长；<=0 表示不缓存
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" mapstructure:"snapshot_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// VectorConfig 向量数据库配置
type VectorConfig struct {
	Milvus MilvusConfig `yaml:"milvus" mapstructure:"milvus"`
}

// MilvusConfig Milvus 配置
type MilvusConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// RequestsPerMinute 进程内 LLM 调用限速；<=0 表示不限速
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	// DailyTokenQuota 单个战役每日（UTC）可消耗的 token 上限；<=0 表示不限
	DailyTokenQuota int64 `yaml:"daily_token_quota" mapstructure:"daily_token_quota"`
	// JSONRepair 输出不含 JSON 对象时追加一次修复调用，会额外消耗一次 LLM 请求
	JSONRepair bool `yaml:"json_repair" mapstructure:"json_repair"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EmbeddingConfig Embedding 配置
type EmbeddingConfig struct {
	// Provider openai（OpenAI 兼容接口）或 tei（text-embeddings-inference /embed 接口）
	Provider  string        `yaml:"provider" mapstructure:"provider"`
	Model     string        `yaml:"model" mapstructure:"model"`
	BatchSize int           `yaml:"batch_size" mapstructure:"batch_size"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	Endpoint  string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey    string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// GenerationConfig 内容生成配置
type GenerationConfig struct {
	TemplateDir string `yaml:"template_dir" mapstructure:"template_dir"`
	// WatchTemplates 为 true 时监听模板目录并整体热替换
	WatchTemplates bool `yaml:"watch_templates" mapstructure:"watch_templates"`

	TokenBudget      int            `yaml:"token_budget" mapstructure:"token_budget"`
	CompletionTokens int            `yaml:"completion_tokens" mapstructure:"completion_tokens"`
	SectionCaps      map[string]int `yaml:"section_caps" mapstructure:"section_caps"`
	MinSectionTokens int            `yaml:"min_section_tokens" mapstructure:"min_section_tokens"`

	IncludeGrounding  bool    `yaml:"include_grounding" mapstructure:"include_grounding"`
	GroundingExcerpts int     `yaml:"grounding_excerpts" mapstructure:"grounding_excerpts"`
	MinLinkConfidence float64 `yaml:"min_link_confidence" mapstructure:"min_link_confidence"`
	SaveDrafts        bool    `yaml:"save_drafts" mapstructure:"save_drafts"`
	PublishEvents     bool    `yaml:"publish_events" mapstructure:"publish_events"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerName  string        `yaml:"consumer_name" mapstructure:"consumer_name"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置（基于 Redis 滑动窗口）
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Limit   int           `yaml:"limit" mapstructure:"limit"`
	Window  time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
