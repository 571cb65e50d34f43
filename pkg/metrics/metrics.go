// Package metrics 提供 Prometheus 指标采集功能
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "campaign_forge"
)

var (
	// HTTP 请求指标
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// 业务指标 - 内容生成
	GenerationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"type", "status"},
	)

	GenerationStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each generation pipeline stage in seconds",
			Buckets:   []float64{.005, .025, .1, .5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ContextTokensAssembled = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "generation",
			Name:      "context_tokens",
			Help:      "Estimated token count of assembled prompt context",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000},
		},
		[]string{"type"},
	)

	// 溯源指标
	GroundingReferencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grounding",
			Name:      "references_total",
			Help:      "Detected references by resolution result",
		},
		[]string{"result"}, // result: cited/ungrounded
	)

	SourceUsageWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grounding",
			Name:      "usage_writes_total",
			Help:      "Source usage tracking writes",
		},
		[]string{"status"},
	)

	TrustAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grounding",
			Name:      "trust_assignments_total",
			Help:      "Claim trust assignments by level",
		},
		[]string{"level"},
	)

	// 草稿生命周期
	DraftTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "draft",
			Name:      "transitions_total",
			Help:      "Draft lifecycle transitions",
		},
		[]string{"action", "result"},
	)

	// LLM 指标
	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total tokens used for LLM calls",
		},
		[]string{"workflow", "provider", "model", "type"}, // type: prompt/completion
	)

	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120},
		},
		[]string{"workflow", "provider", "model"},
	)

	LLMCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"workflow", "provider", "model", "status"},
	)

	// 向量检索指标
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Passage search duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"scope"},
	)

	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "total",
			Help:      "Total number of passage searches",
		},
		[]string{"scope", "status"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result",
		},
		[]string{"cache", "result"}, // result: hit/miss
	)

	// 队列指标
	RedisStreamProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "stream_processed_total",
			Help:      "Total number of Redis stream messages processed",
		},
		[]string{"stream", "status"},
	)

	RedisStreamDeadLetters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "stream_dead_letters",
			Help:      "Number of entries in the dead letter stream",
		},
		[]string{"stream"},
	)
)
