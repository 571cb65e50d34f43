// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const connectTimeout = 10 * time.Second

// Client Milvus 客户端；集合名统一加配置前缀
type Client struct {
	milvus client.Client
	config *config.MilvusConfig
	prefix string
}

// NewClient 连接 Milvus；超过 connectTimeout 视为不可达
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	mc, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.User,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		milvus: mc,
		config: cfg,
		prefix: strings.TrimSpace(cfg.CollectionPrefix),
	}, nil
}

// Close 关闭 Milvus 连接
func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 使用服务端健康状态；不健康时返回原因
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	state, err := c.milvus.CheckHealth(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("health check failed: %w", err)
	}
	if !state.IsHealthy {
		return fmt.Errorf("milvus unhealthy: %s", strings.Join(state.Reasons, "; "))
	}
	return nil
}

// CollectionName 获取带前缀的集合名称
func (c *Client) CollectionName(name string) string {
	if c.prefix != "" {
		return c.prefix + "_" + name
	}
	return name
}

// HasCollection 检查集合是否存在
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.HasCollection(ctx, c.CollectionName(name))
}

// LoadCollection 加载集合到内存
func (c *Client) LoadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.CollectionName(name), false)
}

// ReleaseCollection 释放集合内存
func (c *Client) ReleaseCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.ReleaseCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.ReleaseCollection(ctx, c.CollectionName(name))
}
