// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/internal/workflow/port"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 基于 Redis 的 port.KVCache 实现
type Cache struct {
	client *Client
}

var _ port.KVCache = (*Cache)(nil)

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Get 获取缓存值；键不存在时 found=false
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, true, nil
}

// Set 设置缓存值
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	if err := c.client.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Delete 删除缓存
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	return c.client.rdb.Del(ctx, keys...).Err()
}

// DeletePrefix 按前缀使缓存失效（SCAN + DEL）
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.DeletePrefix",
		trace.WithAttributes(attribute.String("cache.prefix", prefix)))
	defer span.End()

	iter := c.client.rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return err
	}

	if len(keys) > 0 {
		span.SetAttributes(attribute.Int("cache.invalidated_count", len(keys)))
		return c.client.rdb.Del(ctx, keys...).Err()
	}
	return nil
}
