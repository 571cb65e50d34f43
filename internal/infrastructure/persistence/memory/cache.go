// Package memory 提供进程内缓存实现，Redis 关闭时作为 port.KVCache 的替代
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"campaign-forge-api/internal/workflow/port"
)

// Cache 基于 go-cache 的 port.KVCache 实现
type Cache struct {
	cache *cache.Cache
}

var _ port.KVCache = (*Cache)(nil)

// NewCache defaultTTL 用于 Set 传入 ttl<=0 的情况
func NewCache(defaultTTL, cleanupInterval time.Duration) *Cache {
	return &Cache{cache: cache.New(defaultTTL, cleanupInterval)}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if x, found := c.cache.Get(key); found {
		b, ok := x.([]byte)
		return b, ok, nil
	}
	return nil, false, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	c.cache.Set(key, stored, ttl)
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.cache.Delete(k)
	}
	return nil
}

// DeletePrefix 删除以 prefix 开头的所有键
func (c *Cache) DeletePrefix(_ context.Context, prefix string) error {
	for k := range c.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Delete(k)
		}
	}
	return nil
}
