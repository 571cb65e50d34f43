package port

import (
	"context"
	"time"
)

// KVCache 最小键值缓存能力；未命中返回 found=false 且 err=nil
type KVCache interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
