package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

const searchCacheName = "search"

// CachedSearcher 在 port.Searcher 外加一层读穿缓存，相同请求并发时只打一次后端。
// 缓存读写失败只记日志，不影响检索结果；后端错误不缓存。
type CachedSearcher struct {
	inner port.Searcher
	cache port.KVCache
	ttl   time.Duration
	group singleflight.Group
}

var _ port.Searcher = (*CachedSearcher)(nil)

// NewCachedSearcher ttl<=0 或 cache 为 nil 时直接返回 inner
func NewCachedSearcher(inner port.Searcher, cache port.KVCache, ttl time.Duration) port.Searcher {
	if cache == nil || ttl <= 0 {
		return inner
	}
	return &CachedSearcher{inner: inner, cache: cache, ttl: ttl}
}

func (s *CachedSearcher) Search(ctx context.Context, req port.SearchRequest) ([]port.SearchHit, error) {
	key := SearchCacheKey(req)

	if raw, found, err := s.cache.Get(ctx, key); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(searchCacheName, "error").Inc()
		logger.Warn(ctx, "search cache read failed", "error", err.Error())
	} else if found {
		var hits []port.SearchHit
		if err := json.Unmarshal(raw, &hits); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues(searchCacheName, "hit").Inc()
			return hits, nil
		}
		logger.Warn(ctx, "search cache entry corrupt", "key", key)
	}
	metrics.CacheLookupsTotal.WithLabelValues(searchCacheName, "miss").Inc()

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		hits, err := s.inner.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(hits); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
				logger.Warn(ctx, "search cache write failed", "error", err.Error())
			}
		}
		return hits, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight 共享结果，复制一份避免调用方互相修改
	shared := v.([]port.SearchHit)
	out := make([]port.SearchHit, len(shared))
	copy(out, shared)
	return out, nil
}

// SearchCacheKey 检索缓存键；campaign 范围的过滤条件也参与计算
func SearchCacheKey(req port.SearchRequest) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(req.Query)))
	h.Write([]byte{0})
	h.Write([]byte(req.Filter))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.Limit)))
	scope := string(req.Scope)
	if scope == "" {
		scope = "all"
	}
	return "search:" + scope + ":" + hex.EncodeToString(h.Sum(nil))[:32]
}
