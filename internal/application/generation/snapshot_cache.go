package generation

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"campaign-forge-api/internal/workflow/port"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

const snapshotCacheName = "snapshot"

// CachedSnapshotLoader 战役快照读穿缓存
type CachedSnapshotLoader struct {
	inner port.SnapshotLoader
	cache port.KVCache
	ttl   time.Duration
	group singleflight.Group
}

var _ port.SnapshotLoader = (*CachedSnapshotLoader)(nil)

// NewCachedSnapshotLoader ttl<=0 或 cache 为 nil 时直接返回 inner
func NewCachedSnapshotLoader(inner port.SnapshotLoader, cache port.KVCache, ttl time.Duration) port.SnapshotLoader {
	if cache == nil || ttl <= 0 {
		return inner
	}
	return &CachedSnapshotLoader{inner: inner, cache: cache, ttl: ttl}
}

// SnapshotCacheKey 快照缓存键
func SnapshotCacheKey(campaignID string) string {
	return "snapshot:" + campaignID
}

func (l *CachedSnapshotLoader) LoadSnapshot(ctx context.Context, campaignID string) (*port.CampaignSnapshot, error) {
	key := SnapshotCacheKey(campaignID)

	if raw, found, err := l.cache.Get(ctx, key); err != nil {
		metrics.CacheLookupsTotal.WithLabelValues(snapshotCacheName, "error").Inc()
		logger.Warn(ctx, "snapshot cache read failed", "campaign_id", campaignID, "error", err.Error())
	} else if found {
		var snap port.CampaignSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues(snapshotCacheName, "hit").Inc()
			return &snap, nil
		}
	}
	metrics.CacheLookupsTotal.WithLabelValues(snapshotCacheName, "miss").Inc()

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		snap, err := l.inner.LoadSnapshot(ctx, campaignID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(snap); err == nil {
			if err := l.cache.Set(ctx, key, raw, l.ttl); err != nil {
				logger.Warn(ctx, "snapshot cache write failed", "campaign_id", campaignID, "error", err.Error())
			}
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}

	out := *v.(*port.CampaignSnapshot)
	return &out, nil
}

// Invalidate 战役数据变更后清除快照
func (l *CachedSnapshotLoader) Invalidate(ctx context.Context, campaignID string) error {
	return l.cache.Delete(ctx, SnapshotCacheKey(campaignID))
}
