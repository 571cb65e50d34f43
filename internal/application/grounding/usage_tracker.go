package grounding

import (
	"context"
	"strings"
	"sync"
	"time"

	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

// UsageStore 记录来源片段被战役引用的情况，需按 (campaign_id, passage_id) 幂等。
// port.CampaignStore 满足该接口。
type UsageStore interface {
	RecordUsage(ctx context.Context, campaignID, sourceID, passageID string) error
}

// UsageTracker 将一次溯源中新引用的片段写入 UsageStore。
// 写入失败只记录日志，不影响溯源结果。
type UsageTracker struct {
	store UsageStore
}

func NewUsageTracker(store UsageStore) *UsageTracker {
	return &UsageTracker{store: store}
}

// Track 记录 citations 中的片段；同一次调用内重复片段只写一次。
// 返回成功写入的片段数。
func (t *UsageTracker) Track(ctx context.Context, campaignID string, citations []Citation) int {
	campaignID = strings.TrimSpace(campaignID)
	if t == nil || t.store == nil || campaignID == "" {
		return 0
	}

	seen := make(map[string]struct{}, len(citations))
	written := 0
	for _, c := range citations {
		passageID := strings.TrimSpace(c.PassageID)
		if passageID == "" {
			continue
		}
		if _, ok := seen[passageID]; ok {
			continue
		}
		seen[passageID] = struct{}{}

		if err := t.store.RecordUsage(ctx, campaignID, c.SourceID, passageID); err != nil {
			metrics.SourceUsageWritesTotal.WithLabelValues("error").Inc()
			logger.Warn(ctx, "failed to record source usage",
				"campaign_id", campaignID,
				"passage_id", passageID,
				"error", err.Error(),
			)
			continue
		}
		metrics.SourceUsageWritesTotal.WithLabelValues("ok").Inc()
		written++
	}
	return written
}

// UsageRecord 来源片段使用记录
type UsageRecord struct {
	CampaignID  string
	SourceID    string
	PassageID   string
	FirstUsedAt time.Time
	LastUsedAt  time.Time
}

type usageKey struct {
	campaignID string
	passageID  string
}

// MemoryUsageStore 进程内 UsageStore，用于 CLI 与测试
type MemoryUsageStore struct {
	mu      sync.Mutex
	records map[usageKey]*UsageRecord
	now     func() time.Time
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{
		records: make(map[usageKey]*UsageRecord),
		now:     time.Now,
	}
}

func (s *MemoryUsageStore) RecordUsage(_ context.Context, campaignID, sourceID, passageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := usageKey{campaignID: campaignID, passageID: passageID}
	if rec, ok := s.records[key]; ok {
		rec.LastUsedAt = now
		return nil
	}
	s.records[key] = &UsageRecord{
		CampaignID:  campaignID,
		SourceID:    sourceID,
		PassageID:   passageID,
		FirstUsedAt: now,
		LastUsedAt:  now,
	}
	return nil
}

// Records 返回指定战役的使用记录快照
func (s *MemoryUsageStore) Records(campaignID string) []UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]UsageRecord, 0)
	for k, rec := range s.records {
		if k.campaignID == campaignID {
			out = append(out, *rec)
		}
	}
	return out
}
