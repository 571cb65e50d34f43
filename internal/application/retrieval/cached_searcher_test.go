package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/infrastructure/persistence/memory"
	"campaign-forge-api/internal/workflow/port"
)

type countingSearcher struct {
	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
}

func (c *countingSearcher) Search(_ context.Context, req port.SearchRequest) ([]port.SearchHit, error) {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return []port.SearchHit{{ID: "p1", Content: req.Query, Confidence: 0.8}}, nil
}

func (c *countingSearcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCachedSearcher_HitsCache(t *testing.T) {
	inner := &countingSearcher{}
	s := NewCachedSearcher(inner, memory.NewCache(time.Minute, time.Minute), time.Minute)
	req := port.SearchRequest{Scope: port.ScopeRules, Query: "stunned"}

	first, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	first[0].Content = "mutated"

	second, err := s.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "stunned", second[0].Content)
	assert.Equal(t, 1, inner.count())

	_, err = s.Search(context.Background(), port.SearchRequest{Scope: port.ScopeRules, Query: "prone"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.count())
}

func TestCachedSearcher_ErrorsNotCached(t *testing.T) {
	inner := &countingSearcher{err: errors.New("boom")}
	s := NewCachedSearcher(inner, memory.NewCache(time.Minute, time.Minute), time.Minute)

	for i := 0; i < 2; i++ {
		_, err := s.Search(context.Background(), port.SearchRequest{Query: "x"})
		assert.Error(t, err)
	}
	assert.Equal(t, 2, inner.count())
}

func TestCachedSearcher_CollapsesConcurrentMisses(t *testing.T) {
	inner := &countingSearcher{gate: make(chan struct{})}
	s := NewCachedSearcher(inner, memory.NewCache(time.Minute, time.Minute), time.Minute)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := s.Search(context.Background(), port.SearchRequest{Query: "same"})
			assert.NoError(t, err)
			assert.Len(t, hits, 1)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(inner.gate)
	wg.Wait()

	assert.LessOrEqual(t, inner.count(), n)
	assert.GreaterOrEqual(t, inner.count(), 1)
}

func TestNewCachedSearcher_Disabled(t *testing.T) {
	inner := &countingSearcher{}
	assert.Same(t, port.Searcher(inner), NewCachedSearcher(inner, nil, time.Minute))
	assert.Same(t, port.Searcher(inner), NewCachedSearcher(inner, memory.NewCache(time.Minute, time.Minute), 0))
}

func TestSearchCacheKey(t *testing.T) {
	a := SearchCacheKey(port.SearchRequest{Scope: port.ScopeCampaign, Query: " dragon ", Filter: `campaign_id == "c1"`})
	b := SearchCacheKey(port.SearchRequest{Scope: port.ScopeCampaign, Query: "dragon", Filter: `campaign_id == "c1"`})
	c := SearchCacheKey(port.SearchRequest{Scope: port.ScopeCampaign, Query: "dragon", Filter: `campaign_id == "c2"`})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "search:campaign:"))
	assert.True(t, strings.HasPrefix(SearchCacheKey(port.SearchRequest{Query: "x"}), "search:all:"))
}
