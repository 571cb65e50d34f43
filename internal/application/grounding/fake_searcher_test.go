package grounding

import (
	"context"
	"sync"

	"campaign-forge-api/internal/workflow/port"
)

// fakeSearcher 按 (scope, query) 返回预置命中；scope 为空的条目匹配任意范围
type fakeSearcher struct {
	mu       sync.Mutex
	hits     map[string][]port.SearchHit
	err      error
	requests []port.SearchRequest
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{hits: make(map[string][]port.SearchHit)}
}

func (f *fakeSearcher) on(scope port.SearchScope, query string, hits ...port.SearchHit) *fakeSearcher {
	f.hits[string(scope)+"|"+query] = hits
	return f
}

func (f *fakeSearcher) Search(_ context.Context, req port.SearchRequest) ([]port.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if hits, ok := f.hits[string(req.Scope)+"|"+req.Query]; ok {
		return hits, nil
	}
	return f.hits["|"+req.Query], nil
}

func hit(id, content string, confidence float64) port.SearchHit {
	return port.SearchHit{
		ID:         id,
		Content:    content,
		Confidence: confidence,
		Source: port.SourceMetadata{
			SourceID:   "src-" + id,
			SourceName: "Test Source",
		},
	}
}
