package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"campaign-forge-api/internal/workflow/port"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  [][]string
	err    error
	dim    int
	result [][]float64
}

var _ embedding.Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	dim := f.dim
	if dim <= 0 {
		dim = 3
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		vec := make([]float64, dim)
		vec[0] = float64(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

type fakeVectorRepo struct {
	mu        sync.Mutex
	ensured   int
	ensureErr error
	searchErr error
	results   []*VectorSearchResult
	lastQuery *VectorSearchParams
	deleted   []string
	inserted  []*VectorPassage
	searches  int
}

var _ VectorRepository = (*fakeVectorRepo)(nil)

func (f *fakeVectorRepo) EnsurePassagesCollection(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return f.ensureErr
}

func (f *fakeVectorRepo) SearchPassages(_ context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	f.lastQuery = params
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func (f *fakeVectorRepo) DeletePassagesByDoc(_ context.Context, scope port.SearchScope, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, string(scope)+"/"+docID)
	return nil
}

func (f *fakeVectorRepo) InsertPassages(_ context.Context, passages []*VectorPassage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(passages) == 0 {
		return errors.New("empty insert")
	}
	f.inserted = append(f.inserted, passages...)
	return nil
}
