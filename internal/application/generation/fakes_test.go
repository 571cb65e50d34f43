package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/workflow/port"
)

type fakeSearcher struct {
	mu       sync.Mutex
	hits     map[string][]port.SearchHit
	err      error
	requests []port.SearchRequest
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{hits: make(map[string][]port.SearchHit)}
}

// on 注册 query 的命中，scope 为空时匹配任意范围
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

type fakeCompleter struct {
	mu      sync.Mutex
	output  string
	err     error
	prompts []string
	budgets []int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, maxCompletionTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	f.budgets = append(f.budgets, maxCompletionTokens)
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

type fakeStore struct {
	mu       sync.Mutex
	applied  []port.EntityContent
	err      error
	block    chan struct{}
	entered  chan struct{}
	usages   map[string]int
	nextID   int
	usageErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{usages: make(map[string]int)}
}

func (s *fakeStore) ApplyEntity(ctx context.Context, campaignID string, content port.EntityContent) (string, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.applied = append(s.applied, content)
	s.nextID++
	return fmt.Sprintf("entity-%d", s.nextID), nil
}

func (s *fakeStore) RecordUsage(_ context.Context, campaignID, sourceID, passageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usageErr != nil {
		return s.usageErr
	}
	s.usages[campaignID+"|"+passageID]++
	return nil
}

func (s *fakeStore) appliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

type fakeSnapshots struct {
	snapshot *port.CampaignSnapshot
	err      error
}

func (f *fakeSnapshots) LoadSnapshot(_ context.Context, campaignID string) (*port.CampaignSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.snapshot == nil {
		return nil, errors.New("campaign not found")
	}
	s := *f.snapshot
	s.CampaignID = campaignID
	return &s, nil
}

type fakeDraftRepo struct {
	mu      sync.Mutex
	saved   []Draft
	err     error
	loadErr error
}

func (r *fakeDraftRepo) SaveDraft(_ context.Context, d *Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, *d)
	return nil
}

// latest 每个草稿最后一次保存的快照，按首次保存顺序
func (r *fakeDraftRepo) latest() []Draft {
	index := make(map[string]int)
	var out []Draft
	for _, d := range r.saved {
		if i, ok := index[d.ID]; ok {
			out[i] = d
			continue
		}
		index[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

func (r *fakeDraftRepo) LoadDraft(_ context.Context, draftID string) (*Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	for _, d := range r.latest() {
		if d.ID == draftID {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, draftID)
}

func (r *fakeDraftRepo) ListDrafts(_ context.Context, campaignID string) ([]*Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	var out []*Draft
	for _, d := range r.latest() {
		if d.CampaignID == campaignID {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []DraftEvent
	err    error
}

func (p *fakePublisher) PublishDraftEvent(_ context.Context, ev DraftEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *fakePublisher) types() []DraftEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]DraftEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
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

func strPtr(s string) *string { return &s }

func listDrafts(t *testing.T, m *AcceptanceManager, campaignID string, states ...DraftState) []*Draft {
	t.Helper()
	out, err := m.List(context.Background(), campaignID, states...)
	require.NoError(t, err)
	return out
}
