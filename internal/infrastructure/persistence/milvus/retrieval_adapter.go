package milvus

import (
	"context"

	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/workflow/port"
)

// RetrievalVectorRepository 把 Repository 适配为 retrieval.VectorRepository
type RetrievalVectorRepository struct {
	repo *Repository
}

func NewRetrievalVectorRepository(repo *Repository) *RetrievalVectorRepository {
	return &RetrievalVectorRepository{repo: repo}
}

var _ retrieval.VectorRepository = (*RetrievalVectorRepository)(nil)

func (r *RetrievalVectorRepository) EnsurePassagesCollection(ctx context.Context) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.EnsurePassagesCollection(ctx)
}

func (r *RetrievalVectorRepository) SearchPassages(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	out, err := r.repo.SearchPassages(ctx, &SearchParams{
		Scope:       string(params.Scope),
		Filter:      params.Filter,
		QueryVector: params.QueryVector,
		TopK:        params.TopK,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*retrieval.VectorSearchResult, 0, len(out))
	for _, v := range out {
		if v == nil {
			continue
		}
		results = append(results, toVectorSearchResult(v))
	}
	return results, nil
}

func toVectorSearchResult(v *SearchResult) *retrieval.VectorSearchResult {
	var page *int
	if v.Page > 0 {
		p := int(v.Page)
		page = &p
	}
	return &retrieval.VectorSearchResult{
		ID:      v.ID,
		Score:   v.Score,
		Content: v.Content,
		Source: port.SourceMetadata{
			SourceID:   v.SourceID,
			SourceName: v.SourceName,
			SourceType: v.SourceType,
			Page:       page,
			Section:    v.Section,
			ChunkType:  v.ChunkType,
			Title:      v.Title,
			CampaignID: v.CampaignID,
		},
	}
}

func (r *RetrievalVectorRepository) DeletePassagesByDoc(ctx context.Context, scope port.SearchScope, docID string) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.DeletePassagesByDoc(ctx, string(scope), docID)
}

// InsertPassages 按范围分组写入；indexer 一次调用只涉及单一范围
func (r *RetrievalVectorRepository) InsertPassages(ctx context.Context, passages []*retrieval.VectorPassage) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}

	grouped := make(map[port.SearchScope][]*SourcePassage)
	var order []port.SearchScope
	for _, p := range passages {
		if p == nil {
			continue
		}
		if _, ok := grouped[p.Scope]; !ok {
			order = append(order, p.Scope)
		}
		grouped[p.Scope] = append(grouped[p.Scope], toSourcePassage(p))
	}
	for _, scope := range order {
		if err := r.repo.InsertPassages(ctx, string(scope), grouped[scope]); err != nil {
			return err
		}
	}
	return nil
}

func toSourcePassage(p *retrieval.VectorPassage) *SourcePassage {
	var page int64
	if p.Source.Page != nil {
		page = int64(*p.Source.Page)
	}
	return &SourcePassage{
		ID:         p.ID,
		Vector:     p.Vector,
		Scope:      string(p.Scope),
		DocID:      p.DocID,
		SourceID:   p.Source.SourceID,
		SourceName: p.Source.SourceName,
		SourceType: p.Source.SourceType,
		GameSystem: p.GameSystem,
		Setting:    p.Setting,
		CampaignID: p.Source.CampaignID,
		ChunkType:  p.Source.ChunkType,
		Section:    p.Source.Section,
		Title:      p.Source.Title,
		Page:       page,
		Content:    p.Content,
	}
}
