package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
)

const draftListPageSize = 100

// DraftStore 把草稿快照写入 generation_drafts，实现 generation.DraftRepository
type DraftStore struct {
	repo repository.GenerationDraftRepository
}

var _ generation.DraftRepository = (*DraftStore)(nil)

func NewDraftStore(repo repository.GenerationDraftRepository) *DraftStore {
	return &DraftStore{repo: repo}
}

func (s *DraftStore) SaveDraft(ctx context.Context, d *generation.Draft) error {
	if d == nil {
		return fmt.Errorf("draft is nil")
	}
	row, err := draftRow(d)
	if err != nil {
		return err
	}
	return s.repo.Save(ctx, row)
}

// LoadDraft 按 ID 读取草稿；不存在时返回 generation.ErrDraftNotFound
func (s *DraftStore) LoadDraft(ctx context.Context, draftID string) (*generation.Draft, error) {
	row, err := s.repo.GetByID(ctx, draftID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", generation.ErrDraftNotFound, draftID)
		}
		return nil, err
	}
	return draftFromRow(row)
}

// ListDrafts 分页读出战役的全部草稿，按创建时间升序
func (s *DraftStore) ListDrafts(ctx context.Context, campaignID string) ([]*generation.Draft, error) {
	var out []*generation.Draft
	for page := 1; ; page++ {
		res, err := s.repo.ListByCampaign(ctx, campaignID, "", repository.NewPagination(page, draftListPageSize))
		if err != nil {
			return nil, err
		}
		for _, row := range res.Items {
			d, err := draftFromRow(row)
			if err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		if len(res.Items) < draftListPageSize || int64(len(out)) >= res.Total {
			return out, nil
		}
	}
}

func draftRow(d *generation.Draft) (*entity.GenerationDraft, error) {
	citations, err := json.Marshal(d.Citations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal citations: %w", err)
	}
	trust, err := json.Marshal(d.TrustAssignments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trust assignments: %w", err)
	}
	ungrounded, err := json.Marshal(d.UngroundedReferences)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ungrounded references: %w", err)
	}

	var data []byte
	if len(d.Data) > 0 {
		data = []byte(d.Data)
	}

	return &entity.GenerationDraft{
		ID:                   d.ID,
		CampaignID:           d.CampaignID,
		GenerationType:       string(d.Type),
		TemplateID:           d.TemplateID,
		RequestedBy:          d.RequestedBy,
		State:                d.State.String(),
		Content:              d.Content,
		MarkedText:           d.MarkedText,
		Data:                 data,
		Citations:            citations,
		TrustAssignments:     trust,
		UngroundedReferences: ungrounded,
		Confidence:           d.Confidence,
		Revision:             d.Revision,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}, nil
}

func draftFromRow(row *entity.GenerationDraft) (*generation.Draft, error) {
	state, err := generation.ParseDraftState(row.State)
	if err != nil {
		return nil, fmt.Errorf("draft %s: %w", row.ID, err)
	}
	d := &generation.Draft{
		ID:          row.ID,
		CampaignID:  row.CampaignID,
		Type:        generation.Type(row.GenerationType),
		TemplateID:  row.TemplateID,
		RequestedBy: row.RequestedBy,
		State:       state,
		Content:     row.Content,
		MarkedText:  row.MarkedText,
		Confidence:  row.Confidence,
		Revision:    row.Revision,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if len(row.Data) > 0 {
		d.Data = json.RawMessage(row.Data)
	}
	if err := unmarshalColumn(row.Citations, &d.Citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}
	if err := unmarshalColumn(row.TrustAssignments, &d.TrustAssignments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trust assignments: %w", err)
	}
	if err := unmarshalColumn(row.UngroundedReferences, &d.UngroundedReferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ungrounded references: %w", err)
	}
	return d, nil
}

// unmarshalColumn 解码 jsonb 数组列；空值与 null 解码为空切片
func unmarshalColumn[T any](raw []byte, out *[]T) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return err
		}
	}
	if *out == nil {
		*out = []T{}
	}
	return nil
}
