package dto

import (
	"encoding/json"
	"time"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
)

// ModifyDraftRequest 修改草稿请求
type ModifyDraftRequest struct {
	Content string `json:"content" binding:"required,max=65536"`
}

// ListDraftsQuery 草稿列表查询参数
type ListDraftsQuery struct {
	State string `form:"state"`
}

// DraftResponse 草稿详情
type DraftResponse struct {
	DraftID              string                       `json:"draft_id"`
	CampaignID           string                       `json:"campaign_id"`
	GenerationType       string                       `json:"generation_type"`
	TemplateID           string                       `json:"template_id"`
	RequestedBy          string                       `json:"requested_by"`
	State                string                       `json:"state"`
	Content              string                       `json:"content"`
	Data                 json.RawMessage              `json:"data,omitempty"`
	MarkedText           string                       `json:"marked_text"`
	Citations            []grounding.Citation         `json:"citations"`
	TrustAssignments     []generation.TrustAssignment `json:"trust_assignments"`
	UngroundedReferences []grounding.Reference        `json:"ungrounded_references"`
	Confidence           float64                      `json:"confidence"`
	Revision             int                          `json:"revision"`
	CreatedAt            time.Time                    `json:"created_at"`
	UpdatedAt            time.Time                    `json:"updated_at"`
}

// DraftSummary 列表中的草稿摘要
type DraftSummary struct {
	DraftID        string    `json:"draft_id"`
	GenerationType string    `json:"generation_type"`
	TemplateID     string    `json:"template_id"`
	State          string    `json:"state"`
	Confidence     float64   `json:"confidence"`
	Revision       int       `json:"revision"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DraftListResponse 草稿列表
type DraftListResponse struct {
	Drafts []*DraftSummary `json:"drafts"`
}

// AppliedEntityResponse Accept 后写入的实体
type AppliedEntityResponse struct {
	EntityID   string    `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	Name       string    `json:"name"`
	AppliedAt  time.Time `json:"applied_at"`
}

// DraftActionResponse 草稿操作结果
type DraftActionResponse struct {
	Draft   *DraftResponse         `json:"draft"`
	Applied *AppliedEntityResponse `json:"applied_entity,omitempty"`
}

// ToDraftResponse 转换草稿详情
func ToDraftResponse(d *generation.Draft) *DraftResponse {
	if d == nil {
		return nil
	}
	return &DraftResponse{
		DraftID:              d.ID,
		CampaignID:           d.CampaignID,
		GenerationType:       string(d.Type),
		TemplateID:           d.TemplateID,
		RequestedBy:          d.RequestedBy,
		State:                d.State.String(),
		Content:              d.Content,
		Data:                 d.Data,
		MarkedText:           d.MarkedText,
		Citations:            nonNilCitations(d.Citations),
		TrustAssignments:     nonNilTrust(d.TrustAssignments),
		UngroundedReferences: nonNilReferences(d.UngroundedReferences),
		Confidence:           d.Confidence,
		Revision:             d.Revision,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// ToDraftListResponse 转换草稿列表
func ToDraftListResponse(drafts []*generation.Draft) *DraftListResponse {
	out := make([]*DraftSummary, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, &DraftSummary{
			DraftID:        d.ID,
			GenerationType: string(d.Type),
			TemplateID:     d.TemplateID,
			State:          d.State.String(),
			Confidence:     d.Confidence,
			Revision:       d.Revision,
			UpdatedAt:      d.UpdatedAt,
		})
	}
	return &DraftListResponse{Drafts: out}
}

// ToDraftActionResponse 转换草稿操作结果
func ToDraftActionResponse(r *generation.ActionResult) *DraftActionResponse {
	if r == nil {
		return nil
	}
	resp := &DraftActionResponse{Draft: ToDraftResponse(r.Draft)}
	if r.Applied != nil {
		resp.Applied = &AppliedEntityResponse{
			EntityID:   r.Applied.EntityID,
			EntityType: r.Applied.EntityType,
			Name:       r.Applied.Name,
			AppliedAt:  r.Applied.AppliedAt,
		}
	}
	return resp
}
