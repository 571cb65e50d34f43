// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"strings"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
)

// GenerateRequest 生成请求；campaign_id 取自路径
type GenerateRequest struct {
	GenerationType  string            `json:"generation_type" binding:"required,oneof=character npc session party arc"`
	FreeTextContext string            `json:"free_text_context" binding:"max=8000"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	RequestedBy     string            `json:"requested_by" binding:"required,max=128"`
}

// ToGenerationRequest 转换为领域请求
func (r *GenerateRequest) ToGenerationRequest(campaignID string) *generation.Request {
	return &generation.Request{
		Type:        generation.Type(strings.ToLower(strings.TrimSpace(r.GenerationType))),
		CampaignID:  campaignID,
		FreeText:    r.FreeTextContext,
		Parameters:  r.Parameters,
		RequestedBy: r.RequestedBy,
	}
}

// GenerationResponse 生成结果
type GenerationResponse struct {
	DraftID              string                       `json:"draft_id"`
	GenerationType       string                       `json:"generation_type"`
	TemplateID           string                       `json:"template_id"`
	Content              string                       `json:"content"`
	Data                 json.RawMessage              `json:"data,omitempty"`
	MarkedText           string                       `json:"marked_text"`
	Citations            []grounding.Citation         `json:"citations"`
	TrustAssignments     []generation.TrustAssignment `json:"trust_assignments"`
	UngroundedReferences []grounding.Reference        `json:"ungrounded_references"`
	Confidence           float64                      `json:"confidence"`
	ContextTokens        int                          `json:"context_tokens"`
}

// ToGenerationResponse 转换生成结果
func ToGenerationResponse(r *generation.Response) *GenerationResponse {
	if r == nil {
		return nil
	}
	return &GenerationResponse{
		DraftID:              r.DraftID,
		GenerationType:       string(r.Type),
		TemplateID:           r.TemplateID,
		Content:              r.Content,
		Data:                 r.Data,
		MarkedText:           r.MarkedText,
		Citations:            nonNilCitations(r.Citations),
		TrustAssignments:     nonNilTrust(r.TrustAssignments),
		UngroundedReferences: nonNilReferences(r.UngroundedReferences),
		Confidence:           r.Confidence,
		ContextTokens:        r.ContextTokens,
	}
}

func nonNilCitations(in []grounding.Citation) []grounding.Citation {
	if in == nil {
		return []grounding.Citation{}
	}
	return in
}

func nonNilTrust(in []generation.TrustAssignment) []generation.TrustAssignment {
	if in == nil {
		return []generation.TrustAssignment{}
	}
	return in
}

func nonNilReferences(in []grounding.Reference) []grounding.Reference {
	if in == nil {
		return []grounding.Reference{}
	}
	return in
}
