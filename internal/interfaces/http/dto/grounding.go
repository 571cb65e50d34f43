package dto

import "campaign-forge-api/internal/application/grounding"

// GroundRequest 溯源请求
type GroundRequest struct {
	Text       string `json:"text" binding:"required,max=65536"`
	CampaignID string `json:"campaign_id" binding:"max=64"`
}

// ValidateRequest 引用校验请求
type ValidateRequest struct {
	Text string `json:"text" binding:"required,max=65536"`
}

// GroundResponse 溯源结果
type GroundResponse struct {
	Text                 string                `json:"text"`
	MarkedText           string                `json:"marked_text"`
	Citations            []grounding.Citation  `json:"citations"`
	Confidence           float64               `json:"confidence"`
	UngroundedReferences []grounding.Reference `json:"ungrounded_references"`
}

// ValidateResponse 引用校验结果
type ValidateResponse struct {
	Valid       []grounding.ValidatedReference `json:"valid"`
	Invalid     []grounding.InvalidReference   `json:"invalid"`
	Total       int                            `json:"total"`
	SuccessRate float64                        `json:"success_rate"`
}

// ToGroundResponse 转换溯源结果
func ToGroundResponse(g *grounding.GroundedContent) *GroundResponse {
	if g == nil {
		return nil
	}
	return &GroundResponse{
		Text:                 g.Text,
		MarkedText:           g.MarkedText,
		Citations:            nonNilCitations(g.Citations),
		Confidence:           g.Confidence,
		UngroundedReferences: nonNilReferences(g.UngroundedReferences),
	}
}

// ToValidateResponse 转换引用校验结果
func ToValidateResponse(r *grounding.ValidationReport) *ValidateResponse {
	resp := &ValidateResponse{
		Valid:       []grounding.ValidatedReference{},
		Invalid:     []grounding.InvalidReference{},
		SuccessRate: r.SuccessRate(),
		Total:       r.Total(),
	}
	if r != nil {
		if r.Valid != nil {
			resp.Valid = r.Valid
		}
		if r.Invalid != nil {
			resp.Invalid = r.Invalid
		}
	}
	return resp
}
