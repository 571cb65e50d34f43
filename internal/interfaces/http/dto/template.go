package dto

import "campaign-forge-api/internal/application/generation"

// TemplateResponse 模板摘要（不含 prompt 正文）
type TemplateResponse struct {
	ID                string   `json:"id"`
	GenerationType    string   `json:"generation_type"`
	Version           string   `json:"version"`
	Description       string   `json:"description"`
	RequiredVariables []string `json:"required_variables"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
}

// TemplateListResponse 模板列表
type TemplateListResponse struct {
	Templates []*TemplateResponse `json:"templates"`
}

// TemplateReloadResponse 模板重载结果
type TemplateReloadResponse struct {
	Dir       string `json:"dir"`
	Templates int    `json:"templates"`
}

// ToTemplateListResponse 转换模板列表
func ToTemplateListResponse(templates []*generation.Template) *TemplateListResponse {
	out := make([]*TemplateResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, &TemplateResponse{
			ID:                t.ID,
			GenerationType:    string(t.Type),
			Version:           t.Version,
			Description:       t.Description,
			RequiredVariables: t.RequiredVariables(),
			MaxTokens:         t.MaxTokens,
		})
	}
	return &TemplateListResponse{Templates: out}
}
