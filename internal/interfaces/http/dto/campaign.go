package dto

import (
	"encoding/json"
	"time"

	"campaign-forge-api/internal/domain/entity"
)

// ListEntitiesQuery 战役实体列表查询参数
type ListEntitiesQuery struct {
	EntityType string `form:"entity_type" binding:"omitempty,oneof=character npc session party arc"`
}

// CampaignEntityResponse 已采纳草稿写入的战役实体
type CampaignEntityResponse struct {
	EntityID   string          `json:"entity_id"`
	DraftID    string          `json:"draft_id"`
	EntityType string          `json:"entity_type"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CampaignEntityListResponse 战役实体列表
type CampaignEntityListResponse struct {
	Entities []*CampaignEntityResponse `json:"entities"`
}

// SessionResponse 场次
type SessionResponse struct {
	SessionID   string    `json:"session_id"`
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	ActiveScene string    `json:"active_scene,omitempty"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionListResponse 场次列表
type SessionListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
}

// SourceUsageResponse 来源片段使用记录
type SourceUsageResponse struct {
	SourceID    string    `json:"source_id"`
	PassageID   string    `json:"passage_id"`
	FirstUsedAt time.Time `json:"first_used_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// SourceUsageListResponse 来源使用记录列表
type SourceUsageListResponse struct {
	Usages []*SourceUsageResponse `json:"usages"`
}

func ToCampaignEntityListResponse(items []*entity.CampaignEntity) *CampaignEntityListResponse {
	out := make([]*CampaignEntityResponse, 0, len(items))
	for _, e := range items {
		resp := &CampaignEntityResponse{
			EntityID:   e.ID,
			DraftID:    e.DraftID,
			EntityType: e.EntityType,
			Name:       e.Name,
			CreatedAt:  e.CreatedAt,
		}
		if json.Valid(e.Data) {
			resp.Data = json.RawMessage(e.Data)
		}
		out = append(out, resp)
	}
	return &CampaignEntityListResponse{Entities: out}
}

func ToSessionListResponse(items []*entity.CampaignSession) *SessionListResponse {
	out := make([]*SessionResponse, 0, len(items))
	for _, s := range items {
		out = append(out, &SessionResponse{
			SessionID:   s.ID,
			Number:      s.Number,
			Title:       s.Title,
			Summary:     s.Summary,
			ActiveScene: s.ActiveScene,
			Status:      string(s.Status),
			UpdatedAt:   s.UpdatedAt,
		})
	}
	return &SessionListResponse{Sessions: out}
}

func ToSourceUsageListResponse(items []*entity.SourceUsage) *SourceUsageListResponse {
	out := make([]*SourceUsageResponse, 0, len(items))
	for _, u := range items {
		out = append(out, &SourceUsageResponse{
			SourceID:    u.SourceID,
			PassageID:   u.PassageID,
			FirstUsedAt: u.FirstUsedAt,
			LastUsedAt:  u.LastUsedAt,
		})
	}
	return &SourceUsageListResponse{Usages: out}
}
