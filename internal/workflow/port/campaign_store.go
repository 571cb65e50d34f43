package port

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrCampaignNotFound 战役不存在
var ErrCampaignNotFound = errors.New("campaign not found")

// EntityContent 待写入战役存储的实体内容
type EntityContent struct {
	DraftID    string          `json:"draft_id"`
	EntityType string          `json:"entity_type"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
}

// CampaignStore 定义战役存储能力：实体落库与来源使用记录。
// RecordUsage 需按 (campaign_id, passage_id) 幂等。
type CampaignStore interface {
	ApplyEntity(ctx context.Context, campaignID string, content EntityContent) (string, error)
	RecordUsage(ctx context.Context, campaignID, sourceID, passageID string) error
}

// CampaignSnapshot 上下文组装所需的战役快照
type CampaignSnapshot struct {
	CampaignID  string `json:"campaign_id"`
	Name        string `json:"name"`
	GameSystem  string `json:"game_system"`
	Setting     string `json:"setting"`
	Tone        string `json:"tone"`
	Description string `json:"description"`

	SessionTitle   string `json:"session_title,omitempty"`
	SessionNumber  int    `json:"session_number,omitempty"`
	SessionSummary string `json:"session_summary,omitempty"`
	ActiveScene    string `json:"active_scene,omitempty"`
}

// SnapshotLoader 读取战役快照；战役不存在时返回 ErrCampaignNotFound
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, campaignID string) (*CampaignSnapshot, error)
}
