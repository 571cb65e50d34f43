package entity

import "time"

// GenerationDraft 生成草稿的持久化快照；运行中以内存状态机为准，进程重启后从这里恢复
type GenerationDraft struct {
	ID                   string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	CampaignID           string    `json:"campaign_id" gorm:"type:varchar(64);index:idx_draft_campaign_state;not null"`
	GenerationType       string    `json:"generation_type" gorm:"type:varchar(32);not null"`
	TemplateID           string    `json:"template_id" gorm:"type:varchar(64)"`
	RequestedBy          string    `json:"requested_by" gorm:"type:varchar(64)"`
	State                string    `json:"state" gorm:"type:varchar(16);index:idx_draft_campaign_state;not null"`
	Content              string    `json:"content" gorm:"type:text"`
	MarkedText           string    `json:"marked_text" gorm:"type:text"`
	Data                 []byte    `json:"data" gorm:"type:jsonb"`
	Citations            []byte    `json:"citations" gorm:"type:jsonb"`
	TrustAssignments     []byte    `json:"trust_assignments" gorm:"type:jsonb"`
	UngroundedReferences []byte    `json:"ungrounded_references" gorm:"type:jsonb"`
	Confidence           float64   `json:"confidence" gorm:"not null;default:0"`
	Revision             int       `json:"revision" gorm:"not null;default:1"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (GenerationDraft) TableName() string {
	return "generation_drafts"
}
