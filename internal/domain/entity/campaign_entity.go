package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignEntity 已采纳草稿落库后的战役实体（NPC、场次大纲、剧情弧等）。
// DraftID 唯一，保证同一草稿至多写入一次。
type CampaignEntity struct {
	ID         string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	CampaignID string    `json:"campaign_id" gorm:"type:varchar(64);index;not null"`
	DraftID    string    `json:"draft_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	EntityType string    `json:"entity_type" gorm:"type:varchar(32);index;not null"`
	Name       string    `json:"name" gorm:"type:varchar(255);not null"`
	Data       []byte    `json:"data" gorm:"type:jsonb"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (CampaignEntity) TableName() string {
	return "campaign_entities"
}

func (e *CampaignEntity) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
