package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceUsage 战役对某条来源片段的使用记录；(campaign_id, passage_id) 唯一
type SourceUsage struct {
	ID          string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	CampaignID  string    `json:"campaign_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_source_usage_passage"`
	PassageID   string    `json:"passage_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_source_usage_passage"`
	SourceID    string    `json:"source_id" gorm:"type:varchar(128);index"`
	FirstUsedAt time.Time `json:"first_used_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

func (SourceUsage) TableName() string {
	return "source_usages"
}

func (u *SourceUsage) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
