// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Campaign 战役
type Campaign struct {
	ID          string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name        string    `json:"name" gorm:"type:varchar(255);not null"`
	GameSystem  string    `json:"game_system" gorm:"type:varchar(64);not null;default:''"`
	Setting     string    `json:"setting" gorm:"type:varchar(128);not null;default:''"`
	Tone        string    `json:"tone" gorm:"type:varchar(64);not null;default:''"`
	Description string    `json:"description" gorm:"type:text"`
	OwnerID     string    `json:"owner_id" gorm:"type:varchar(64);index"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// SessionStatus 场次状态
type SessionStatus string

const (
	SessionPlanned   SessionStatus = "planned"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// CampaignSession 战役中的一次跑团场次
type CampaignSession struct {
	ID          string        `json:"id" gorm:"type:varchar(64);primaryKey"`
	CampaignID  string        `json:"campaign_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_campaign_session_number"`
	Number      int           `json:"number" gorm:"not null;uniqueIndex:idx_campaign_session_number"`
	Title       string        `json:"title" gorm:"type:varchar(255)"`
	Summary     string        `json:"summary" gorm:"type:text"`
	ActiveScene string        `json:"active_scene" gorm:"type:text"`
	Status      SessionStatus `json:"status" gorm:"type:varchar(16);not null;default:'planned'"`
	CreatedAt   time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (CampaignSession) TableName() string {
	return "campaign_sessions"
}

func (s *CampaignSession) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SessionPlanned
	}
	return nil
}
