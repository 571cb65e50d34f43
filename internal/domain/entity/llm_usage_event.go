package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LLMUsageEvent 单次 LLM 调用的用量记录，按战役归属
type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	CampaignID       string    `json:"campaign_id" gorm:"type:varchar(64);index:idx_llm_usage_campaign_time;not null"`
	Workflow         string    `json:"workflow" gorm:"type:varchar(64);not null;default:''"`
	Provider         string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model            string    `json:"model" gorm:"type:varchar(64);not null"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_llm_usage_campaign_time"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}

func (e *LLMUsageEvent) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// TotalTokens 本次调用消耗的总 token
func (e *LLMUsageEvent) TotalTokens() int {
	return e.TokensPrompt + e.TokensCompletion
}
