// Package messaging 提供基于 Redis Stream 的消息队列实现
package messaging

import (
	"encoding/json"
	"time"

	"campaign-forge-api/pkg/logger"
)

// propagatedKeys 生产端写入 Metadata、消费端还原到日志上下文的键
var propagatedKeys = []logger.ContextKey{
	logger.DraftIDKey,
	logger.RequestIDKey,
	logger.TraceIDKey,
}

// Message 消息结构
type Message struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	CampaignID string            `json:"campaign_id"`
	Payload    json.RawMessage   `json:"payload"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, campaignID string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:         id,
		Type:       msgType,
		CampaignID: campaignID,
		Payload:    payloadBytes,
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	// StreamDraftEvents 草稿生命周期事件
	StreamDraftEvents Stream = "stream:campaign:drafts"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	// ConsumerGroupDraftIndexer 把已采纳实体写入检索索引并清理缓存
	ConsumerGroupDraftIndexer ConsumerGroup = "cg-draft-indexer"
)

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoffConfig 默认退避配置
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff 计算退避时间
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	backoff := c.Initial
	for i := 0; i < retryCount; i++ {
		backoff = time.Duration(float64(backoff) * c.Multiplier)
		if backoff > c.Max {
			backoff = c.Max
			break
		}
	}
	return backoff
}
