package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

var _ generation.EventPublisher = (*Producer)(nil)

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(stream), "publish_error").Inc()
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(stream), "published").Inc()
	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishDraftEvent 实现 generation.EventPublisher
func (p *Producer) PublishDraftEvent(ctx context.Context, ev generation.DraftEvent) error {
	msg, err := NewMessage(uuid.NewString(), string(ev.Type), ev.CampaignID, ev)
	if err != nil {
		return err
	}

	msg.SetMetadata(string(logger.DraftIDKey), ev.DraftID)
	if v, ok := ctx.Value(logger.RequestIDKey).(string); ok && v != "" {
		msg.SetMetadata(string(logger.RequestIDKey), v)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata(string(logger.TraceIDKey), sc.TraceID().String())
	}

	_, err = p.Publish(ctx, StreamDraftEvents, msg)
	return err
}
