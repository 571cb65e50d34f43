package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

const (
	defaultBlockTimeout  = 5 * time.Second
	defaultClaimInterval = 30 * time.Second
	defaultRetryLimit    = 3
	defaultConsumerName  = "draft-worker"
	minReclaimIdle       = 5 * time.Minute
	readBatchSize        = 10
	readErrorPause       = time.Second
)

// MessageHandler 处理单条消息；返回错误时消息留在 PEL 等待重试
type MessageHandler func(ctx context.Context, msg *Message) error

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = defaultClaimInterval
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = defaultRetryLimit
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = defaultConsumerName
	}
	return cfg
}

// outcome 单条消息的处理结果，同时作为指标的 status 标签
type outcome string

const (
	outcomeSuccess    outcome = "success"
	outcomeSkipped    outcome = "skipped"
	outcomeFailed     outcome = "failed"
	outcomeMalformed  outcome = "malformed"
	outcomeDeadLetter outcome = "dead_letter"
)

// Consumer 草稿事件流消费者。
// 失败的消息不确认，留在 PEL 中按退避重试；投递次数达到 RetryLimit 后写入死信流。
type Consumer struct {
	rdb         *redis.Client
	cfg         ConsumerConfig
	reclaimIdle time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	running  bool
	stopCh   chan struct{}
	done     chan struct{}
}

// NewConsumer 创建消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	reclaimIdle := 2 * cfg.Backoff.Max
	if reclaimIdle < minReclaimIdle {
		reclaimIdle = minReclaimIdle
	}
	return &Consumer{
		rdb:         client,
		cfg:         cfg,
		reclaimIdle: reclaimIdle,
		handlers:    make(map[string]MessageHandler),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// RegisterHandler 为消息类型注册处理器，重复注册时覆盖
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

func (c *Consumer) handlerFor(msgType string) (MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[msgType]
	return h, ok
}

// Start 确保消费者组存在并在后台启动消费循环
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	err := c.rdb.XGroupCreateMkStream(ctx, string(c.cfg.Stream), string(c.cfg.Group), "0").Err()
	if err != nil && !isBusyGroup(err) {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费循环并等待正在处理的消息结束
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()
	<-c.done
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.done)

	logger.Info(ctx, "draft event consumer started",
		"stream", string(c.cfg.Stream),
		"group", string(c.cfg.Group),
		"consumer", c.cfg.ConsumerName,
	)

	claimTicker := time.NewTicker(c.cfg.ClaimInterval)
	defer claimTicker.Stop()
	c.reclaimStale(ctx)

	for !c.stopped(ctx) {
		c.retryDue(ctx)

		select {
		case <-claimTicker.C:
			c.reclaimStale(ctx)
		default:
		}

		if err := c.readBatch(ctx); err != nil {
			logger.Error(ctx, "failed to read from stream", err, "stream", string(c.cfg.Stream))
			c.pause(ctx, readErrorPause)
		}
	}
	logger.Info(ctx, "draft event consumer stopped")
}

func (c *Consumer) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func (c *Consumer) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-c.stopCh:
	case <-timer.C:
	}
}

func (c *Consumer) readBatch(ctx context.Context) error {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    string(c.cfg.Group),
		Consumer: c.cfg.ConsumerName,
		Streams:  []string{string(c.cfg.Stream), ">"},
		Count:    readBatchSize,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil
		}
		return err
	}

	for _, s := range streams {
		for _, xmsg := range s.Messages {
			c.process(ctx, xmsg)
		}
	}
	return nil
}

// decode 解析流消息；格式错误时返回 nil
func decode(xmsg redis.XMessage) *Message {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil
	}
	return &msg
}

// messageContext 把战役 ID 与随消息传递的元数据还原到日志上下文
func messageContext(ctx context.Context, msg *Message) context.Context {
	if msg.CampaignID != "" {
		ctx = logger.WithContext(ctx, logger.CampaignIDKey, msg.CampaignID)
	}
	for _, key := range propagatedKeys {
		if v := msg.GetMetadata(string(key)); v != "" {
			ctx = logger.WithContext(ctx, key, v)
		}
	}
	return ctx
}

func (c *Consumer) record(result outcome) {
	metrics.RedisStreamProcessed.WithLabelValues(string(c.cfg.Stream), string(result)).Inc()
}

func (c *Consumer) process(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.process",
		trace.WithAttributes(
			attribute.String("stream", string(c.cfg.Stream)),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg := decode(xmsg)
	if msg == nil {
		logger.Warn(ctx, "dropping malformed stream entry", "message_id", xmsg.ID)
		c.record(outcomeMalformed)
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx = messageContext(ctx, msg)
	span.SetAttributes(
		attribute.String("message.id", msg.ID),
		attribute.String("message.type", msg.Type),
		attribute.String("campaign.id", msg.CampaignID),
	)

	result, err := c.dispatch(ctx, msg)
	c.record(result)
	if result == outcomeFailed {
		span.RecordError(err)
		logger.Error(ctx, "draft event handler failed", err, "message_id", msg.ID, "type", msg.Type)
		c.retryOrBury(ctx, xmsg.ID, msg, err)
		return
	}
	c.ack(ctx, xmsg.ID)
}

// dispatch 按消息类型调用处理器；未注册的类型直接跳过
func (c *Consumer) dispatch(ctx context.Context, msg *Message) (outcome, error) {
	h, ok := c.handlerFor(msg.Type)
	if !ok {
		logger.Debug(ctx, "no handler for message type", "type", msg.Type)
		return outcomeSkipped, nil
	}
	if err := h(ctx, msg); err != nil {
		return outcomeFailed, err
	}
	return outcomeSuccess, nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, string(c.cfg.Stream), string(c.cfg.Group), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack message", err, "message_id", id)
	}
}
