package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/metrics"
)

const (
	pendingScanSize     = 20
	dlqMonitorInterval  = time.Minute
	errRetriesExhausted = "message exceeded max retries"
)

// DeadLetter 死信流中的记录
type DeadLetter struct {
	OriginalStream string    `json:"original_stream"`
	Message        *Message  `json:"data"`
	Error          string    `json:"error"`
	Attempts       int       `json:"attempts"`
	FailedAt       time.Time `json:"failed_at"`
}

// retryOrBury 投递次数未达上限时保留在 PEL，否则写入死信流并确认
func (c *Consumer) retryOrBury(ctx context.Context, id string, msg *Message, cause error) {
	attempts := c.deliveries(ctx, id)
	if attempts < c.cfg.RetryLimit {
		logger.Info(ctx, "message left pending for retry",
			"message_id", msg.ID,
			"attempts", attempts,
			"next_in", c.cfg.Backoff.CalculateBackoff(attempts).String(),
		)
		return
	}
	logger.Warn(ctx, "message moved to dead letter stream", "message_id", msg.ID, "attempts", attempts)
	c.bury(ctx, msg, attempts, cause)
	c.ack(ctx, id)
}

// deliveries 通过 XPENDING 查询消息已投递的次数
func (c *Consumer) deliveries(ctx context.Context, id string) int {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.cfg.Stream),
		Group:  string(c.cfg.Group),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

func (c *Consumer) bury(ctx context.Context, msg *Message, attempts int, cause error) {
	entry, err := json.Marshal(DeadLetter{
		OriginalStream: string(c.cfg.Stream),
		Message:        msg,
		Error:          cause.Error(),
		Attempts:       attempts,
		FailedAt:       time.Now().UTC(),
	})
	if err != nil {
		logger.Error(ctx, "failed to encode dead letter", err, "message_id", msg.ID)
		return
	}
	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]interface{}{"data": string(entry)},
	}).Err(); err != nil {
		logger.Error(ctx, "failed to write dead letter", err, "message_id", msg.ID)
		return
	}
	c.record(outcomeDeadLetter)
}

func (c *Consumer) pendingEntries(ctx context.Context, consumer string) []redis.XPendingExt {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Start:    "-",
		End:      "+",
		Count:    pendingScanSize,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Error(ctx, "failed to query pending messages", err)
		}
		return nil
	}
	return pending
}

// retryDue 重新投递本消费者名下退避时间已到的消息
func (c *Consumer) retryDue(ctx context.Context) {
	for _, p := range c.pendingEntries(ctx, c.cfg.ConsumerName) {
		var wait time.Duration
		if int(p.RetryCount) < c.cfg.RetryLimit {
			wait = c.cfg.Backoff.CalculateBackoff(int(p.RetryCount))
			if p.Idle < wait {
				continue
			}
		}
		c.claim(ctx, p, wait)
	}
}

// reclaimStale 接管其他消费者长时间未确认的消息（例如已崩溃的 worker）
func (c *Consumer) reclaimStale(ctx context.Context) {
	for _, p := range c.pendingEntries(ctx, "") {
		if p.Consumer == c.cfg.ConsumerName || p.Idle < c.reclaimIdle {
			continue
		}
		c.claim(ctx, p, c.reclaimIdle)
	}
}

// claim 把消息转到当前消费者并重新处理；投递次数已耗尽的直接进死信流
func (c *Consumer) claim(ctx context.Context, p redis.XPendingExt, minIdle time.Duration) {
	claimed, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.cfg.Stream),
		Group:    string(c.cfg.Group),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  minIdle,
		Messages: []string{p.ID},
	}).Result()
	if err != nil {
		logger.Error(ctx, "failed to claim pending message", err, "message_id", p.ID)
		return
	}

	exhausted := int(p.RetryCount) >= c.cfg.RetryLimit
	for _, xmsg := range claimed {
		if !exhausted {
			c.process(ctx, xmsg)
			continue
		}
		if msg := decode(xmsg); msg != nil {
			c.bury(ctx, msg, int(p.RetryCount), errors.New(errRetriesExhausted))
		}
		c.ack(ctx, xmsg.ID)
	}
}

// DLQLength 返回死信流当前长度；流不存在时为 0
func (c *Consumer) DLQLength(ctx context.Context) (int64, error) {
	n, err := c.rdb.XLen(ctx, c.cfg.Stream.DLQStream()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read dead letter length: %w", err)
	}
	return n, nil
}

// MonitorDLQ 每分钟上报死信流长度，超过阈值时告警；阻塞直到 ctx 结束或消费者停止
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(dlqMonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.DLQLength(ctx)
			if err != nil {
				logger.Warn(ctx, "dead letter length unavailable", "error", err.Error())
				continue
			}
			metrics.RedisStreamDeadLetters.WithLabelValues(string(c.cfg.Stream)).Set(float64(n))
			if n > alertThreshold {
				logger.Warn(ctx, "dead letter stream above threshold",
					"stream", c.cfg.Stream.DLQStream(),
					"count", n,
					"threshold", alertThreshold,
				)
			}
		}
	}
}
