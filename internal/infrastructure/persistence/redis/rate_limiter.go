package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// slidingWindowScript 原子完成：清理窗口外记录、计数、按需追加
// KEYS[1]=key ARGV: now_ms window_ms limit n member_prefix
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count + n > limit then
  return {0, count}
end
for i = 1, n do
  redis.call('ZADD', key, now, ARGV[5] .. ':' .. i)
end
redis.call('PEXPIRE', key, window * 2)
return {1, count + n}
`)

// RateLimiter 滑动窗口限流器
type RateLimiter struct {
	client *Client
	now    func() time.Time
}

// NewRateLimiter 创建限流器
func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow 检查是否允许请求（滑动窗口算法）
func (l *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.AllowN(ctx, key, limit, 1, window)
}

// AllowN 检查是否允许 N 个请求；拒绝时不记录
func (l *RateLimiter) AllowN(ctx context.Context, key string, limit, n int, window time.Duration) (bool, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.AllowN")
	span.SetAttributes(
		attribute.String("ratelimit.key", key),
		attribute.Int("ratelimit.limit", limit),
		attribute.Int("ratelimit.n", n),
		attribute.Int64("ratelimit.window_ms", window.Milliseconds()),
	)
	defer span.End()

	if n <= 0 {
		return true, nil
	}

	res, err := slidingWindowScript.Run(ctx, l.client.rdb, []string{key},
		l.now().UnixMilli(), window.Milliseconds(), limit, n, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	allowed := len(res) > 0 && res[0] == 1
	if len(res) > 1 {
		span.SetAttributes(attribute.Int64("ratelimit.current_count", res[1]))
	}
	span.SetAttributes(attribute.Bool("ratelimit.allowed", allowed))
	return allowed, nil
}

// Remaining 获取剩余配额
func (l *RateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, span := tracer.Start(ctx, "ratelimit.Remaining")
	span.SetAttributes(attribute.String("ratelimit.key", key))
	defer span.End()

	windowStart := l.now().UnixMilli() - window.Milliseconds()

	pipe := l.client.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return 0, err
	}

	remaining := limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}

	span.SetAttributes(attribute.Int("ratelimit.remaining", remaining))
	return remaining, nil
}

// BuildCampaignRateLimitKey 构建战役维度限流键
func BuildCampaignRateLimitKey(campaignID, endpoint string) string {
	return fmt.Sprintf("ratelimit:campaign:%s:%s", campaignID, endpoint)
}

// BuildClientRateLimitKey 构建客户端（IP）维度限流键
func BuildClientRateLimitKey(clientIP, endpoint string) string {
	return fmt.Sprintf("ratelimit:client:%s:%s", clientIP, endpoint)
}
