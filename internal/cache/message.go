package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"HydroMed/storage/redis"
)

const (
	messageProcessedPrefix = "message:processed"
	processedTTL           = 48 * time.Hour
)

// MessageMarker 消费者幂等标记
type MessageMarker struct {
	client goredis.Cmdable
}

func NewMessageMarker(client goredis.Cmdable) *MessageMarker {
	return &MessageMarker{client: client}
}

// TryMarkProcessing 原子性地标记消息正在处理，false 表示重复消息或正在处理
func (m *MessageMarker) TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = processedTTL
	}
	ok, err := m.client.SetNX(ctx, redis.Key(messageProcessedPrefix, messageID), "processing", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processing: %w", err)
	}
	return ok, nil
}

// Unmark 处理失败时清除标记，允许重新投递后重试
func (m *MessageMarker) Unmark(ctx context.Context, messageID string) error {
	return m.client.Del(ctx, redis.Key(messageProcessedPrefix, messageID)).Err()
}

// MarkProcessed 处理成功，延长 TTL
func (m *MessageMarker) MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = processedTTL
	}
	return m.client.Set(ctx, redis.Key(messageProcessedPrefix, messageID), "completed", ttl).Err()
}
