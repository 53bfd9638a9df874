package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"HydroMed/internal/model"
	"HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/storage/mq"
)

// ReportInvalidator 周报缓存失效
type ReportInvalidator interface {
	InvalidateReport(ctx context.Context, userID int64) error
}

// MessageMarker 消费幂等标记
type MessageMarker interface {
	TryMarkProcessing(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
	Unmark(ctx context.Context, messageID string) error
	MarkProcessed(ctx context.Context, messageID string, ttl time.Duration) error
}

// Consumer 处理 events.topic 上的领域事件
type Consumer struct {
	reports ReportInvalidator
	marker  MessageMarker
}

func NewConsumer(reports ReportInvalidator, marker MessageMarker) *Consumer {
	return &Consumer{reports: reports, marker: marker}
}

// envelope 两类事件共有的字段
type envelope struct {
	MessageID string `json:"message_id"`
	UserID    int64  `json:"user_id"`
}

// HandleEvent 解析事件并使该用户的周报缓存失效
func (c *Consumer) HandleEvent(ctx context.Context, routingKey string, body []byte) error {
	var env envelope
	switch routingKey {
	case model.EventNotificationMissed, model.EventAdherenceLogged:
		if err := json.Unmarshal(body, &env); err != nil {
			return &errors.SkipMessageError{Reason: fmt.Sprintf("malformed %s payload: %v", routingKey, err)}
		}
	default:
		return &errors.SkipMessageError{Reason: "unknown routing key " + routingKey}
	}

	if env.MessageID != "" {
		ok, err := c.marker.TryMarkProcessing(ctx, env.MessageID, 24*time.Hour)
		if err != nil {
			// Redis 不可用时继续处理，失效操作本身是幂等的
			logger.Logger.Warn("Failed to check message processed status",
				zap.String("message_id", env.MessageID),
				zap.Error(err),
			)
		} else if !ok {
			logger.Logger.Info("Message already processed or being processed, skipping",
				zap.String("message_id", env.MessageID),
				zap.String("routing_key", routingKey),
			)
			return &errors.SkipMessageError{Reason: fmt.Sprintf("Message %s already processed", env.MessageID)}
		}
	}

	if err := c.reports.InvalidateReport(ctx, env.UserID); err != nil {
		if env.MessageID != "" {
			_ = c.marker.Unmark(ctx, env.MessageID)
		}
		return err
	}

	if env.MessageID != "" {
		if err := c.marker.MarkProcessed(ctx, env.MessageID, 48*time.Hour); err != nil {
			logger.Logger.Warn("Failed to mark message as processed",
				zap.String("message_id", env.MessageID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// StartAnalyticsInvalidateConsumer 消费 hydromed.analytics.invalidate 队列
func (c *Consumer) StartAnalyticsInvalidateConsumer(ctx context.Context) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.AnalyticsInvalidateQueue,
		ConsumerTag:   "analytics_invalidate_consumer",
		PrefetchCount: 20,
		Handler:       c.HandleEvent,
	})
}

// StartAllConsumers 启动所有消费者，阻塞直到全部退出
func StartAllConsumers(ctx context.Context, c *Consumer) {
	var wg sync.WaitGroup

	consumers := []struct {
		name     string
		consumer func(context.Context) error
	}{
		{"analytics_invalidate", c.StartAnalyticsInvalidateConsumer},
	}

	for _, cs := range consumers {
		wg.Add(1)
		go func(name string, consumer func(context.Context) error) {
			defer wg.Done()

			logger.Logger.Info("Starting consumer", zap.String("consumer_name", name))

			if err := consumer(ctx); err != nil {
				logger.Logger.Error("Consumer exited with error",
					zap.String("consumer_name", name),
					zap.Error(err),
				)
			}
		}(cs.name, cs.consumer)
	}

	wg.Wait()

	logger.Logger.Info("All consumers stopped")
}
