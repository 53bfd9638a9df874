package queue

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"HydroMed/internal/model"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/snowflake"
	"HydroMed/storage/mq"
)

// PublishFunc 投递到 exchange，测试中可替换
type PublishFunc func(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error

// Producer 领域事件发布，实现 service.EventPublisher
type Producer struct {
	publish PublishFunc
	nextID  func() (int64, error)
}

func NewProducer() *Producer {
	return &Producer{publish: mq.PublishMessage, nextID: snowflake.NextID}
}

// NewProducerWith 使用自定义投递函数
func NewProducerWith(publish PublishFunc, nextID func() (int64, error)) *Producer {
	return &Producer{publish: publish, nextID: nextID}
}

// PublishNotificationMissed 发布 notification.missed
func (p *Producer) PublishNotificationMissed(ctx context.Context, msg model.NotificationMissedMessage) error {
	if msg.MessageID == "" {
		id, err := p.messageID("missed")
		if err != nil {
			return err
		}
		msg.MessageID = id
	}

	if err := p.publish(ctx, mq.EventsExchange, model.EventNotificationMissed, msg.MessageID, msg); err != nil {
		logger.Logger.Error("Failed to publish notification missed event",
			zap.Int64("user_id", msg.UserID),
			zap.Int("count", len(msg.NotificationIDs)),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published notification missed event",
		zap.String("message_id", msg.MessageID),
		zap.Int64("user_id", msg.UserID),
		zap.Int("count", len(msg.NotificationIDs)),
	)
	return nil
}

// PublishAdherenceLogged 发布 adherence.logged
func (p *Producer) PublishAdherenceLogged(ctx context.Context, msg model.AdherenceLoggedMessage) error {
	if msg.MessageID == "" {
		id, err := p.messageID("adherence")
		if err != nil {
			return err
		}
		msg.MessageID = id
	}

	if err := p.publish(ctx, mq.EventsExchange, model.EventAdherenceLogged, msg.MessageID, msg); err != nil {
		logger.Logger.Error("Failed to publish adherence logged event",
			zap.Int64("user_id", msg.UserID),
			zap.Int64("entry_id", msg.EntryID),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published adherence logged event",
		zap.String("message_id", msg.MessageID),
		zap.Int64("user_id", msg.UserID),
		zap.String("outcome", msg.Outcome),
	)
	return nil
}

func (p *Producer) messageID(prefix string) (string, error) {
	id, err := p.nextID()
	if err != nil {
		logger.Logger.Error("Failed to generate message ID", zap.String("prefix", prefix), zap.Error(err))
		return "", fmt.Errorf("failed to generate message ID: %w", err)
	}
	return fmt.Sprintf("%s_%d", prefix, id), nil
}
