package mq

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	mqotel "HydroMed/pkg/mq"
)

// MessageHandler 返回 nil 或 SkipMessageError 时 ack，否则 nack 并重新入队
type MessageHandler func(ctx context.Context, routingKey string, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed for queue %s", opts.Queue)
			}

			start := time.Now()
			msgCtx, span := mqotel.StartConsumeSpan(opts.Queue, msg)
			err := opts.Handler(msgCtx, msg.RoutingKey, msg.Body)
			mqotel.EndSpan(msgCtx, span, "consume", msg.RoutingKey, start, err)

			if pkgerrors.IsSkip(err) {
				logger.Logger.Info("Message skipped",
					zap.String("queue", opts.Queue),
					zap.String("routing_key", msg.RoutingKey),
					zap.Error(err),
				)
				_ = msg.Ack(false)
				continue
			}
			if err != nil {
				logger.Logger.Error("Failed to process message",
					zap.String("queue", opts.Queue),
					zap.String("routing_key", msg.RoutingKey),
					zap.String("message_id", msg.MessageId),
					zap.Error(err),
				)
				_ = msg.Nack(false, true)
				continue
			}

			_ = msg.Ack(false)
		}
	}
}
