package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HydroMed/config"
	"HydroMed/pkg/logger"
)

const (
	// EventsExchange 所有领域事件走同一个 topic exchange，routing key 即事件类型
	EventsExchange = "hydromed.events"

	// AnalyticsInvalidateQueue 周报缓存失效队列，订阅 notification.* 与 adherence.*
	AnalyticsInvalidateQueue = "hydromed.analytics.invalidate"
)

var (
	conn     *amqp.Connection
	connMu   sync.RWMutex
	bindings = []string{"notification.*", "adherence.*"}
)

// Init 建立连接并声明 exchange、队列与绑定
func Init() error {
	c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	if err := declareTopology(c); err != nil {
		_ = c.Close()
		return err
	}

	connMu.Lock()
	conn = c
	connMu.Unlock()

	logger.Logger.Info("RabbitMQ initialized",
		zap.String("exchange", EventsExchange),
		zap.String("queue", AnalyticsInvalidateQueue),
	)
	return nil
}

func declareTopology(c *amqp.Connection) error {
	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(AnalyticsInvalidateQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range bindings {
		if err := ch.QueueBind(AnalyticsInvalidateQueue, key, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Connection 返回当前连接，未初始化时为 nil
func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	connMu.Lock()
	c := conn
	conn = nil
	connMu.Unlock()

	if c == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Close()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
