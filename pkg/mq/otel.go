package mq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hydromed.rabbitmq"

var (
	mqMessagesTotal   metric.Int64Counter
	mqMessageDuration metric.Float64Histogram
)

// InitMQMetrics 初始化 RabbitMQ 指标
func InitMQMetrics(meter metric.Meter) error {
	var err error

	mqMessagesTotal, err = meter.Int64Counter(
		"mq.messages.total",
		metric.WithDescription("Total number of RabbitMQ messages"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	mqMessageDuration, err = meter.Float64Histogram(
		"mq.message.duration",
		metric.WithDescription("RabbitMQ publish and handle duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	return err
}

// HeaderCarrier 让追踪上下文随消息头传播
type HeaderCarrier struct {
	Headers amqp.Table
}

func (c HeaderCarrier) Get(key string) string {
	if v, ok := c.Headers[key].(string); ok {
		return v
	}
	return ""
}

func (c HeaderCarrier) Set(key, value string) {
	c.Headers[key] = value
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Headers))
	for k := range c.Headers {
		keys = append(keys, k)
	}
	return keys
}

// StartPublishSpan 开始发布 span，并把上下文注入 headers
func StartPublishSpan(ctx context.Context, exchange, routingKey string, headers amqp.Table) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rabbitmq.publish "+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingDestinationName(exchange),
			semconv.MessagingRabbitmqDestinationRoutingKey(routingKey),
		),
	)
	otel.GetTextMapPropagator().Inject(ctx, HeaderCarrier{Headers: headers})
	return ctx, span
}

// StartConsumeSpan 从消息头恢复上下文并开始处理 span
func StartConsumeSpan(queue string, msg amqp.Delivery) (context.Context, trace.Span) {
	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), HeaderCarrier{Headers: headers})
	return otel.Tracer(tracerName).Start(ctx, "rabbitmq.process "+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			semconv.MessagingRabbitmqDestinationRoutingKey(msg.RoutingKey),
			semconv.MessagingMessageID(msg.MessageId),
			attribute.String("messaging.rabbitmq.queue", queue),
		),
	)
}

// EndSpan 记录结果与耗时并结束 span，operation 为 publish 或 consume
func EndSpan(ctx context.Context, span trace.Span, operation, routingKey string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()

	if mqMessagesTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("messaging.operation", operation),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
		attribute.String("messaging.status", status),
	)
	mqMessagesTotal.Add(ctx, 1, attrs)
	mqMessageDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
