package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 业务指标集合
type OTelMetrics struct {
	// 通知状态机
	NotificationTransitions metric.Int64Counter
	SnoozeOnCompleted       metric.Int64Counter
	SweepMissedTotal        metric.Int64Counter
	SweepDuration           metric.Float64Histogram

	// 服药记录
	AdherenceOutcomes metric.Int64Counter

	// 客户端提醒
	ReminderFires     metric.Int64Counter
	ReminderThrottled metric.Int64Counter
	OutboxPending     metric.Int64UpDownCounter

	// 周报缓存
	ReportCacheHits metric.Int64Counter
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("hydromed")
)

// InitMetrics 初始化业务指标，未调用时所有 Record 方法为空操作
func InitMetrics() error {
	var err error
	m := &OTelMetrics{}

	if m.NotificationTransitions, err = meter.Int64Counter(
		"notification_transitions_total",
		metric.WithDescription("Notification status transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return err
	}

	if m.SnoozeOnCompleted, err = meter.Int64Counter(
		"notification_snooze_on_completed_total",
		metric.WithDescription("Snooze requests that reverted a completed notification"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if m.SweepMissedTotal, err = meter.Int64Counter(
		"notification_sweep_missed_total",
		metric.WithDescription("Notifications marked missed by the sweep"),
		metric.WithUnit("{notification}"),
	); err != nil {
		return err
	}

	if m.SweepDuration, err = meter.Float64Histogram(
		"notification_sweep_duration_seconds",
		metric.WithDescription("Missed sweep duration"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if m.AdherenceOutcomes, err = meter.Int64Counter(
		"adherence_outcomes_total",
		metric.WithDescription("Adherence log outcomes"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if m.ReminderFires, err = meter.Int64Counter(
		"reminder_fires_total",
		metric.WithDescription("Client reminder timer fires"),
		metric.WithUnit("{fire}"),
	); err != nil {
		return err
	}

	if m.ReminderThrottled, err = meter.Int64Counter(
		"reminder_throttled_total",
		metric.WithDescription("Reminder show requests dropped by the throttle"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if m.OutboxPending, err = meter.Int64UpDownCounter(
		"outbox_pending",
		metric.WithDescription("Sync requests waiting in the outbox"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if m.ReportCacheHits, err = meter.Int64Counter(
		"report_cache_lookups_total",
		metric.WithDescription("Report card cache lookups"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，可能为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordTransition 记录一次通知状态变化
func (m *OTelMetrics) RecordTransition(ctx context.Context, notificationType, from, to string) {
	if m == nil {
		return
	}
	m.NotificationTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", notificationType),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordSnoozeOnCompleted 已完成的提醒被推迟
func (m *OTelMetrics) RecordSnoozeOnCompleted(ctx context.Context, allowed bool) {
	if m == nil {
		return
	}
	m.SnoozeOnCompleted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
}

// RecordSweep 记录一次扫描
func (m *OTelMetrics) RecordSweep(ctx context.Context, missed int, seconds float64) {
	if m == nil {
		return
	}
	m.SweepMissedTotal.Add(ctx, int64(missed))
	m.SweepDuration.Record(ctx, seconds)
}

// RecordAdherence outcome: created, upgraded, duplicate, downgrade
func (m *OTelMetrics) RecordAdherence(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.AdherenceOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReminderFire 记录提醒触发
func (m *OTelMetrics) RecordReminderFire(ctx context.Context, kind string, reconciled bool) {
	if m == nil {
		return
	}
	m.ReminderFires.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("reconciled", reconciled),
	))
}

// RecordThrottled 记录被节流丢弃的展示请求
func (m *OTelMetrics) RecordThrottled(ctx context.Context, category string) {
	if m == nil {
		return
	}
	m.ReminderThrottled.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

// AddOutboxPending 出站队列长度变化
func (m *OTelMetrics) AddOutboxPending(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Add(ctx, delta)
}

// RecordReportCache 周报缓存命中情况
func (m *OTelMetrics) RecordReportCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.ReportCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}
