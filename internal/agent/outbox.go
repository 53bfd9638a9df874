package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"HydroMed/pkg/logger"
	"HydroMed/pkg/metrics"
)

const drainBatch = 50

// OutboxStore outbox 的持久化
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, item OutboxItem) error
	DueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxItem, error)
	DeleteOutbox(ctx context.Context, id string) error
	RescheduleOutbox(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	CountOutbox(ctx context.Context) (int, error)
}

// DrainResult 一次重放的结果
type DrainResult struct {
	Sent    int
	Dropped int
	Retried int
}

// Outbox 失败的同步请求落盘，按指数退避重放
type Outbox struct {
	store       OutboxStore
	sender      Sender
	initial     time.Duration
	maxInterval time.Duration
	maxAttempts int
	now         func() time.Time
	logger      *zap.Logger
}

func NewOutbox(store OutboxStore, sender Sender, cfg OutboxConfig) *Outbox {
	initial := time.Duration(cfg.InitialInterval) * time.Second
	if initial <= 0 {
		initial = 5 * time.Second
	}
	maxInterval := time.Duration(cfg.MaxInterval) * time.Second
	if maxInterval < initial {
		maxInterval = initial
	}
	return &Outbox{
		store:       store,
		sender:      sender,
		initial:     initial,
		maxInterval: maxInterval,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
		logger:      logger.Logger,
	}
}

// Enqueue 立即可重放
func (o *Outbox) Enqueue(ctx context.Context, method, path string, body []byte, cause error) error {
	now := o.now()
	item := OutboxItem{
		ID:            uuid.NewString(),
		Method:        method,
		Path:          path,
		Body:          body,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if cause != nil {
		item.LastError = cause.Error()
	}
	if err := o.store.EnqueueOutbox(ctx, item); err != nil {
		return err
	}
	metrics.GetMetrics().AddOutboxPending(ctx, 1)
	o.logger.Info("Sync request queued in outbox",
		zap.String("id", item.ID),
		zap.String("method", method),
		zap.String("path", path),
	)
	return nil
}

// Drain 重放所有到期条目；成功或永久失败的删除，其余按退避时间重排
func (o *Outbox) Drain(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	items, err := o.store.DueOutbox(ctx, o.now(), drainBatch)
	if err != nil {
		return res, err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		_, sendErr := o.sender.Send(ctx, item.Method, item.Path, item.Body)
		switch {
		case sendErr == nil:
			if err := o.remove(ctx, item.ID); err != nil {
				return res, err
			}
			res.Sent++

		case IsPermanent(sendErr) || (o.maxAttempts > 0 && item.Attempts+1 >= o.maxAttempts):
			o.logger.Warn("Dropping outbox item",
				zap.String("id", item.ID),
				zap.String("path", item.Path),
				zap.Int("attempts", item.Attempts+1),
				zap.Error(sendErr),
			)
			if err := o.remove(ctx, item.ID); err != nil {
				return res, err
			}
			res.Dropped++

		default:
			attempts := item.Attempts + 1
			next := o.now().Add(o.delay(attempts))
			if err := o.store.RescheduleOutbox(ctx, item.ID, attempts, next, sendErr.Error()); err != nil {
				return res, err
			}
			res.Retried++
		}
	}

	if res.Sent+res.Dropped+res.Retried > 0 {
		o.logger.Info("Outbox drained",
			zap.Int("sent", res.Sent),
			zap.Int("dropped", res.Dropped),
			zap.Int("retried", res.Retried),
		)
	}
	return res, nil
}

// Run 周期性重放，直到 ctx 取消
func (o *Outbox) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Drain(ctx); err != nil && ctx.Err() == nil {
				o.logger.Warn("Failed to drain outbox", zap.Error(err))
			}
		}
	}
}

func (o *Outbox) remove(ctx context.Context, id string) error {
	if err := o.store.DeleteOutbox(ctx, id); err != nil {
		return fmt.Errorf("failed to remove outbox item %s: %w", id, err)
	}
	metrics.GetMetrics().AddOutboxPending(ctx, -1)
	return nil
}

// delay 第 attempts 次失败后的等待时间，不加随机抖动
func (o *Outbox) delay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     o.initial,
		RandomizationFactor: 0,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         o.maxInterval,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}
