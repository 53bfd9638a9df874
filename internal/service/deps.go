package service

import (
	"context"
	"time"

	"HydroMed/internal/analytics"
	"HydroMed/internal/model"
)

// EventPublisher 领域事件投递，失败只影响缓存失效，不回滚业务写入
type EventPublisher interface {
	PublishNotificationMissed(ctx context.Context, msg model.NotificationMissedMessage) error
	PublishAdherenceLogged(ctx context.Context, msg model.AdherenceLoggedMessage) error
}

// Locker 分布式锁
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ReportCache 周报缓存，读写失败由实现自行降级
type ReportCache interface {
	Get(ctx context.Context, userID int64) (*analytics.ReportCard, bool)
	Set(ctx context.Context, userID int64, card *analytics.ReportCard)
	Invalidate(ctx context.Context, userID int64) error
}
