package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/repository"
	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/metrics"
)

// NotificationConfig 通知状态机参数
type NotificationConfig struct {
	DefaultInterval      time.Duration // 饮水提醒载荷未带间隔时的续链间隔
	MissedThreshold      time.Duration
	SnoozeAllowCompleted bool
}

// NotificationService 提醒记录状态机：scheduled -> completed / missed，snooze 回到 scheduled
type NotificationService struct {
	repo   repository.NotificationRepository
	events EventPublisher
	cfg    NotificationConfig
	now    func() time.Time
}

func NewNotificationService(repo repository.NotificationRepository, events EventPublisher, cfg NotificationConfig) *NotificationService {
	return &NotificationService{
		repo:   repo,
		events: events,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Create 新建 scheduled 记录
func (s *NotificationService) Create(ctx context.Context, userID int64, req dto.CreateNotificationRequest) (*model.Notification, error) {
	t := model.NotificationType(req.Type)
	if !req.Payload.MatchesType(t) {
		return nil, pkgerrors.NotificationPayloadType
	}

	n := &model.Notification{
		UserID:                userID,
		Type:                  t,
		Title:                 req.Title,
		Body:                  req.Body,
		ScheduledTime:         req.ScheduledTime,
		OriginalScheduledTime: req.ScheduledTime,
		Status:                model.NotificationStatusScheduled,
		Payload:               req.Payload,
	}
	if req.Payload.Medication != nil {
		medID := req.Payload.Medication.MedicationID
		n.MedicationID = &medID
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	logger.Logger.Info("Notification created",
		zap.Int64("user_id", userID),
		zap.Int64("notification_id", n.ID),
		zap.String("type", string(n.Type)),
		zap.Time("scheduled_time", n.ScheduledTime),
	)
	return n, nil
}

func (s *NotificationService) Get(ctx context.Context, userID, id int64) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, notFound(err, pkgerrors.NotificationNotFound)
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID int64, q dto.ListNotificationsQuery) ([]model.Notification, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	ns, err := s.repo.List(ctx, repository.NotificationFilter{
		UserID: userID,
		Status: model.NotificationStatus(q.Status),
		Type:   model.NotificationType(q.Type),
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	if ns == nil {
		ns = []model.Notification{}
	}
	return ns, nil
}

// Delete 用户主动删除，唯一的删除路径
func (s *NotificationService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return notFound(err, pkgerrors.NotificationNotFound)
	}
	return nil
}

// Snooze 推迟 minutes 分钟，任意状态都回到 scheduled
// 已完成的记录被推迟时记录 WARN，SnoozeAllowCompleted=false 时拒绝
func (s *NotificationService) Snooze(ctx context.Context, userID, id int64, minutes int) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, notFound(err, pkgerrors.NotificationNotFound)
	}

	from := n.Status
	if from == model.NotificationStatusCompleted {
		metrics.GetMetrics().RecordSnoozeOnCompleted(ctx, s.cfg.SnoozeAllowCompleted)
		if !s.cfg.SnoozeAllowCompleted {
			return nil, pkgerrors.NotificationSnoozeBlocked
		}
		logger.Logger.Warn("Snoozing a completed notification reverts it to scheduled",
			zap.Int64("user_id", userID),
			zap.Int64("notification_id", id),
		)
	}

	now := s.now()
	n, err = s.repo.UpdateIfStatus(ctx, userID, id, from, map[string]interface{}{
		"scheduled_time":  now.Add(time.Duration(minutes) * time.Minute),
		"status":          model.NotificationStatusScheduled,
		"completed_at":    nil,
		"missed_at":       nil,
		"snooze_count":    n.SnoozeCount + 1,
		"last_snoozed_at": now,
		"updated_at":      now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return nil, pkgerrors.NotificationTransition
		}
		return nil, fmt.Errorf("failed to snooze notification: %w", err)
	}
	metrics.GetMetrics().RecordTransition(ctx, string(n.Type), string(from), string(n.Status))
	return n, nil
}

// Complete 标记完成；饮水提醒同时在 now+interval 续一条新的 scheduled 记录
// 重复完成不会再续链
func (s *NotificationService) Complete(ctx context.Context, userID, id int64) (*dto.CompleteResponse, error) {
	now := s.now()
	record, next, changed, err := s.repo.Complete(ctx, userID, id, now, s.chainNext(now))
	if err != nil {
		return nil, notFound(err, pkgerrors.NotificationNotFound)
	}

	if changed {
		metrics.GetMetrics().RecordTransition(ctx, string(record.Type), "", string(model.NotificationStatusCompleted))
		fields := []zap.Field{
			zap.Int64("user_id", userID),
			zap.Int64("notification_id", id),
		}
		if next != nil {
			fields = append(fields, zap.Int64("next_id", next.ID), zap.Time("next_time", next.ScheduledTime))
		}
		logger.Logger.Info("Notification completed", fields...)
	}

	return &dto.CompleteResponse{Notification: record, Next: next}, nil
}

func (s *NotificationService) chainNext(now time.Time) repository.ChainFunc {
	return func(done model.Notification) *model.Notification {
		if done.Type != model.NotificationTypeHydration {
			return nil
		}

		interval := s.cfg.DefaultInterval
		if p := done.Payload.Hydration; p != nil && p.IntervalMinutes > 0 {
			interval = time.Duration(p.IntervalMinutes) * time.Minute
		}

		at := now.Add(interval)
		return &model.Notification{
			UserID:                done.UserID,
			Type:                  done.Type,
			Title:                 done.Title,
			Body:                  done.Body,
			ScheduledTime:         at,
			OriginalScheduledTime: at,
			Status:                model.NotificationStatusScheduled,
			Payload:               done.Payload,
		}
	}
}

// Update PUT 更新：scheduled_time 覆盖写入，status 只能前进
// scheduled -> missed 直接迁移，任意状态 -> completed 走 Complete；回到 scheduled 只能通过 Snooze
// 写入按读取时的状态做条件更新，期间状态被并发修改时返回 409
func (s *NotificationService) Update(ctx context.Context, userID, id int64, req dto.UpdateNotificationRequest) (*model.Notification, error) {
	n, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, notFound(err, pkgerrors.NotificationNotFound)
	}

	from := n.Status
	to := from
	if req.Status != nil {
		to = model.NotificationStatus(*req.Status)
	}
	if !canTransition(from, to) {
		logger.Logger.Info("Rejected notification transition",
			zap.Int64("user_id", userID),
			zap.Int64("notification_id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return nil, pkgerrors.NotificationTransition
	}

	now := s.now()
	fields := make(map[string]interface{})
	if req.ScheduledTime != nil {
		fields["scheduled_time"] = *req.ScheduledTime
	}
	if to == model.NotificationStatusMissed && from != to {
		fields["status"] = model.NotificationStatusMissed
		fields["missed_at"] = now
	}

	if len(fields) > 0 {
		fields["updated_at"] = now
		n, err = s.repo.UpdateIfStatus(ctx, userID, id, from, fields)
		if err != nil {
			if errors.Is(err, repository.ErrStaleStatus) {
				return nil, pkgerrors.NotificationTransition
			}
			return nil, fmt.Errorf("failed to update notification: %w", err)
		}
	}

	if to == model.NotificationStatusCompleted {
		res, err := s.Complete(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		return res.Notification, nil
	}

	if from != n.Status {
		metrics.GetMetrics().RecordTransition(ctx, string(n.Type), string(from), string(n.Status))
	}
	return n, nil
}

// canTransition 状态相同视为不迁移
func canTransition(from, to model.NotificationStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case model.NotificationStatusCompleted:
		return true
	case model.NotificationStatusMissed:
		return from == model.NotificationStatusScheduled
	default:
		return false
	}
}

// Sweep 将超过阈值仍未处理的 scheduled 记录置为 missed
// userID 为 0 时扫描全部用户；threshold<=0 时使用默认阈值
func (s *NotificationService) Sweep(ctx context.Context, userID int64, threshold time.Duration) ([]int64, error) {
	if threshold <= 0 {
		threshold = s.cfg.MissedThreshold
	}

	start := time.Now()
	now := s.now()
	rows, err := s.repo.MarkMissedBefore(ctx, userID, now.Add(-threshold), now)
	if err != nil {
		return nil, fmt.Errorf("failed to sweep missed notifications: %w", err)
	}
	metrics.GetMetrics().RecordSweep(ctx, len(rows), time.Since(start).Seconds())

	ids := make([]int64, 0, len(rows))
	byUser := make(map[int64][]int64)
	for _, n := range rows {
		ids = append(ids, n.ID)
		byUser[n.UserID] = append(byUser[n.UserID], n.ID)
	}

	for uid, nids := range byUser {
		msg := model.NotificationMissedMessage{
			UserID:          uid,
			NotificationIDs: nids,
			MissedAt:        now,
		}
		if err := s.events.PublishNotificationMissed(ctx, msg); err != nil {
			logger.Logger.Warn("Failed to publish notification.missed",
				zap.Int64("user_id", uid),
				zap.Int("count", len(nids)),
				zap.Error(err),
			)
		}
	}

	if len(ids) > 0 {
		logger.Logger.Info("Missed sweep finished",
			zap.Int64("user_id", userID),
			zap.Duration("threshold", threshold),
			zap.Int("missed", len(ids)),
		)
	}
	return ids, nil
}

// notFound 把仓储层的 ErrNotFound 转为业务错误
func notFound(err error, def pkgerrors.Definition) error {
	if errors.Is(err, repository.ErrNotFound) {
		return def
	}
	return err
}
