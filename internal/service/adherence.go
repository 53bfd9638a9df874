package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/repository"
	pkgerrors "HydroMed/pkg/errors"
	"HydroMed/pkg/logger"
	"HydroMed/pkg/metrics"
)

const (
	OutcomeCreated  = "created"
	OutcomeUpgraded = "upgraded"
)

var errLockBusy = errors.New("adherence lock busy")

// AdherenceConflictError 409，Existing 为窗口内已存在的记录
type AdherenceConflictError struct {
	Def      pkgerrors.Definition
	Existing *model.MedicationHistoryEntry
}

func (e *AdherenceConflictError) Error() string {
	return e.Def.Message
}

func (e *AdherenceConflictError) Unwrap() error {
	return e.Def
}

// AdherenceConfig 去重窗口与锁参数
type AdherenceConfig struct {
	Window      time.Duration // 同一药品在 T±Window 内至多一条记录
	LockTTL     time.Duration
	LockTimeout time.Duration // 等待 Redis 锁的最长时间
}

// AdherenceService 服药记录的唯一写入路径
type AdherenceService struct {
	repo   repository.MedicationRepository
	locker Locker
	events EventPublisher
	cfg    AdherenceConfig
	now    func() time.Time
}

func NewAdherenceService(repo repository.MedicationRepository, locker Locker, events EventPublisher, cfg AdherenceConfig) *AdherenceService {
	if cfg.Window <= 0 {
		cfg.Window = 2 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 2 * time.Second
	}
	return &AdherenceService{
		repo:   repo,
		locker: locker,
		events: events,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Record 在 [T-window, T+window] 内去重：
// 无记录 -> created；相同状态 -> 409；skipped -> completed 原地升级；completed -> skipped 409
func (s *AdherenceService) Record(ctx context.Context, userID, medicationID int64, req dto.LogAdherenceRequest) (*dto.AdherenceResult, error) {
	status := model.AdherenceStatus(req.Status)
	at := s.now()
	if req.Time != nil {
		at = *req.Time
	}

	lockKey := "adherence:" + strconv.FormatInt(medicationID, 10)
	locked, err := s.acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	if locked {
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				logger.Logger.Warn("Failed to release adherence lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()
	}

	var result *dto.AdherenceResult
	err = s.repo.WithAdherenceLock(ctx, userID, medicationID, func(tx repository.AdherenceTx) error {
		existing, err := tx.FindInWindow(medicationID, at.Add(-s.cfg.Window), at.Add(s.cfg.Window), at)
		if err != nil {
			return fmt.Errorf("failed to query adherence window: %w", err)
		}

		if existing == nil {
			entry := &model.MedicationHistoryEntry{
				UserID:       userID,
				MedicationID: medicationID,
				Status:       status,
				Time:         at,
			}
			if err := tx.Create(entry); err != nil {
				return fmt.Errorf("failed to create adherence entry: %w", err)
			}
			result = &dto.AdherenceResult{Entry: entry, Outcome: OutcomeCreated}
			return nil
		}

		switch {
		case existing.Status == status:
			return &AdherenceConflictError{Def: pkgerrors.AdherenceDuplicate, Existing: existing}
		case existing.Status == model.AdherenceStatusSkipped && status == model.AdherenceStatusCompleted:
			existing.Status = status
			existing.Time = at
			if err := tx.Update(existing); err != nil {
				return fmt.Errorf("failed to upgrade adherence entry: %w", err)
			}
			result = &dto.AdherenceResult{Entry: existing, Outcome: OutcomeUpgraded}
			return nil
		default:
			return &AdherenceConflictError{Def: pkgerrors.AdherenceDowngrade, Existing: existing}
		}
	})
	if err != nil {
		var conflict *AdherenceConflictError
		if errors.As(err, &conflict) {
			metrics.GetMetrics().RecordAdherence(ctx, conflict.Def.Code)
			return nil, conflict
		}
		return nil, notFound(err, pkgerrors.MedicationNotFound)
	}

	metrics.GetMetrics().RecordAdherence(ctx, result.Outcome)
	logger.Logger.Info("Adherence recorded",
		zap.Int64("user_id", userID),
		zap.Int64("medication_id", medicationID),
		zap.String("status", string(status)),
		zap.String("outcome", result.Outcome),
	)

	msg := model.AdherenceLoggedMessage{
		UserID:       userID,
		MedicationID: medicationID,
		EntryID:      result.Entry.ID,
		Status:       result.Entry.Status,
		Outcome:      result.Outcome,
		OccurredAt:   s.now(),
	}
	if err := s.events.PublishAdherenceLogged(ctx, msg); err != nil {
		logger.Logger.Warn("Failed to publish adherence.logged",
			zap.Int64("user_id", userID),
			zap.Int64("entry_id", result.Entry.ID),
			zap.Error(err),
		)
	}
	return result, nil
}

// acquire 带退避地获取 Redis 锁；Redis 不可用时只依赖数据库行锁
func (s *AdherenceService) acquire(ctx context.Context, key string) (bool, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 400 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockBusy
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(s.cfg.LockTimeout))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errLockBusy):
		metrics.GetMetrics().RecordAdherence(ctx, "busy")
		return false, pkgerrors.AdherenceLockFailed
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		logger.Logger.Warn("Redis lock unavailable, falling back to row lock", zap.String("key", key), zap.Error(err))
		return false, nil
	}
}
