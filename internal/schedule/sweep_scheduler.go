package schedule

// missed 扫描调度器：周期性地把超时未处理的提醒置为 missed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const sweepLockKey = "sweep"

// Sweeper 执行一次 missed 扫描，userID 为 0 表示全部用户
type Sweeper interface {
	Sweep(ctx context.Context, userID int64, threshold time.Duration) ([]int64, error)
}

// Locker 多实例部署时保证同一时刻只有一个 scheduler 在扫描
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type SweepScheduler struct {
	sweeper     Sweeper
	locker      Locker
	logger      *zap.Logger
	lockTTL     time.Duration
	running     bool
	mu          sync.Mutex
	lastRunTime time.Time
}

// NewSweepScheduler locker 可以为 nil，此时仅依赖进程内互斥
func NewSweepScheduler(sweeper Sweeper, locker Locker, log *zap.Logger, lockTTL time.Duration) *SweepScheduler {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &SweepScheduler{
		sweeper: sweeper,
		locker:  locker,
		logger:  log,
		lockTTL: lockTTL,
	}
}

// RunOnce 执行一次扫描，上一轮未结束或锁被其它实例持有时直接跳过
// 返回本轮被置为 missed 的记录数
func (s *SweepScheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Sweep job already running, skipping")
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.locker != nil {
		acquired, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
		switch {
		case err != nil:
			// 扫描本身是幂等的条件更新，redis 不可用时照常执行
			s.logger.Warn("Failed to acquire sweep lock, continuing without it", zap.Error(err))
		case !acquired:
			s.logger.Info("Sweep lock held by another instance, skipping")
			return 0, nil
		default:
			defer func() {
				if err := s.locker.Unlock(context.Background(), sweepLockKey); err != nil {
					s.logger.Warn("Failed to release sweep lock", zap.Error(err))
				}
			}()
		}
	}

	startTime := time.Now()
	s.mu.Lock()
	s.lastRunTime = startTime
	s.mu.Unlock()

	ids, err := s.sweeper.Sweep(ctx, 0, 0)
	if err != nil {
		s.logger.Error("Sweep job failed", zap.Error(err))
		return 0, fmt.Errorf("failed to run sweep: %w", err)
	}

	s.logger.Info("Sweep job completed",
		zap.Int("missed", len(ids)),
		zap.Duration("duration", time.Since(startTime)),
	)
	return len(ids), nil
}

// LastRunTime 最近一次真正执行扫描的时间
func (s *SweepScheduler) LastRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunTime
}

// Run 按 interval 周期执行，直到 ctx 取消
func (s *SweepScheduler) Run(ctx context.Context, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweep scheduler stopped")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			if _, err := s.RunOnce(runCtx); err != nil {
				s.logger.Error("Sweep run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
