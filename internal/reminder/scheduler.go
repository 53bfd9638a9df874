package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"HydroMed/pkg/logger"
	"HydroMed/pkg/metrics"
)

const idleWait = time.Hour

var (
	ErrInvalidInterval = errors.New("reminder interval must be positive")
	ErrInvalidKind     = errors.New("unknown reminder kind")
)

// entry 队列中的一项；seq 与 task.seq 不一致时说明已被取消或重排，出队时丢弃
type entry struct {
	id  string
	at  time.Time
	seq uint64
}

func byFireTime(a, b interface{}) int {
	x, y := a.(entry), b.(entry)
	switch {
	case x.at.Before(y.at):
		return -1
	case x.at.After(y.at):
		return 1
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	default:
		return 0
	}
}

type task struct {
	meta      Metadata
	callback  Callback
	seq       uint64
	reconcile bool
}

// Scheduler 单循环定时器：一个按触发时间排序的优先队列，外加一个唤醒 channel
// Schedule/Cancel 只改队列，不会阻塞在回调上
type Scheduler struct {
	mu       sync.Mutex
	queue    *priorityqueue.Queue
	tasks    map[string]*task
	handlers map[Kind]Callback
	seq      uint64
	restored bool

	store  MetadataStore
	wake   chan struct{}
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

// Option Scheduler 可选项
type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Scheduler) { s.newID = fn }
}

func NewScheduler(store MetadataStore, opts ...Option) *Scheduler {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Scheduler{
		queue:    priorityqueue.NewWith(byFireTime),
		tasks:    make(map[string]*task),
		handlers: make(map[Kind]Callback),
		store:    store,
		wake:     make(chan struct{}, 1),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
		logger:   logger.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle 注册某类提醒的默认回调，Restore 出来的任务只能依赖它
func (s *Scheduler) Handle(kind Kind, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = cb
}

// ScheduleRecurring 每隔 interval 触发一次，cb 为 nil 时使用 Handle 注册的回调
func (s *Scheduler) ScheduleRecurring(ctx context.Context, kind Kind, interval time.Duration, cb Callback, ref string) (string, error) {
	if interval <= 0 {
		return "", ErrInvalidInterval
	}
	if !validKind(kind) {
		return "", ErrInvalidKind
	}

	now := s.now()
	meta := Metadata{
		ID:          s.newID(),
		Kind:        kind,
		Ref:         ref,
		Interval:    interval,
		LastTrigger: now,
	}
	if err := s.store.SaveReminder(ctx, meta); err != nil {
		return "", fmt.Errorf("failed to persist reminder: %w", err)
	}

	s.mu.Lock()
	s.arm(&task{meta: meta, callback: cb}, now.Add(interval))
	s.mu.Unlock()
	s.notify()

	s.logger.Debug("Recurring reminder scheduled",
		zap.String("id", meta.ID),
		zap.String("kind", string(kind)),
		zap.Duration("interval", interval),
	)
	return meta.ID, nil
}

// ScheduleOnce 在 target 触发一次；target 已过时立即触发且不落盘
func (s *Scheduler) ScheduleOnce(ctx context.Context, kind Kind, target time.Time, cb Callback, ref string) (string, error) {
	if !validKind(kind) {
		return "", ErrInvalidKind
	}

	now := s.now()
	meta := Metadata{
		ID:          s.newID(),
		Kind:        kind,
		Ref:         ref,
		Target:      target,
		LastTrigger: now,
	}

	if !target.After(now) {
		t := &task{meta: meta, callback: cb}
		go s.invoke(context.WithoutCancel(ctx), t, Fire{ID: meta.ID, Kind: kind, Ref: ref, At: now})
		return meta.ID, nil
	}

	if err := s.store.SaveReminder(ctx, meta); err != nil {
		return "", fmt.Errorf("failed to persist reminder: %w", err)
	}

	s.mu.Lock()
	s.arm(&task{meta: meta, callback: cb}, target)
	s.mu.Unlock()
	s.notify()
	return meta.ID, nil
}

// Cancel 取消任务并删除持久化元数据，重复取消不报错
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.tasks, id)
	err := s.store.DeleteReminder(ctx, id)
	s.mu.Unlock()
	s.notify()

	if err != nil {
		return fmt.Errorf("failed to delete reminder metadata: %w", err)
	}
	return nil
}

// Pending 当前仍在队列中的任务数
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Run 主循环，直到 ctx 取消
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		wait := s.tick(ctx)
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.logger.Info("Reminder scheduler stopped")
			return
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// tick 执行所有到期任务，返回距下一个任务的等待时间
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	now := s.now()

	type due struct {
		task *task
		fire Fire
	}
	var fired []due
	wait := idleWait

	s.mu.Lock()
	for {
		v, ok := s.queue.Peek()
		if !ok {
			break
		}
		e := v.(entry)
		t, live := s.tasks[e.id]
		if !live || t.seq != e.seq {
			s.queue.Dequeue()
			continue
		}
		if e.at.After(now) {
			wait = e.at.Sub(now)
			break
		}
		s.queue.Dequeue()

		fired = append(fired, due{task: t, fire: Fire{
			ID:         t.meta.ID,
			Kind:       t.meta.Kind,
			Ref:        t.meta.Ref,
			At:         now,
			Reconciled: t.reconcile,
		}})
		t.reconcile = false

		if t.meta.Recurring() {
			t.meta.LastTrigger = now
			next := e.at.Add(t.meta.Interval)
			if !next.After(now) {
				next = now.Add(t.meta.Interval)
			}
			s.arm(t, next)
			s.persist(ctx, t.meta)
		} else {
			delete(s.tasks, e.id)
			s.forget(ctx, e.id)
		}
	}
	s.mu.Unlock()

	for _, d := range fired {
		s.invoke(ctx, d.task, d.fire)
	}

	return wait
}

// Restore 进程重启后从持久化元数据重建队列；已过期的任务会立即以 Reconciled 触发
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	metas, err := s.store.LoadReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load reminders: %w", err)
	}

	now := s.now()
	restored := 0

	s.mu.Lock()
	for _, m := range metas {
		if _, live := s.tasks[m.ID]; live {
			continue
		}
		next := m.Target
		if m.Recurring() {
			next = m.LastTrigger.Add(m.Interval)
		}
		t := &task{meta: m, reconcile: !next.After(now)}
		if t.reconcile {
			next = now
		}
		s.arm(t, next)
		restored++
	}
	s.restored = true
	s.mu.Unlock()
	s.notify()

	s.logger.Info("Reminders restored", zap.Int("count", restored))
	return restored, nil
}

// Resume 前台恢复时补发错过的提醒：周期任务距上次触发已超过一个周期的补发一次并重新排期，
// 已过期的一次性任务补发后删除。Restore 之后以内存中的任务为准，已取消的不再补发
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	metas, err := s.store.LoadReminders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load reminders: %w", err)
	}

	now := s.now()
	var fired []*task

	s.mu.Lock()
	for _, m := range metas {
		t, live := s.tasks[m.ID]
		if live {
			m = t.meta
		} else if s.restored {
			continue
		}

		var overdue bool
		if m.Recurring() {
			overdue = now.Sub(m.LastTrigger) >= m.Interval
		} else {
			overdue = !m.Target.After(now)
		}
		if !overdue {
			continue
		}

		if !live {
			t = &task{meta: m}
		}
		if m.Recurring() {
			t.meta.LastTrigger = now
			t.reconcile = false
			s.arm(t, now.Add(m.Interval))
			s.persist(ctx, t.meta)
		} else {
			delete(s.tasks, m.ID)
			s.forget(ctx, m.ID)
		}
		fired = append(fired, t)
	}
	s.mu.Unlock()
	s.notify()

	for _, t := range fired {
		s.invoke(ctx, t, Fire{ID: t.meta.ID, Kind: t.meta.Kind, Ref: t.meta.Ref, At: now, Reconciled: true})
	}

	if len(fired) > 0 {
		s.logger.Info("Reminders reconciled on resume", zap.Int("count", len(fired)))
	}
	return len(fired), nil
}

// persist 和 forget 调用方需持有 s.mu，保证落盘顺序与内存状态一致
func (s *Scheduler) persist(ctx context.Context, m Metadata) {
	if err := s.store.SaveReminder(ctx, m); err != nil {
		s.logger.Warn("Failed to persist reminder trigger", zap.String("id", m.ID), zap.Error(err))
	}
}

func (s *Scheduler) forget(ctx context.Context, id string) {
	if err := s.store.DeleteReminder(ctx, id); err != nil {
		s.logger.Warn("Failed to delete reminder metadata", zap.String("id", id), zap.Error(err))
	}
}

// arm 调用方需持有 s.mu
func (s *Scheduler) arm(t *task, at time.Time) {
	s.seq++
	t.seq = s.seq
	s.tasks[t.meta.ID] = t
	s.queue.Enqueue(entry{id: t.meta.ID, at: at, seq: t.seq})
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// invoke 回调的 panic 和错误都只记录，不影响后续触发
func (s *Scheduler) invoke(ctx context.Context, t *task, f Fire) {
	cb := t.callback
	if cb == nil {
		s.mu.Lock()
		cb = s.handlers[f.Kind]
		s.mu.Unlock()
	}
	if cb == nil {
		s.logger.Warn("No handler registered for reminder", zap.String("id", f.ID), zap.String("kind", string(f.Kind)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Reminder callback panicked",
				zap.String("id", f.ID),
				zap.String("kind", string(f.Kind)),
				zap.Any("panic", r),
			)
		}
	}()

	metrics.GetMetrics().RecordReminderFire(ctx, string(f.Kind), f.Reconciled)
	if err := cb(ctx, f); err != nil {
		s.logger.Warn("Reminder callback failed",
			zap.String("id", f.ID),
			zap.String("kind", string(f.Kind)),
			zap.Bool("reconciled", f.Reconciled),
			zap.Error(err),
		)
	}
}

func validKind(k Kind) bool {
	return k == KindHydration || k == KindMedication
}
