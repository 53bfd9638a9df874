package reminder

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"HydroMed/pkg/logger"
	"HydroMed/pkg/metrics"
)

// Category 展示给用户的提醒类别，节流按类别计算
type Category string

const (
	CategoryHydrationReminder  Category = "hydration_reminder"
	CategoryOverhydration      Category = "overhydration_warning"
	CategoryBehindPace         Category = "behind_pace"
	CategoryMedicationReminder Category = "medication_reminder"
)

// DefaultWindows 各类别的最小重复展示间隔，未列出的类别不节流
func DefaultWindows() map[Category]time.Duration {
	return map[Category]time.Duration{
		CategoryHydrationReminder: 2 * time.Hour,
		CategoryBehindPace:        4 * time.Hour,
	}
}

// Throttle 同一类别在窗口内只放行一次
type Throttle struct {
	mu       sync.Mutex
	windows  map[Category]time.Duration
	lastShow map[Category]time.Time
	now      func() time.Time
}

func NewThrottle(windows map[Category]time.Duration, now func() time.Time) *Throttle {
	if windows == nil {
		windows = DefaultWindows()
	}
	if now == nil {
		now = time.Now
	}
	return &Throttle{
		windows:  windows,
		lastShow: make(map[Category]time.Time),
		now:      now,
	}
}

// Allow 放行时记录本次展示时间
func (t *Throttle) Allow(c Category) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	window := t.windows[c]
	if last, ok := t.lastShow[c]; ok && window > 0 && now.Sub(last) < window {
		return false
	}
	t.lastShow[c] = now
	return true
}

// Alert 一条本地通知
type Alert struct {
	Category Category
	Title    string
	Body     string
}

// Presenter 把通知展示给用户
type Presenter interface {
	Present(ctx context.Context, a Alert) error
}

// LogPresenter 没有系统通知能力时写日志
type LogPresenter struct {
	logger *zap.Logger
}

func NewLogPresenter() *LogPresenter {
	return &LogPresenter{logger: logger.Logger}
}

func (p *LogPresenter) Present(_ context.Context, a Alert) error {
	p.logger.Info("Reminder",
		zap.String("category", string(a.Category)),
		zap.String("title", a.Title),
		zap.String("body", a.Body),
	)
	return nil
}

// Gate 节流后的 Presenter，窗口内的重复展示静默丢弃
type Gate struct {
	throttle  *Throttle
	presenter Presenter
}

func NewGate(throttle *Throttle, presenter Presenter) *Gate {
	return &Gate{throttle: throttle, presenter: presenter}
}

// Show 返回是否真正展示
func (g *Gate) Show(ctx context.Context, a Alert) (bool, error) {
	if !g.throttle.Allow(a.Category) {
		metrics.GetMetrics().RecordThrottled(ctx, string(a.Category))
		return false, nil
	}
	if err := g.presenter.Present(ctx, a); err != nil {
		return true, err
	}
	return true, nil
}
