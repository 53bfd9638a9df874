package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"HydroMed/internal/goal"
	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/reminder"
	"HydroMed/pkg/logger"
	"HydroMed/utils"
)

const (
	// overhydrationRatio 当日饮水量达到目标的 1.5 倍时提示
	overhydrationRatio = 1.5
	maxSnoozeMinutes   = 1440
)

// API agent 依赖的服务端接口
type API interface {
	Sender
	ListMedications(ctx context.Context) ([]model.Medication, error)
	GetGoal(ctx context.Context) (*dto.GoalResponse, error)
}

// Agent 设备端提醒代理：调度本地提醒，展示通知，并把结果同步到服务端
type Agent struct {
	cfg       *Config
	store     *LocalStore
	scheduler *reminder.Scheduler
	gate      *reminder.Gate
	api       API
	outbox    *Outbox
	now       func() time.Time
	logger    *zap.Logger

	mu          sync.Mutex
	medications map[int64]model.Medication
	inflight    sync.WaitGroup

	// stateMu 串行化本地饮水状态的读改写
	stateMu sync.Mutex
}

func New(cfg *Config, store *LocalStore, scheduler *reminder.Scheduler, gate *reminder.Gate, api API, outbox *Outbox) *Agent {
	a := &Agent{
		cfg:         cfg,
		store:       store,
		scheduler:   scheduler,
		gate:        gate,
		api:         api,
		outbox:      outbox,
		now:         time.Now,
		logger:      logger.Logger,
		medications: make(map[int64]model.Medication),
	}
	scheduler.Handle(reminder.KindHydration, a.onHydration)
	scheduler.Handle(reminder.KindMedication, a.onMedication)
	return a
}

// Start 恢复持久化的提醒，补齐缺失的饮水提醒，再从服务端刷新目标和用药计划
func (a *Agent) Start(ctx context.Context) error {
	if _, err := a.scheduler.Restore(ctx); err != nil {
		return err
	}

	persisted, err := a.store.LoadReminders(ctx)
	if err != nil {
		return err
	}
	hasHydration := false
	for _, m := range persisted {
		if m.Kind == reminder.KindHydration {
			hasHydration = true
			break
		}
	}

	if !hasHydration {
		if _, err := a.scheduler.ScheduleRecurring(ctx, reminder.KindHydration, a.cfg.HydrationInterval(), nil, ""); err != nil {
			return err
		}
	}

	if err := a.Refresh(ctx); err != nil {
		// 离线启动时沿用本地的目标和已持久化的用药提醒
		a.logger.Warn("Failed to refresh from server, using local state", zap.Error(err))
	}
	return nil
}

// Refresh 拉取饮水目标和用药计划；任一失败都按离线处理，本地状态保持不变
func (a *Agent) Refresh(ctx context.Context) error {
	return errors.Join(a.syncGoal(ctx), a.syncMedications(ctx))
}

// syncGoal 服务端目标写入本地 hydration_state
func (a *Agent) syncGoal(ctx context.Context) error {
	g, err := a.api.GetGoal(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch hydration goal: %w", err)
	}
	if g == nil || g.GoalML <= 0 {
		return nil
	}

	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	state, err := a.store.LoadHydration(ctx)
	if err != nil {
		return err
	}
	if state.GoalML == g.GoalML {
		return nil
	}
	state.GoalML = g.GoalML
	if err := a.store.SaveHydration(ctx, state, a.now()); err != nil {
		return err
	}
	a.logger.Info("Hydration goal synced", zap.Int("goal_ml", g.GoalML))
	return nil
}

// syncMedications 为有效用药的每个时间安排下一次提醒，已存在的跳过；已停用的取消本地提醒
func (a *Agent) syncMedications(ctx context.Context) error {
	meds, err := a.api.ListMedications(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch medications: %w", err)
	}

	persisted, err := a.store.LoadReminders(ctx)
	if err != nil {
		return err
	}
	existing := make(map[string]bool, len(persisted))
	byMedication := make(map[int64][]string)
	for _, m := range persisted {
		if m.Kind != reminder.KindMedication {
			continue
		}
		existing[m.Ref] = true
		if id, _, err := parseMedicationRef(m.Ref); err == nil {
			byMedication[id] = append(byMedication[id], m.ID)
		}
	}

	a.mu.Lock()
	for _, m := range meds {
		a.medications[m.ID] = m
	}
	a.mu.Unlock()

	now := a.now()
	for _, m := range meds {
		if !m.Active {
			for _, id := range byMedication[m.ID] {
				if err := a.scheduler.Cancel(ctx, id); err != nil {
					return err
				}
			}
			if n := len(byMedication[m.ID]); n > 0 {
				a.logger.Info("Reminders cancelled for inactive medication", zap.Int64("medication_id", m.ID), zap.Int("count", n))
			}
			continue
		}
		for _, clock := range m.Times {
			ref := medicationRef(m.ID, clock)
			if existing[ref] {
				continue
			}
			next, err := nextOccurrence(now, clock)
			if err != nil {
				a.logger.Warn("Skipping invalid medication time", zap.Int64("medication_id", m.ID), zap.String("time", clock))
				continue
			}
			if _, err := a.scheduler.ScheduleOnce(ctx, reminder.KindMedication, next, nil, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

// onHydration 饮水提醒：落后进度时先提示 behind_pace，再提示喝水并在服务端建记录
func (a *Agent) onHydration(ctx context.Context, f reminder.Fire) error {
	a.stateMu.Lock()
	state, err := a.hydrationState(ctx)
	if err != nil {
		a.stateMu.Unlock()
		return err
	}

	consumed := state.ConsumedOn(f.At)
	if f.Reconciled {
		// 补发时拿不到触发当时的进度
		consumed = 0
	}
	pace := goal.ComputePace(consumed, state.GoalML, f.At)

	// 落后进度或补发的提醒记为一次漏喝
	if !pace.IsOnPace || f.Reconciled {
		state.Missed = append(state.Missed, f.At)
		if err := a.store.SaveHydration(ctx, state, a.now()); err != nil {
			a.logger.Warn("Failed to record missed hydration", zap.Error(err))
		}
	}
	a.stateMu.Unlock()

	if !pace.IsOnPace {
		if _, err := a.gate.Show(ctx, reminder.Alert{
			Category: reminder.CategoryBehindPace,
			Title:    "You're behind on water",
			Body:     fmt.Sprintf("%d ml so far, %d ml expected by now.", pace.Consumed, pace.ExpectedML),
		}); err != nil {
			a.logger.Warn("Failed to present alert", zap.Error(err))
		}
	}

	shown, err := a.gate.Show(ctx, reminder.Alert{
		Category: reminder.CategoryHydrationReminder,
		Title:    "Time to drink water",
		Body:     fmt.Sprintf("%d ml remaining today.", pace.Remaining),
	})
	if err != nil {
		a.logger.Warn("Failed to present alert", zap.Error(err))
	}
	if !shown {
		return nil
	}

	amount := 0
	if f.Reconciled {
		amount = a.cfg.Hydration.PlaceholderAmountML
	}
	a.syncAsync(ctx, http.MethodPost, "/v1/notifications", dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Time to drink water",
		ScheduledTime: f.At,
		Payload: model.NotificationPayload{Hydration: &model.HydrationPayload{
			AmountML:        amount,
			IntervalMinutes: a.cfg.Hydration.IntervalMinutes,
		}},
	})
	return nil
}

// onMedication 用药提醒，触发后安排次日同一时间；已停用的用药直接丢弃
func (a *Agent) onMedication(ctx context.Context, f reminder.Fire) error {
	medID, clock, err := parseMedicationRef(f.Ref)
	if err != nil {
		return err
	}

	a.mu.Lock()
	med, known := a.medications[medID]
	a.mu.Unlock()
	if known && !med.Active {
		// 停用后既不提醒也不再排期
		a.logger.Debug("Dropping reminder for inactive medication", zap.Int64("medication_id", medID))
		return nil
	}
	name := med.Name
	if !known || name == "" {
		name = fmt.Sprintf("medication #%d", medID)
	}

	if _, err := a.gate.Show(ctx, reminder.Alert{
		Category: reminder.CategoryMedicationReminder,
		Title:    "Time for " + name,
		Body:     strings.TrimSpace(med.Dosage + " at " + clock),
	}); err != nil {
		a.logger.Warn("Failed to present alert", zap.Error(err))
	}

	a.syncAsync(ctx, http.MethodPost, "/v1/notifications", dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeMedication),
		Title:         "Time for " + name,
		ScheduledTime: f.At,
		Payload: model.NotificationPayload{Medication: &model.MedicationPayload{
			MedicationID: medID,
			Name:         med.Name,
			Dosage:       med.Dosage,
		}},
	})

	next, err := nextOccurrence(f.At, clock)
	if err != nil {
		return err
	}
	_, err = a.scheduler.ScheduleOnce(ctx, reminder.KindMedication, next, nil, f.Ref)
	return err
}

// LogWater 先更新本地状态再同步；当日累计达到目标 1.5 倍时提示过量
func (a *Agent) LogWater(ctx context.Context, amountML int, source string) (HydrationState, error) {
	if amountML <= 0 || amountML > 5000 {
		return HydrationState{}, fmt.Errorf("amount must be in (0, 5000] ml, got %d", amountML)
	}
	if source == "" {
		source = "manual"
	}

	now := a.now()
	a.stateMu.Lock()
	state, err := a.hydrationState(ctx)
	if err == nil {
		state.Entries = append(state.Entries, LocalEntry{AmountML: amountML, Timestamp: now, Source: source})
		err = a.store.SaveHydration(ctx, state, now)
	}
	a.stateMu.Unlock()
	if err != nil {
		return HydrationState{}, err
	}

	if float64(state.ConsumedOn(now)) >= overhydrationRatio*float64(state.GoalML) {
		if _, err := a.gate.Show(ctx, reminder.Alert{
			Category: reminder.CategoryOverhydration,
			Title:    "That's a lot of water",
			Body:     fmt.Sprintf("You've had %d ml today, well above your %d ml goal.", state.ConsumedOn(now), state.GoalML),
		}); err != nil {
			a.logger.Warn("Failed to present alert", zap.Error(err))
		}
	}

	a.syncAsync(ctx, http.MethodPost, "/v1/hydration", dto.LogHydrationRequest{
		AmountML:  amountML,
		Source:    source,
		Timestamp: &now,
	})
	return state, nil
}

// Complete 标记服务端通知已完成，离线时进 outbox
func (a *Agent) Complete(ctx context.Context, notificationID int64) error {
	if notificationID <= 0 {
		return fmt.Errorf("invalid notification id %d", notificationID)
	}
	a.syncAsync(ctx, http.MethodPost, fmt.Sprintf("/v1/notifications/%d/complete", notificationID), nil)
	return nil
}

// Snooze 推迟服务端通知 minutes 分钟
func (a *Agent) Snooze(ctx context.Context, notificationID int64, minutes int) error {
	if notificationID <= 0 {
		return fmt.Errorf("invalid notification id %d", notificationID)
	}
	if minutes <= 0 || minutes > maxSnoozeMinutes {
		return fmt.Errorf("snooze must be in (0, %d] minutes, got %d", maxSnoozeMinutes, minutes)
	}
	a.syncAsync(ctx, http.MethodPost, fmt.Sprintf("/v1/notifications/%d/snooze", notificationID), dto.SnoozeRequest{Minutes: minutes})
	return nil
}

// LogDose 记录一次服药或跳过，时间取本地当前时间，重放时不会漂移
func (a *Agent) LogDose(ctx context.Context, medicationID int64, status model.AdherenceStatus) error {
	if medicationID <= 0 {
		return fmt.Errorf("invalid medication id %d", medicationID)
	}
	if status != model.AdherenceStatusCompleted && status != model.AdherenceStatusSkipped {
		return fmt.Errorf("dose status must be completed or skipped, got %q", status)
	}
	now := a.now()
	a.syncAsync(ctx, http.MethodPost, fmt.Sprintf("/v1/medications/%d/history", medicationID), dto.LogAdherenceRequest{
		Status: string(status),
		Time:   &now,
	})
	return nil
}

// Resume 前台恢复信号
func (a *Agent) Resume(ctx context.Context) (int, error) {
	return a.scheduler.Resume(ctx)
}

// Wait 等待所有进行中的同步结束
func (a *Agent) Wait() {
	a.inflight.Wait()
}

func (a *Agent) hydrationState(ctx context.Context) (HydrationState, error) {
	state, err := a.store.LoadHydration(ctx)
	if err != nil {
		return HydrationState{}, err
	}
	if state.GoalML <= 0 {
		state.GoalML = a.cfg.Hydration.GoalML
	}
	return state, nil
}

// syncAsync 不阻塞回调，失败写入 outbox
func (a *Agent) syncAsync(ctx context.Context, method, path string, payload interface{}) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			a.logger.Error("Failed to encode sync payload", zap.String("path", path), zap.Error(err))
			return
		}
	}

	ctx = context.WithoutCancel(ctx)
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()

		reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout())
		defer cancel()

		_, err := a.api.Send(reqCtx, method, path, body)
		if err == nil {
			return
		}
		if IsPermanent(err) {
			a.logger.Warn("Sync rejected by server", zap.String("path", path), zap.Error(err))
			return
		}
		if err := a.outbox.Enqueue(ctx, method, path, body, err); err != nil {
			a.logger.Error("Failed to queue sync request", zap.String("path", path), zap.Error(err))
		}
	}()
}

func medicationRef(medID int64, clock string) string {
	return strconv.FormatInt(medID, 10) + "@" + clock
}

func parseMedicationRef(ref string) (int64, string, error) {
	id, clock, ok := strings.Cut(ref, "@")
	if !ok {
		return 0, "", fmt.Errorf("invalid medication reminder ref %q", ref)
	}
	medID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid medication reminder ref %q: %w", ref, err)
	}
	return medID, clock, nil
}

// nextOccurrence after 之后最近的 HH:MM
func nextOccurrence(after time.Time, clock string) (time.Time, error) {
	next, err := utils.AtClock(after, clock)
	if err != nil {
		return time.Time{}, err
	}
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}
