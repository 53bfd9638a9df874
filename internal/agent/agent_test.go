package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"

	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	"HydroMed/internal/reminder"
)

type sentRequest struct {
	Method string
	Path   string
	Body   []byte
}

type fakeAPI struct {
	mu          sync.Mutex
	sent        []sentRequest
	sendErr     error
	medications []model.Medication
	listErr     error
	goal        dto.GoalResponse
	goalErr     error
}

func (f *fakeAPI) Send(_ context.Context, method, path string, body []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentRequest{Method: method, Path: path, Body: body})
	return nil, f.sendErr
}

func (f *fakeAPI) ListMedications(context.Context) ([]model.Medication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Medication(nil), f.medications...), f.listErr
}

func (f *fakeAPI) GetGoal(context.Context) (*dto.GoalResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.goalErr != nil {
		return nil, f.goalErr
	}
	g := f.goal
	return &g, nil
}

func (f *fakeAPI) requests(path string) []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentRequest
	for _, r := range f.sent {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

type presented struct {
	mu     sync.Mutex
	alerts []reminder.Alert
}

func (p *presented) Present(_ context.Context, a reminder.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *presented) categories() []reminder.Category {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]reminder.Category, 0, len(p.alerts))
	for _, a := range p.alerts {
		out = append(out, a.Category)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type agentFixture struct {
	agent     *Agent
	store     *LocalStore
	api       *fakeAPI
	presenter *presented
	clock     *testClock
}

func testConfig() *Config {
	return &Config{
		Server:    ServerConfig{BaseURL: "http://localhost:8888", Timeout: 5},
		Hydration: HydrationConfig{IntervalMinutes: 60, GoalML: 2000, PlaceholderAmountML: 250},
		Outbox:    OutboxConfig{DrainInterval: 30, InitialInterval: 5, MaxInterval: 600, MaxAttempts: 20},
	}
}

func newAgentFixture(t *testing.T, store *LocalStore, api *fakeAPI) *agentFixture {
	t.Helper()
	if store == nil {
		store = openTestStore(t)
	}
	if api == nil {
		api = &fakeAPI{}
	}
	clock := &testClock{now: testNow}
	presenter := &presented{}

	scheduler := reminder.NewScheduler(store, reminder.WithClock(clock.Now))
	gate := reminder.NewGate(reminder.NewThrottle(nil, clock.Now), presenter)
	outbox := NewOutbox(store, api, testConfig().Outbox)
	outbox.now = clock.Now

	a := New(testConfig(), store, scheduler, gate, api, outbox)
	a.now = clock.Now
	return &agentFixture{agent: a, store: store, api: api, presenter: presenter, clock: clock}
}

func TestLogWaterWarnsOnceGoalIsExceededByHalf(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	ctx := context.Background()

	state, err := f.agent.LogWater(ctx, 1500, "")
	assert.Nil(t, err)
	assert.DeepEqual(t, 1500, state.ConsumedOn(testNow))
	assert.DeepEqual(t, 0, len(f.presenter.categories()))

	f.clock.Advance(time.Minute)
	_, err = f.agent.LogWater(ctx, 1500, "quick")
	assert.Nil(t, err)
	assert.DeepEqual(t, []reminder.Category{reminder.CategoryOverhydration}, f.presenter.categories())

	f.agent.Wait()
	reqs := f.api.requests("/v1/hydration")
	assert.DeepEqual(t, 2, len(reqs))
	var body dto.LogHydrationRequest
	assert.Nil(t, json.Unmarshal(reqs[1].Body, &body))
	assert.DeepEqual(t, 1500, body.AmountML)
	assert.DeepEqual(t, "quick", body.Source)

	stored, _ := f.store.LoadHydration(ctx)
	assert.DeepEqual(t, 2, len(stored.Entries))
}

func TestLogWaterRejectsInvalidAmount(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	_, err := f.agent.LogWater(context.Background(), 0, "manual")
	assert.NotNil(t, err)
	_, err = f.agent.LogWater(context.Background(), 5001, "manual")
	assert.NotNil(t, err)
}

func TestFailedSyncIsQueuedInOutbox(t *testing.T) {
	f := newAgentFixture(t, nil, &fakeAPI{sendErr: errors.New("connection refused")})
	ctx := context.Background()

	_, err := f.agent.LogWater(ctx, 250, "manual")
	assert.Nil(t, err)
	f.agent.Wait()

	n, _ := f.store.CountOutbox(ctx)
	assert.DeepEqual(t, 1, n)

	// 网络恢复后重放
	f.api.mu.Lock()
	f.api.sendErr = nil
	f.api.mu.Unlock()
	res, err := f.agent.outbox.Drain(ctx)
	assert.Nil(t, err)
	assert.DeepEqual(t, 1, res.Sent)
	assert.DeepEqual(t, 2, len(f.api.requests("/v1/hydration")))
}

func TestRejectedSyncIsNotQueued(t *testing.T) {
	f := newAgentFixture(t, nil, &fakeAPI{sendErr: &StatusError{Code: http.StatusUnprocessableEntity}})
	ctx := context.Background()

	_, err := f.agent.LogWater(ctx, 250, "manual")
	assert.Nil(t, err)
	f.agent.Wait()

	n, _ := f.store.CountOutbox(ctx)
	assert.DeepEqual(t, 0, n)
}

func TestHydrationFireShowsBehindPaceAndThrottlesRepeats(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	ctx := context.Background()

	// 15:00 期望 1200ml，实际 0
	assert.Nil(t, f.agent.onHydration(ctx, reminder.Fire{ID: "h", Kind: reminder.KindHydration, At: testNow}))
	assert.DeepEqual(t, []reminder.Category{reminder.CategoryBehindPace, reminder.CategoryHydrationReminder}, f.presenter.categories())

	f.agent.Wait()
	reqs := f.api.requests("/v1/notifications")
	assert.DeepEqual(t, 1, len(reqs))
	var body dto.CreateNotificationRequest
	assert.Nil(t, json.Unmarshal(reqs[0].Body, &body))
	assert.DeepEqual(t, "hydration", body.Type)
	assert.DeepEqual(t, 60, body.Payload.Hydration.IntervalMinutes)

	// 一小时后再次触发：两类提醒都在节流窗口内
	f.clock.Advance(time.Hour)
	assert.Nil(t, f.agent.onHydration(ctx, reminder.Fire{ID: "h", Kind: reminder.KindHydration, At: f.clock.Now()}))
	assert.DeepEqual(t, 2, len(f.presenter.categories()))
	f.agent.Wait()
	assert.DeepEqual(t, 1, len(f.api.requests("/v1/notifications")))
}

func TestReconciledHydrationFireUsesPlaceholder(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	ctx := context.Background()

	_, _ = f.agent.LogWater(ctx, 1500, "manual")
	assert.Nil(t, f.agent.onHydration(ctx, reminder.Fire{ID: "h", Kind: reminder.KindHydration, At: testNow, Reconciled: true}))

	// 实际 1500ml 已达标，但补发按 0 计算
	assert.DeepEqual(t, []reminder.Category{reminder.CategoryBehindPace, reminder.CategoryHydrationReminder}, f.presenter.categories())

	f.agent.Wait()
	reqs := f.api.requests("/v1/notifications")
	assert.DeepEqual(t, 1, len(reqs))
	var body dto.CreateNotificationRequest
	assert.Nil(t, json.Unmarshal(reqs[0].Body, &body))
	assert.DeepEqual(t, 250, body.Payload.Hydration.AmountML)
}

func metformin() model.Medication {
	m := model.Medication{Name: "Metformin", Dosage: "500mg", Times: []string{"08:00", "20:00"}, Active: true}
	m.ID = 3
	return m
}

func TestStartSchedulesRemindersOnce(t *testing.T) {
	store := openTestStore(t)
	inactive := model.Medication{Name: "Old", Times: []string{"09:00"}, Active: false}
	inactive.ID = 4
	api := &fakeAPI{medications: []model.Medication{metformin(), inactive}}
	ctx := context.Background()

	f := newAgentFixture(t, store, api)
	assert.Nil(t, f.agent.Start(ctx))

	items, _ := store.LoadReminders(ctx)
	assert.DeepEqual(t, 3, len(items))
	targets := map[string]time.Time{}
	for _, m := range items {
		if m.Kind == reminder.KindMedication {
			targets[m.Ref] = m.Target
		}
	}
	assert.Assert(t, targets["3@20:00"].Equal(time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)))
	assert.Assert(t, targets["3@08:00"].Equal(time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)))

	// 模拟重启：同一个库上新建 agent
	restarted := newAgentFixture(t, store, api)
	assert.Nil(t, restarted.agent.Start(ctx))
	items, _ = store.LoadReminders(ctx)
	assert.DeepEqual(t, 3, len(items))
}

func TestStartOfflineKeepsHydrationReminder(t *testing.T) {
	f := newAgentFixture(t, nil, &fakeAPI{listErr: errors.New("offline")})
	ctx := context.Background()

	assert.Nil(t, f.agent.Start(ctx))
	items, _ := f.store.LoadReminders(ctx)
	assert.DeepEqual(t, 1, len(items))
	assert.DeepEqual(t, reminder.KindHydration, items[0].Kind)
}

func TestMedicationFireRearmsNextDay(t *testing.T) {
	api := &fakeAPI{medications: []model.Medication{metformin()}}
	f := newAgentFixture(t, nil, api)
	ctx := context.Background()
	assert.Nil(t, f.agent.Start(ctx))

	at := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.Nil(t, f.agent.onMedication(ctx, reminder.Fire{ID: "m", Kind: reminder.KindMedication, Ref: "3@20:00", At: at}))

	f.presenter.mu.Lock()
	assert.DeepEqual(t, 1, len(f.presenter.alerts))
	assert.DeepEqual(t, "Time for Metformin", f.presenter.alerts[0].Title)
	f.presenter.mu.Unlock()

	f.agent.Wait()
	reqs := api.requests("/v1/notifications")
	assert.DeepEqual(t, 1, len(reqs))
	var body dto.CreateNotificationRequest
	assert.Nil(t, json.Unmarshal(reqs[0].Body, &body))
	assert.DeepEqual(t, int64(3), body.Payload.Medication.MedicationID)

	next := time.Date(2026, 3, 11, 20, 0, 0, 0, time.UTC)
	found := false
	items, _ := f.store.LoadReminders(ctx)
	for _, m := range items {
		if m.Ref == "3@20:00" && m.Target.Equal(next) {
			found = true
		}
	}
	assert.Assert(t, found)
}

func TestStartPersistsServerGoal(t *testing.T) {
	api := &fakeAPI{goal: dto.GoalResponse{GoalML: 2600}}
	f := newAgentFixture(t, nil, api)
	ctx := context.Background()

	assert.Nil(t, f.agent.Start(ctx))
	state, _ := f.store.LoadHydration(ctx)
	assert.DeepEqual(t, 2600, state.GoalML)

	// 配置里的 2000ml 会在 3000ml 时告警，服务端目标是 2600ml
	_, err := f.agent.LogWater(ctx, 3000, "manual")
	assert.Nil(t, err)
	assert.DeepEqual(t, 0, len(f.presenter.categories()))
}

func TestStartWithoutGoalKeepsLocalGoal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	assert.Nil(t, store.SaveHydration(ctx, HydrationState{GoalML: 1800}, testNow))

	api := &fakeAPI{goalErr: errors.New("offline"), medications: []model.Medication{metformin()}}
	f := newAgentFixture(t, store, api)
	assert.Nil(t, f.agent.Start(ctx))

	state, _ := store.LoadHydration(ctx)
	assert.DeepEqual(t, 1800, state.GoalML)

	// 目标拉取失败不影响用药计划同步
	items, _ := store.LoadReminders(ctx)
	assert.DeepEqual(t, 3, len(items))
}

func TestDeactivatedMedicationIsNotRearmed(t *testing.T) {
	api := &fakeAPI{medications: []model.Medication{metformin()}}
	f := newAgentFixture(t, nil, api)
	ctx := context.Background()
	assert.Nil(t, f.agent.Start(ctx))

	stopped := metformin()
	stopped.Active = false
	api.mu.Lock()
	api.medications = []model.Medication{stopped}
	api.mu.Unlock()
	assert.Nil(t, f.agent.Refresh(ctx))

	items, _ := f.store.LoadReminders(ctx)
	assert.DeepEqual(t, 1, len(items))
	assert.DeepEqual(t, reminder.KindHydration, items[0].Kind)

	// 取消前已经排进队列的触发
	at := time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC)
	assert.Nil(t, f.agent.onMedication(ctx, reminder.Fire{ID: "m", Kind: reminder.KindMedication, Ref: "3@20:00", At: at}))
	f.agent.Wait()

	assert.DeepEqual(t, 0, len(f.presenter.categories()))
	assert.DeepEqual(t, 0, len(api.requests("/v1/notifications")))
	items, _ = f.store.LoadReminders(ctx)
	assert.DeepEqual(t, 1, len(items))
}

func TestHydrationFireRecordsMissed(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	ctx := context.Background()

	assert.Nil(t, f.agent.onHydration(ctx, reminder.Fire{ID: "h", Kind: reminder.KindHydration, At: testNow}))
	state, _ := f.store.LoadHydration(ctx)
	assert.DeepEqual(t, 1, len(state.Missed))
	assert.Assert(t, state.Missed[0].Equal(testNow))

	// 赶上进度后的正常触发不算漏喝
	_, _ = f.agent.LogWater(ctx, 1500, "manual")
	f.clock.Advance(time.Minute)
	assert.Nil(t, f.agent.onHydration(ctx, reminder.Fire{ID: "h", Kind: reminder.KindHydration, At: f.clock.Now()}))
	state, _ = f.store.LoadHydration(ctx)
	assert.DeepEqual(t, 1, len(state.Missed))

	assert.Nil(t, f.agent.onHydration(ctx, reminder.Fire{ID: "h", Kind: reminder.KindHydration, At: f.clock.Now(), Reconciled: true}))
	state, _ = f.store.LoadHydration(ctx)
	assert.DeepEqual(t, 2, len(state.Missed))
	assert.DeepEqual(t, 1, len(state.Entries))
	f.agent.Wait()
}

func TestNotificationActionsSync(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	ctx := context.Background()

	assert.Nil(t, f.agent.Complete(ctx, 7))
	assert.Nil(t, f.agent.Snooze(ctx, 8, 15))
	assert.Nil(t, f.agent.LogDose(ctx, 3, model.AdherenceStatusSkipped))
	f.agent.Wait()

	completes := f.api.requests("/v1/notifications/7/complete")
	assert.DeepEqual(t, 1, len(completes))
	assert.DeepEqual(t, http.MethodPost, completes[0].Method)
	assert.DeepEqual(t, 0, len(completes[0].Body))

	snoozes := f.api.requests("/v1/notifications/8/snooze")
	assert.DeepEqual(t, 1, len(snoozes))
	var snooze dto.SnoozeRequest
	assert.Nil(t, json.Unmarshal(snoozes[0].Body, &snooze))
	assert.DeepEqual(t, 15, snooze.Minutes)

	doses := f.api.requests("/v1/medications/3/history")
	assert.DeepEqual(t, 1, len(doses))
	var dose dto.LogAdherenceRequest
	assert.Nil(t, json.Unmarshal(doses[0].Body, &dose))
	assert.DeepEqual(t, "skipped", dose.Status)
	assert.Assert(t, dose.Time.Equal(testNow))
}

func TestNotificationActionsValidate(t *testing.T) {
	f := newAgentFixture(t, nil, nil)
	ctx := context.Background()

	assert.NotNil(t, f.agent.Complete(ctx, 0))
	assert.NotNil(t, f.agent.Snooze(ctx, 8, 0))
	assert.NotNil(t, f.agent.Snooze(ctx, 8, 1441))
	assert.NotNil(t, f.agent.LogDose(ctx, 3, model.AdherenceStatus("missed")))
	f.agent.Wait()

	f.api.mu.Lock()
	assert.DeepEqual(t, 0, len(f.api.sent))
	f.api.mu.Unlock()
}

func TestOfflineActionsAreQueued(t *testing.T) {
	f := newAgentFixture(t, nil, &fakeAPI{sendErr: errors.New("connection refused")})
	ctx := context.Background()

	assert.Nil(t, f.agent.Complete(ctx, 7))
	assert.Nil(t, f.agent.Snooze(ctx, 8, 30))
	assert.Nil(t, f.agent.LogDose(ctx, 3, model.AdherenceStatusCompleted))
	f.agent.Wait()

	n, _ := f.store.CountOutbox(ctx)
	assert.DeepEqual(t, 3, n)

	f.api.mu.Lock()
	f.api.sendErr = nil
	f.api.mu.Unlock()
	res, err := f.agent.outbox.Drain(ctx)
	assert.Nil(t, err)
	assert.DeepEqual(t, 3, res.Sent)
	assert.DeepEqual(t, 2, len(f.api.requests("/v1/notifications/7/complete")))
	n, _ = f.store.CountOutbox(ctx)
	assert.DeepEqual(t, 0, n)
}

func TestMedicationRef(t *testing.T) {
	id, clock, err := parseMedicationRef(medicationRef(12, "07:30"))
	assert.Nil(t, err)
	assert.DeepEqual(t, int64(12), id)
	assert.DeepEqual(t, "07:30", clock)

	_, _, err = parseMedicationRef("bogus")
	assert.NotNil(t, err)
}

func TestNextOccurrence(t *testing.T) {
	next, err := nextOccurrence(testNow, "15:00")
	assert.Nil(t, err)
	assert.Assert(t, next.Equal(testNow.AddDate(0, 0, 1)))

	next, _ = nextOccurrence(testNow, "15:01")
	assert.Assert(t, next.Equal(testNow.Add(time.Minute)))
}
