package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"HydroMed/internal/analytics"
	"HydroMed/internal/model"
	"HydroMed/internal/repository"
)

type memNotifications struct {
	mu     sync.Mutex
	rows   map[int64]*model.Notification
	nextID int64
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: make(map[int64]*model.Notification)}
}

func (m *memNotifications) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	cp := *n
	m.rows[n.ID] = &cp
	return nil
}

func (m *memNotifications) Get(_ context.Context, userID, id int64) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memNotifications) UpdateIfStatus(_ context.Context, userID, id int64, from model.NotificationStatus, fields map[string]interface{}) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.UserID != userID || n.Status != from {
		return nil, repository.ErrStaleStatus
	}
	for k, v := range fields {
		switch k {
		case "scheduled_time":
			n.ScheduledTime = v.(time.Time)
		case "status":
			n.Status = v.(model.NotificationStatus)
		case "missed_at":
			n.MissedAt = timePtr(v)
		case "completed_at":
			n.CompletedAt = timePtr(v)
		case "last_snoozed_at":
			n.LastSnoozedAt = timePtr(v)
		case "snooze_count":
			n.SnoozeCount = v.(int)
		case "updated_at":
			n.UpdatedAt = v.(time.Time)
		}
	}
	cp := *n
	return &cp, nil
}

func timePtr(v interface{}) *time.Time {
	if v == nil {
		return nil
	}
	t := v.(time.Time)
	return &t
}

func (m *memNotifications) Delete(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memNotifications) List(_ context.Context, f repository.NotificationFilter) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.rows {
		if n.UserID != f.UserID {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memNotifications) ListSince(_ context.Context, userID int64, t model.NotificationType, since time.Time) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.rows {
		if n.UserID == userID && n.Type == t && !n.OriginalScheduledTime.Before(since) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memNotifications) Complete(_ context.Context, userID, id int64, at time.Time, chain repository.ChainFunc) (*model.Notification, *model.Notification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.UserID != userID {
		return nil, nil, false, repository.ErrNotFound
	}
	if n.Status == model.NotificationStatusCompleted {
		cp := *n
		return &cp, nil, false, nil
	}
	n.Status = model.NotificationStatusCompleted
	n.CompletedAt = &at
	record := *n

	var next *model.Notification
	if chain == nil {
		return &record, nil, true, nil
	}
	if nn := chain(record); nn != nil {
		m.nextID++
		nn.ID = m.nextID
		cp := *nn
		m.rows[nn.ID] = &cp
		next = nn
	}
	return &record, next, true, nil
}

func (m *memNotifications) MarkMissedBefore(_ context.Context, userID int64, cutoff, now time.Time) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Notification
	for _, n := range m.rows {
		if userID != 0 && n.UserID != userID {
			continue
		}
		if n.Status != model.NotificationStatusScheduled || !n.ScheduledTime.Before(cutoff) {
			continue
		}
		n.Status = model.NotificationStatusMissed
		missedAt := now
		n.MissedAt = &missedAt
		out = append(out, *n)
	}
	return out, nil
}

type memMedications struct {
	mu      sync.Mutex
	meds    map[int64]*model.Medication
	history []*model.MedicationHistoryEntry
	nextID  int64
}

func newMemMedications() *memMedications {
	return &memMedications{meds: make(map[int64]*model.Medication)}
}

func (m *memMedications) Create(_ context.Context, med *model.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	med.ID = m.nextID
	cp := *med
	m.meds[med.ID] = &cp
	return nil
}

func (m *memMedications) Get(_ context.Context, userID, id int64) (*model.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[id]
	if !ok || med.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *med
	return &cp, nil
}

func (m *memMedications) List(_ context.Context, userID int64) ([]model.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Medication
	for _, med := range m.meds {
		if med.UserID == userID {
			out = append(out, *med)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memMedications) SetActive(_ context.Context, userID, id int64, active bool) (*model.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[id]
	if !ok || med.UserID != userID {
		return nil, repository.ErrNotFound
	}
	med.Active = active
	cp := *med
	return &cp, nil
}

func (m *memMedications) History(_ context.Context, userID, medicationID int64, limit int) ([]model.MedicationHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MedicationHistoryEntry
	for _, e := range m.history {
		if e.UserID == userID && e.MedicationID == medicationID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memMedications) HistorySince(_ context.Context, userID int64, since time.Time) ([]model.MedicationHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MedicationHistoryEntry
	for _, e := range m.history {
		if e.UserID == userID && !e.Time.Before(since) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memMedications) WithAdherenceLock(_ context.Context, userID, medicationID int64, fn func(tx repository.AdherenceTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	med, ok := m.meds[medicationID]
	if !ok || med.UserID != userID {
		return repository.ErrNotFound
	}
	return fn(&memAdherenceTx{m: m})
}

type memAdherenceTx struct {
	m *memMedications
}

func (t *memAdherenceTx) FindInWindow(medicationID int64, from, to, at time.Time) (*model.MedicationHistoryEntry, error) {
	var best *model.MedicationHistoryEntry
	var bestDist time.Duration
	for _, e := range t.m.history {
		if e.MedicationID != medicationID || e.Time.Before(from) || e.Time.After(to) {
			continue
		}
		d := e.Time.Sub(at)
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (t *memAdherenceTx) Create(e *model.MedicationHistoryEntry) error {
	t.m.nextID++
	e.ID = t.m.nextID
	cp := *e
	t.m.history = append(t.m.history, &cp)
	return nil
}

func (t *memAdherenceTx) Update(e *model.MedicationHistoryEntry) error {
	for _, h := range t.m.history {
		if h.ID == e.ID {
			h.Status = e.Status
			h.Time = e.Time
		}
	}
	return nil
}

type memHydration struct {
	mu       sync.Mutex
	entries  []model.HydrationEntry
	settings map[int64]*model.HydrationSettings
}

func newMemHydration() *memHydration {
	return &memHydration{settings: make(map[int64]*model.HydrationSettings)}
}

func (m *memHydration) AddEntry(_ context.Context, e *model.HydrationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memHydration) EntriesBetween(_ context.Context, userID int64, from, to time.Time) ([]model.HydrationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HydrationEntry
	for _, e := range m.entries {
		if e.UserID == userID && !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memHydration) GetSettings(_ context.Context, userID int64) (*model.HydrationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.settings[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memHydration) SaveSettings(_ context.Context, s *model.HydrationSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings[s.UserID] = &cp
	return nil
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	missed    []model.NotificationMissedMessage
	adherence []model.AdherenceLoggedMessage
}

func (p *recordingPublisher) PublishNotificationMissed(_ context.Context, msg model.NotificationMissedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.missed = append(p.missed, msg)
	return nil
}

func (p *recordingPublisher) PublishAdherenceLogged(_ context.Context, msg model.AdherenceLoggedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adherence = append(p.adherence, msg)
	return nil
}

type memReportCache struct {
	cards map[int64]*analytics.ReportCard
	hits  int
}

func newMemReportCache() *memReportCache {
	return &memReportCache{cards: make(map[int64]*analytics.ReportCard)}
}

func (c *memReportCache) Get(_ context.Context, userID int64) (*analytics.ReportCard, bool) {
	card, ok := c.cards[userID]
	if ok {
		c.hits++
	}
	return card, ok
}

func (c *memReportCache) Set(_ context.Context, userID int64, card *analytics.ReportCard) {
	c.cards[userID] = card
}

func (c *memReportCache) Invalidate(_ context.Context, userID int64) error {
	delete(c.cards, userID)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// completeAfterGet 模拟 Get 与条件更新之间插入的并发 Complete
type completeAfterGet struct {
	*memNotifications
	svc  *NotificationService
	done bool
}

func (c *completeAfterGet) Get(ctx context.Context, userID, id int64) (*model.Notification, error) {
	n, err := c.memNotifications.Get(ctx, userID, id)
	if err != nil || c.done {
		return n, err
	}
	c.done = true
	_, _, _, err = c.memNotifications.Complete(ctx, userID, id, c.svc.now(), nil)
	return n, err
}
