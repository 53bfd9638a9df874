package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"HydroMed/internal/analytics"
	"HydroMed/internal/model"
	"HydroMed/internal/repository"
	"HydroMed/pkg/logger"
)

const (
	defaultPatternDays = 30
	defaultSnoozeDays  = 7
)

// AnalyticsService 周报、漏服模式与推迟分析
type AnalyticsService struct {
	hydration     repository.HydrationRepository
	medications   repository.MedicationRepository
	notifications repository.NotificationRepository
	cache         ReportCache
	now           func() time.Time
}

func NewAnalyticsService(
	hydration repository.HydrationRepository,
	medications repository.MedicationRepository,
	notifications repository.NotificationRepository,
	cache ReportCache,
) *AnalyticsService {
	return &AnalyticsService{
		hydration:     hydration,
		medications:   medications,
		notifications: notifications,
		cache:         cache,
		now:           time.Now,
	}
}

// ReportCard 最近 7 天周报，优先读缓存
func (s *AnalyticsService) ReportCard(ctx context.Context, userID int64) (*analytics.ReportCard, error) {
	if card, ok := s.cache.Get(ctx, userID); ok {
		return card, nil
	}

	now := s.now()
	since := now.AddDate(0, 0, -7)

	goalML := defaultGoalML
	if st, err := s.hydration.GetSettings(ctx, userID); err == nil {
		goalML = st.GoalML
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to load hydration settings: %w", err)
	}

	entries, err := s.hydration.EntriesBetween(ctx, userID, since, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load hydration entries: %w", err)
	}
	meds, err := s.medications.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}
	history, err := s.medications.HistorySince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load medication history: %w", err)
	}

	card := analytics.WeeklyReportCard(analytics.ReportInput{
		Now:         now,
		GoalML:      goalML,
		Hydration:   entries,
		Medications: meds,
		History:     history,
	})
	s.cache.Set(ctx, userID, &card)
	return &card, nil
}

// Patterns 最近 days 天（默认 30）的星期/小时漏服模式，按用户所在时区 loc 分桶
func (s *AnalyticsService) Patterns(ctx context.Context, userID int64, days int, loc *time.Location) ([]analytics.Pattern, error) {
	if days <= 0 {
		days = defaultPatternDays
	}
	since := s.now().AddDate(0, 0, -days)

	history, err := s.medications.HistorySince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load medication history: %w", err)
	}
	ns, err := s.notifications.ListSince(ctx, userID, model.NotificationTypeMedication, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load medication notifications: %w", err)
	}
	names, err := s.medicationNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	events := append(analytics.EventsFromHistory(history), analytics.EventsFromMissedNotifications(ns)...)
	patterns := analytics.DetectPatterns(events, names, loc)
	if patterns == nil {
		patterns = []analytics.Pattern{}
	}
	return patterns, nil
}

// Snoozes 最近 days 天（默认 7）被连续推迟的用药时间，时刻按 loc 展示
func (s *AnalyticsService) Snoozes(ctx context.Context, userID int64, days int, loc *time.Location) ([]analytics.SnoozeSuggestion, error) {
	if days <= 0 {
		days = defaultSnoozeDays
	}
	since := s.now().AddDate(0, 0, -days)

	ns, err := s.notifications.ListSince(ctx, userID, model.NotificationTypeMedication, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load medication notifications: %w", err)
	}
	names, err := s.medicationNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	suggestions := analytics.AnalyzeSnoozes(ns, names, loc)
	if suggestions == nil {
		suggestions = []analytics.SnoozeSuggestion{}
	}
	return suggestions, nil
}

// InvalidateReport 事件消费者调用，使周报缓存失效
func (s *AnalyticsService) InvalidateReport(ctx context.Context, userID int64) error {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("failed to invalidate report cache: %w", err)
	}
	logger.Logger.Debug("Report cache invalidated", zap.Int64("user_id", userID))
	return nil
}

func (s *AnalyticsService) medicationNames(ctx context.Context, userID int64) (map[int64]string, error) {
	meds, err := s.medications.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}
	names := make(map[int64]string, len(meds))
	for _, m := range meds {
		names[m.ID] = m.Name
	}
	return names, nil
}
