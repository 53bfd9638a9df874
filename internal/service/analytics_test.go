package service

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"

	"HydroMed/internal/analytics"
	"HydroMed/internal/model"
)

func newTestAnalytics() (*AnalyticsService, *memHydration, *memMedications, *memNotifications, *memReportCache) {
	hydration := newMemHydration()
	meds := newMemMedications()
	notifications := newMemNotifications()
	cache := newMemReportCache()
	svc := NewAnalyticsService(hydration, meds, notifications, cache)
	svc.now = fixedClock(testNow)
	return svc, hydration, meds, notifications, cache
}

func TestReportCardIsCachedUntilInvalidated(t *testing.T) {
	svc, hydration, _, _, cache := newTestAnalytics()
	ctx := context.Background()

	_ = hydration.AddEntry(ctx, &model.HydrationEntry{UserID: 1, AmountML: 7000, Timestamp: testNow.Add(-time.Hour)})

	card, err := svc.ReportCard(ctx, 1)
	assert.Nil(t, err)
	assert.DeepEqual(t, 50.0, card.Hydration.Pct)
	assert.Assert(t, card.Medication == nil)
	assert.DeepEqual(t, 0, cache.hits)

	_ = hydration.AddEntry(ctx, &model.HydrationEntry{UserID: 1, AmountML: 7000, Timestamp: testNow.Add(-time.Minute)})
	cached, err := svc.ReportCard(ctx, 1)
	assert.Nil(t, err)
	assert.DeepEqual(t, 50.0, cached.Hydration.Pct)
	assert.DeepEqual(t, 1, cache.hits)

	assert.Nil(t, svc.InvalidateReport(ctx, 1))
	fresh, err := svc.ReportCard(ctx, 1)
	assert.Nil(t, err)
	assert.DeepEqual(t, 100.0, fresh.Hydration.Pct)
}

func TestReportCardUsesSavedGoal(t *testing.T) {
	svc, hydration, _, _, _ := newTestAnalytics()
	ctx := context.Background()

	_ = hydration.SaveSettings(ctx, &model.HydrationSettings{UserID: 1, GoalML: 1000})
	_ = hydration.AddEntry(ctx, &model.HydrationEntry{UserID: 1, AmountML: 7000, Timestamp: testNow.Add(-time.Hour)})

	card, err := svc.ReportCard(ctx, 1)
	assert.Nil(t, err)
	assert.DeepEqual(t, 1000, card.GoalML)
	assert.DeepEqual(t, 100.0, card.Hydration.Pct)
}

func TestPatternsCombineHistoryAndMissedNotifications(t *testing.T) {
	svc, _, meds, notifications, _ := newTestAnalytics()
	ctx := context.Background()

	med := &model.Medication{UserID: 1, Name: "Metformin", Times: []string{"21:00"}, Active: true}
	_ = meds.Create(ctx, med)

	base := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	for d := 0; d < 2; d++ {
		meds.history = append(meds.history, &model.MedicationHistoryEntry{
			UserID: 1, MedicationID: med.ID, Status: model.AdherenceStatusCompleted, Time: base.AddDate(0, 0, d),
		})
	}
	for d := 2; d < 5; d++ {
		medID := med.ID
		_ = notifications.Create(ctx, &model.Notification{
			UserID:                1,
			Type:                  model.NotificationTypeMedication,
			Status:                model.NotificationStatusMissed,
			MedicationID:          &medID,
			ScheduledTime:         base.AddDate(0, 0, d),
			OriginalScheduledTime: base.AddDate(0, 0, d),
		})
	}

	patterns, err := svc.Patterns(ctx, 1, 0, time.UTC)
	assert.Nil(t, err)

	var hours []analytics.Pattern
	for _, p := range patterns {
		if p.Kind == analytics.PatternHour {
			hours = append(hours, p)
		}
	}
	assert.DeepEqual(t, 1, len(hours))
	assert.DeepEqual(t, "Metformin", hours[0].MedicationName)
	assert.DeepEqual(t, 3, hours[0].Missed)
	assert.DeepEqual(t, 5, hours[0].Total)
}

func TestSnoozesEmptyIsNotNil(t *testing.T) {
	svc, _, _, _, _ := newTestAnalytics()
	suggestions, err := svc.Snoozes(context.Background(), 1, 0, time.UTC)
	assert.Nil(t, err)
	assert.NotNil(t, suggestions)
	assert.DeepEqual(t, 0, len(suggestions))
}
