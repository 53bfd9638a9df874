package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"

	"HydroMed/internal/model"
	"HydroMed/internal/model/dto"
	pkgerrors "HydroMed/pkg/errors"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestNotificationService(cfg NotificationConfig) (*NotificationService, *memNotifications, *recordingPublisher) {
	repo := newMemNotifications()
	pub := &recordingPublisher{}
	svc := NewNotificationService(repo, pub, cfg)
	svc.now = fixedClock(testNow)
	return svc, repo, pub
}

func defaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		DefaultInterval:      60 * time.Minute,
		MissedThreshold:      30 * time.Minute,
		SnoozeAllowCompleted: true,
	}
}

func TestCreateRejectsPayloadMismatch(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())

	_, err := svc.Create(context.Background(), 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow,
		Payload: model.NotificationPayload{
			Medication: &model.MedicationPayload{MedicationID: 9},
		},
	})
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationPayloadType))
}

func TestCreateMedicationSetsMedicationID(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())

	n, err := svc.Create(context.Background(), 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeMedication),
		Title:         "Aspirin",
		ScheduledTime: testNow,
		Payload: model.NotificationPayload{
			Medication: &model.MedicationPayload{MedicationID: 9, Name: "Aspirin"},
		},
	})
	assert.Nil(t, err)
	assert.NotNil(t, n.MedicationID)
	assert.DeepEqual(t, int64(9), *n.MedicationID)
	assert.DeepEqual(t, model.NotificationStatusScheduled, n.Status)
	assert.DeepEqual(t, testNow, n.OriginalScheduledTime)
}

func TestCompleteHydrationChainsOnce(t *testing.T) {
	svc, repo, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, err := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow.Add(-5 * time.Minute),
		Payload:       model.NotificationPayload{Hydration: &model.HydrationPayload{AmountML: 250, IntervalMinutes: 45}},
	})
	assert.Nil(t, err)

	res, err := svc.Complete(ctx, 1, n.ID)
	assert.Nil(t, err)
	assert.DeepEqual(t, model.NotificationStatusCompleted, res.Notification.Status)
	assert.NotNil(t, res.Next)
	assert.DeepEqual(t, testNow.Add(45*time.Minute), res.Next.ScheduledTime)
	assert.DeepEqual(t, model.NotificationStatusScheduled, res.Next.Status)
	assert.DeepEqual(t, 250, res.Next.Payload.Hydration.AmountML)

	again, err := svc.Complete(ctx, 1, n.ID)
	assert.Nil(t, err)
	assert.Assert(t, again.Next == nil)
	assert.DeepEqual(t, 2, len(repo.rows))
}

func TestCompleteHydrationUsesDefaultInterval(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow,
	})
	res, err := svc.Complete(ctx, 1, n.ID)
	assert.Nil(t, err)
	assert.DeepEqual(t, testNow.Add(time.Hour), res.Next.ScheduledTime)
}

func TestCompleteMedicationDoesNotChain(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeMedication),
		Title:         "Aspirin",
		ScheduledTime: testNow,
		Payload:       model.NotificationPayload{Medication: &model.MedicationPayload{MedicationID: 2}},
	})
	res, err := svc.Complete(ctx, 1, n.ID)
	assert.Nil(t, err)
	assert.Assert(t, res.Next == nil)
}

func TestCompleteOtherUserIsNotFound(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow,
	})
	_, err := svc.Complete(ctx, 2, n.ID)
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationNotFound))
}

func TestSnoozeCompleted(t *testing.T) {
	ctx := context.Background()

	allowed, _, _ := newTestNotificationService(defaultNotificationConfig())
	n, _ := allowed.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeMedication),
		Title:         "Aspirin",
		ScheduledTime: testNow,
		Payload:       model.NotificationPayload{Medication: &model.MedicationPayload{MedicationID: 2}},
	})
	_, err := allowed.Complete(ctx, 1, n.ID)
	assert.Nil(t, err)

	snoozed, err := allowed.Snooze(ctx, 1, n.ID, 15)
	assert.Nil(t, err)
	assert.DeepEqual(t, model.NotificationStatusScheduled, snoozed.Status)
	assert.DeepEqual(t, testNow.Add(15*time.Minute), snoozed.ScheduledTime)
	assert.DeepEqual(t, testNow, snoozed.OriginalScheduledTime)
	assert.DeepEqual(t, 1, snoozed.SnoozeCount)
	assert.Assert(t, snoozed.CompletedAt == nil)

	cfg := defaultNotificationConfig()
	cfg.SnoozeAllowCompleted = false
	blocked, _, _ := newTestNotificationService(cfg)
	n2, _ := blocked.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow,
	})
	_, _ = blocked.Complete(ctx, 1, n2.ID)
	_, err = blocked.Snooze(ctx, 1, n2.ID, 15)
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationSnoozeBlocked))
}

func TestUpdateToMissedSetsTimestamp(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow,
	})
	status := string(model.NotificationStatusMissed)
	moved := testNow.Add(time.Hour)
	updated, err := svc.Update(ctx, 1, n.ID, dto.UpdateNotificationRequest{Status: &status, ScheduledTime: &moved})
	assert.Nil(t, err)
	assert.DeepEqual(t, model.NotificationStatusMissed, updated.Status)
	assert.DeepEqual(t, moved, updated.ScheduledTime)
	assert.NotNil(t, updated.MissedAt)
}

func TestSweepMarksOnlyOverdue(t *testing.T) {
	svc, repo, pub := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	late, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "late",
		ScheduledTime: testNow.Add(-40 * time.Minute),
	})
	recent, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "recent",
		ScheduledTime: testNow.Add(-10 * time.Minute),
	})
	other, _ := svc.Create(ctx, 2, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "other user",
		ScheduledTime: testNow.Add(-2 * time.Hour),
	})

	ids, err := svc.Sweep(ctx, 1, 0)
	assert.Nil(t, err)
	assert.DeepEqual(t, []int64{late.ID}, ids)
	assert.DeepEqual(t, model.NotificationStatusMissed, repo.rows[late.ID].Status)
	assert.DeepEqual(t, model.NotificationStatusScheduled, repo.rows[recent.ID].Status)
	assert.DeepEqual(t, model.NotificationStatusScheduled, repo.rows[other.ID].Status)
	assert.DeepEqual(t, 1, len(pub.missed))
	assert.DeepEqual(t, int64(1), pub.missed[0].UserID)

	ids, err = svc.Sweep(ctx, 1, 0)
	assert.Nil(t, err)
	assert.DeepEqual(t, 0, len(ids))
}

func TestDeleteUnknownIsNotFound(t *testing.T) {
	svc, _, _ := newTestNotificationService(defaultNotificationConfig())
	err := svc.Delete(context.Background(), 1, 42)
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationNotFound))
}

func TestUpdateRejectsBackwardTransitions(t *testing.T) {
	svc, repo, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeMedication),
		Title:         "Aspirin",
		ScheduledTime: testNow.Add(-40 * time.Minute),
		Payload:       model.NotificationPayload{Medication: &model.MedicationPayload{MedicationID: 2}},
	})
	ids, err := svc.Sweep(ctx, 1, 30*time.Minute)
	assert.Nil(t, err)
	assert.DeepEqual(t, []int64{n.ID}, ids)

	scheduled := string(model.NotificationStatusScheduled)
	_, err = svc.Update(ctx, 1, n.ID, dto.UpdateNotificationRequest{Status: &scheduled})
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationTransition))
	assert.DeepEqual(t, model.NotificationStatusMissed, repo.rows[n.ID].Status)

	_, err = svc.Complete(ctx, 1, n.ID)
	assert.Nil(t, err)

	missed := string(model.NotificationStatusMissed)
	_, err = svc.Update(ctx, 1, n.ID, dto.UpdateNotificationRequest{Status: &missed})
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationTransition))
	_, err = svc.Update(ctx, 1, n.ID, dto.UpdateNotificationRequest{Status: &scheduled})
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationTransition))

	row := repo.rows[n.ID]
	assert.DeepEqual(t, model.NotificationStatusCompleted, row.Status)
	assert.NotNil(t, row.CompletedAt)
}

func TestUpdateMissedCanStillComplete(t *testing.T) {
	svc, repo, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeMedication),
		Title:         "Aspirin",
		ScheduledTime: testNow.Add(-40 * time.Minute),
		Payload:       model.NotificationPayload{Medication: &model.MedicationPayload{MedicationID: 2}},
	})
	_, _ = svc.Sweep(ctx, 1, 0)

	completed := string(model.NotificationStatusCompleted)
	updated, err := svc.Update(ctx, 1, n.ID, dto.UpdateNotificationRequest{Status: &completed})
	assert.Nil(t, err)
	assert.DeepEqual(t, model.NotificationStatusCompleted, updated.Status)
	assert.DeepEqual(t, model.NotificationStatusCompleted, repo.rows[n.ID].Status)
}

func TestUpdateIsConditionalOnReadStatus(t *testing.T) {
	svc, repo, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow,
	})

	// 读取之后、写入之前被并发完成
	racing := &completeAfterGet{memNotifications: repo, svc: svc}
	svc.repo = racing

	missed := string(model.NotificationStatusMissed)
	_, err := svc.Update(ctx, 1, n.ID, dto.UpdateNotificationRequest{Status: &missed})
	assert.Assert(t, errors.Is(err, pkgerrors.NotificationTransition))
	assert.DeepEqual(t, model.NotificationStatusCompleted, repo.rows[n.ID].Status)
	assert.Assert(t, repo.rows[n.ID].MissedAt == nil)
}

func TestSnoozeRevertsMissedAndCountsUp(t *testing.T) {
	svc, repo, _ := newTestNotificationService(defaultNotificationConfig())
	ctx := context.Background()

	n, _ := svc.Create(ctx, 1, dto.CreateNotificationRequest{
		Type:          string(model.NotificationTypeHydration),
		Title:         "Drink water",
		ScheduledTime: testNow.Add(-time.Hour),
	})
	_, _ = svc.Sweep(ctx, 1, 0)

	first, err := svc.Snooze(ctx, 1, n.ID, 10)
	assert.Nil(t, err)
	assert.DeepEqual(t, model.NotificationStatusScheduled, first.Status)
	assert.Assert(t, first.MissedAt == nil)

	second, err := svc.Snooze(ctx, 1, n.ID, 20)
	assert.Nil(t, err)
	assert.DeepEqual(t, 2, second.SnoozeCount)
	assert.DeepEqual(t, testNow.Add(20*time.Minute), repo.rows[n.ID].ScheduledTime)
}
