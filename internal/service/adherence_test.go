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

func newTestAdherence(t *testing.T) (*AdherenceService, *memMedications, *recordingPublisher, int64) {
	t.Helper()
	repo := newMemMedications()
	med := &model.Medication{UserID: 1, Name: "Aspirin", Times: []string{"08:00"}, Active: true}
	assert.Nil(t, repo.Create(context.Background(), med))

	pub := &recordingPublisher{}
	svc := NewAdherenceService(repo, newMemLocker(), pub, AdherenceConfig{})
	svc.now = fixedClock(testNow)
	return svc, repo, pub, med.ID
}

func logAt(status model.AdherenceStatus, at time.Time) dto.LogAdherenceRequest {
	return dto.LogAdherenceRequest{Status: string(status), Time: &at}
}

func TestRecordSkippedThenCompletedUpgrades(t *testing.T) {
	svc, repo, pub, medID := newTestAdherence(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusSkipped, testNow))
	assert.Nil(t, err)
	assert.DeepEqual(t, OutcomeCreated, first.Outcome)

	second, err := svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusCompleted, testNow.Add(time.Hour)))
	assert.Nil(t, err)
	assert.DeepEqual(t, OutcomeUpgraded, second.Outcome)
	assert.DeepEqual(t, first.Entry.ID, second.Entry.ID)

	assert.DeepEqual(t, 1, len(repo.history))
	assert.DeepEqual(t, model.AdherenceStatusCompleted, repo.history[0].Status)
	assert.DeepEqual(t, testNow.Add(time.Hour), repo.history[0].Time)
	assert.DeepEqual(t, 2, len(pub.adherence))
}

func TestRecordCompletedThenSkippedConflicts(t *testing.T) {
	svc, repo, _, medID := newTestAdherence(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusCompleted, testNow))
	assert.Nil(t, err)

	_, err = svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusSkipped, testNow.Add(30*time.Minute)))
	var conflict *AdherenceConflictError
	assert.Assert(t, errors.As(err, &conflict))
	assert.Assert(t, errors.Is(err, pkgerrors.AdherenceDowngrade))
	assert.DeepEqual(t, model.AdherenceStatusCompleted, conflict.Existing.Status)

	assert.DeepEqual(t, 1, len(repo.history))
	assert.DeepEqual(t, model.AdherenceStatusCompleted, repo.history[0].Status)
	assert.DeepEqual(t, testNow, repo.history[0].Time)
}

func TestRecordDuplicateConflicts(t *testing.T) {
	svc, _, _, medID := newTestAdherence(t)
	ctx := context.Background()

	first, err := svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusCompleted, testNow))
	assert.Nil(t, err)

	_, err = svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusCompleted, testNow.Add(-90*time.Minute)))
	var conflict *AdherenceConflictError
	assert.Assert(t, errors.As(err, &conflict))
	assert.Assert(t, errors.Is(err, pkgerrors.AdherenceDuplicate))
	assert.DeepEqual(t, first.Entry.ID, conflict.Existing.ID)
}

func TestRecordOutsideWindowCreates(t *testing.T) {
	svc, repo, _, medID := newTestAdherence(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusCompleted, testNow))
	assert.Nil(t, err)
	res, err := svc.Record(ctx, 1, medID, logAt(model.AdherenceStatusCompleted, testNow.Add(3*time.Hour)))
	assert.Nil(t, err)
	assert.DeepEqual(t, OutcomeCreated, res.Outcome)
	assert.DeepEqual(t, 2, len(repo.history))
}

func TestRecordUnknownMedication(t *testing.T) {
	svc, _, _, _ := newTestAdherence(t)
	_, err := svc.Record(context.Background(), 1, 999, logAt(model.AdherenceStatusCompleted, testNow))
	assert.Assert(t, errors.Is(err, pkgerrors.MedicationNotFound))

	_, err = svc.Record(context.Background(), 2, 1, logAt(model.AdherenceStatusCompleted, testNow))
	assert.Assert(t, errors.Is(err, pkgerrors.MedicationNotFound))
}

func TestRecordDefaultsToNow(t *testing.T) {
	svc, _, _, medID := newTestAdherence(t)
	res, err := svc.Record(context.Background(), 1, medID, dto.LogAdherenceRequest{Status: string(model.AdherenceStatusCompleted)})
	assert.Nil(t, err)
	assert.DeepEqual(t, testNow, res.Entry.Time)
}

func TestRecordBusyLock(t *testing.T) {
	svc, _, _, medID := newTestAdherence(t)
	svc.cfg.LockTimeout = 100 * time.Millisecond
	locker := svc.locker.(*memLocker)
	locker.held["adherence:1"] = true

	_, err := svc.Record(context.Background(), 1, medID, logAt(model.AdherenceStatusCompleted, testNow))
	assert.Assert(t, errors.Is(err, pkgerrors.AdherenceLockFailed))
}
