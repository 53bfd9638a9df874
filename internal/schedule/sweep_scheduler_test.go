package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/test/assert"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	userIDs []int64
	ids     []int64
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSweeper) Sweep(ctx context.Context, userID int64, threshold time.Duration) ([]int64, error) {
	f.mu.Lock()
	f.calls++
	f.userIDs = append(f.userIDs, userID)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.ids, f.err
}

type fakeLocker struct {
	held       map[string]bool
	err        error
	unlockKeys []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error {
	delete(l.held, key)
	l.unlockKeys = append(l.unlockKeys, key)
	return nil
}

func TestRunOnceSweepsAllUsersAndReleasesLock(t *testing.T) {
	sweeper := &fakeSweeper{ids: []int64{1, 2, 3}}
	locker := &fakeLocker{held: map[string]bool{}}
	s := NewSweepScheduler(sweeper, locker, zap.NewNop(), 0)

	n, err := s.RunOnce(context.Background())
	assert.Nil(t, err)
	assert.DeepEqual(t, 3, n)
	assert.DeepEqual(t, []int64{0}, sweeper.userIDs)
	assert.DeepEqual(t, []string{sweepLockKey}, locker.unlockKeys)
	assert.Assert(t, !locker.held[sweepLockKey])
	assert.Assert(t, !s.LastRunTime().IsZero())
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	sweeper := &fakeSweeper{}
	locker := &fakeLocker{held: map[string]bool{sweepLockKey: true}}
	s := NewSweepScheduler(sweeper, locker, zap.NewNop(), time.Minute)

	n, err := s.RunOnce(context.Background())
	assert.Nil(t, err)
	assert.DeepEqual(t, 0, n)
	assert.DeepEqual(t, 0, sweeper.calls)
	assert.Assert(t, s.LastRunTime().IsZero())
}

func TestRunOnceProceedsWhenLockUnavailable(t *testing.T) {
	sweeper := &fakeSweeper{ids: []int64{9}}
	locker := &fakeLocker{held: map[string]bool{}, err: errors.New("redis down")}
	s := NewSweepScheduler(sweeper, locker, zap.NewNop(), time.Minute)

	n, err := s.RunOnce(context.Background())
	assert.Nil(t, err)
	assert.DeepEqual(t, 1, n)
	assert.DeepEqual(t, 0, len(locker.unlockKeys))
}

func TestRunOnceReturnsSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	s := NewSweepScheduler(sweeper, nil, zap.NewNop(), time.Minute)

	_, err := s.RunOnce(context.Background())
	assert.NotNil(t, err)
}

func TestRunOnceSkipsOverlappingRun(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{}), started: make(chan struct{})}
	s := NewSweepScheduler(sweeper, nil, zap.NewNop(), time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunOnce(context.Background())
	}()
	<-sweeper.started

	n, err := s.RunOnce(context.Background())
	assert.Nil(t, err)
	assert.DeepEqual(t, 0, n)

	close(sweeper.block)
	<-done
	assert.DeepEqual(t, 1, sweeper.calls)
}
