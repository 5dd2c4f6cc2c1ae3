package cleanup

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	calls atomic.Int64
	err   error
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	f.calls.Add(1)
	return 2, f.err
}

func TestSweepRunsImmediatelyAndOnTicker(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(Config{MaxAge: time.Hour, SweepInterval: 20 * time.Millisecond}, pruner)
	require.NotNil(t, svc)

	svc.Start(context.Background())
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		return pruner.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSweepErrorDoesNotStopLoop(t *testing.T) {
	pruner := &fakePruner{err: errors.New("connection refused")}
	svc := NewService(Config{MaxAge: time.Hour, SweepInterval: 10 * time.Millisecond}, pruner)

	svc.Start(context.Background())
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		return pruner.calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestNilPrunerDisablesService(t *testing.T) {
	svc := NewService(Config{MaxAge: time.Hour, SweepInterval: time.Minute}, nil)
	require.Nil(t, svc)

	// nil receiver is a no-op, not a panic
	svc.Start(context.Background())
	svc.Stop()
}

func TestStopWaitsForLoopExit(t *testing.T) {
	pruner := &fakePruner{}
	svc := NewService(Config{MaxAge: time.Hour, SweepInterval: time.Minute}, pruner)

	svc.Start(context.Background())
	svc.Stop()

	got := pruner.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, got, pruner.calls.Load())
}
