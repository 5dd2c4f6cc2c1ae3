package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// blockingHandler records handled alerts and optionally blocks until released.
type blockingHandler struct {
	mu      sync.Mutex
	handled []string
	block   chan struct{} // nil means do not block
}

func (h *blockingHandler) Handle(ctx context.Context, alert models.Alert, _ models.OperatingMode) (coordinator.Result, error) {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return coordinator.Result{}, ctx.Err()
		}
	}
	h.mu.Lock()
	h.handled = append(h.handled, alert.ID)
	h.mu.Unlock()
	return coordinator.Result{Status: models.StatusAnalyzed, IncidentID: alert.ID}, nil
}

func (h *blockingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func alertWith(id string) models.Alert {
	return models.Alert{ID: id, Service: "api", Severity: "high", Description: "x", Timestamp: time.Now()}
}

func TestSubmitHandlesAsynchronously(t *testing.T) {
	h := &blockingHandler{}
	d := New(Config{WorkerCount: 2}, h)
	d.Start(context.Background())

	require.NoError(t, d.Submit(alertWith("a1"), models.ModePlan))
	require.NoError(t, d.Submit(alertWith("a2"), models.ModePlan))
	d.Stop()

	assert.Equal(t, 2, h.count())
	assert.Equal(t, 2, d.Health().Handled)
}

func TestSubmitQueueFull(t *testing.T) {
	release := make(chan struct{})
	h := &blockingHandler{block: release}
	d := New(Config{WorkerCount: 1, QueueDepth: 1}, h)
	d.Start(context.Background())

	// First alert occupies the worker, second fills the queue.
	require.NoError(t, d.Submit(alertWith("a1"), models.ModeAuto))
	require.Eventually(t, func() bool {
		return len(d.Health().Active) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, d.Submit(alertWith("a2"), models.ModeAuto))

	err := d.Submit(alertWith("a3"), models.ModeAuto)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	d.Stop()
}

func TestCancelAbortsLiveIncident(t *testing.T) {
	h := &blockingHandler{block: make(chan struct{})} // never released
	d := New(Config{WorkerCount: 1}, h)
	d.Start(context.Background())

	require.NoError(t, d.Submit(alertWith("a1"), models.ModeAuto))
	require.Eventually(t, func() bool {
		return d.Cancel("a1")
	}, time.Second, 5*time.Millisecond)

	d.Stop()
	assert.Equal(t, 0, h.count(), "cancelled incident never completed")
	assert.False(t, d.Cancel("a1"), "finished incidents cannot be cancelled")
}

func TestSubmitAfterStop(t *testing.T) {
	d := New(Config{WorkerCount: 1}, &blockingHandler{})
	d.Start(context.Background())
	d.Stop()

	assert.ErrorIs(t, d.Submit(alertWith("a1"), models.ModePlan), ErrStopped)
}

func TestSubmitRacingStopDoesNotPanic(t *testing.T) {
	d := New(Config{WorkerCount: 2, QueueDepth: 4}, &blockingHandler{})
	d.Start(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; ; j++ {
				err := d.Submit(alertWith(fmt.Sprintf("a%d-%d", n, j)), models.ModePlan)
				if err == ErrStopped {
					return
				}
			}
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	d.Stop()
	wg.Wait()

	assert.ErrorIs(t, d.Submit(alertWith("late"), models.ModePlan), ErrStopped)
}
