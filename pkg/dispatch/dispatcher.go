// Package dispatch runs incident handling asynchronously: the API accepts an
// alert, enqueues it, and a fixed pool of workers drives each incident
// through the coordinator. Submission is non-blocking; a full queue is
// backpressure the caller sees immediately.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/models"
)

const (
	// DefaultWorkerCount is the number of concurrent incident handlers.
	DefaultWorkerCount = 4
	// DefaultQueueDepth bounds pending alerts awaiting a worker.
	DefaultQueueDepth = 64
	// DefaultIncidentTimeout caps one incident end to end.
	DefaultIncidentTimeout = 15 * time.Minute
)

// ErrQueueFull is returned when the pending queue cannot accept more alerts.
var ErrQueueFull = errors.New("alert queue is full")

// ErrStopped is returned when the dispatcher is shutting down.
var ErrStopped = errors.New("dispatcher is stopped")

// Config tunes the dispatcher. Zero values select the defaults.
type Config struct {
	WorkerCount     int
	QueueDepth      int
	IncidentTimeout time.Duration
}

// Handler runs one incident to a terminal state. Implemented by
// *coordinator.Coordinator.
type Handler interface {
	Handle(ctx context.Context, alert models.Alert, mode models.OperatingMode) (coordinator.Result, error)
}

type task struct {
	alert models.Alert
	mode  models.OperatingMode
}

// Dispatcher owns the queue and the worker pool.
type Dispatcher struct {
	cfg    Config
	coord  Handler
	tasks  chan task
	logger *slog.Logger

	mu      sync.Mutex
	active  map[string]context.CancelFunc
	handled int
	stopped bool

	wg sync.WaitGroup
}

// New creates a Dispatcher; call Start before Submit.
func New(cfg Config, coord Handler) *Dispatcher {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.IncidentTimeout <= 0 {
		cfg.IncidentTimeout = DefaultIncidentTimeout
	}
	return &Dispatcher{
		cfg:    cfg,
		coord:  coord,
		tasks:  make(chan task, cfg.QueueDepth),
		logger: slog.Default().With("component", "dispatch"),
		active: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting dispatcher", "workers", d.cfg.WorkerCount, "queue_depth", d.cfg.QueueDepth)
	for i := 0; i < d.cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Submit enqueues an alert for asynchronous handling. Returns ErrQueueFull
// when the queue is at capacity rather than blocking the caller.
func (d *Dispatcher) Submit(alert models.Alert, mode models.OperatingMode) error {
	// The send happens under the mutex: Stop closes d.tasks after flipping
	// stopped under the same lock, so a Submit can never hit a closed channel.
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.tasks <- task{alert: alert, mode: mode}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel aborts a live incident. Returns true when the incident was running.
func (d *Dispatcher) Cancel(incidentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.active[incidentID]; ok {
		cancel()
		return true
	}
	return false
}

// Stop drains nothing: workers finish their current incident, queued alerts
// are abandoned, and Stop returns when every worker has exited.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.tasks)
	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id string) {
	defer d.wg.Done()

	for t := range d.tasks {
		d.handle(ctx, id, t)
	}
}

func (d *Dispatcher) handle(ctx context.Context, workerID string, t task) {
	runCtx, cancel := context.WithTimeout(ctx, d.cfg.IncidentTimeout)
	defer cancel()

	d.mu.Lock()
	d.active[t.alert.ID] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.active, t.alert.ID)
		d.handled++
		d.mu.Unlock()
	}()

	result, err := d.coord.Handle(runCtx, t.alert, t.mode)
	if err != nil {
		d.logger.Error("Incident handling failed",
			"worker", workerID, "incident_id", t.alert.ID, "error", err)
		return
	}
	d.logger.Info("Incident finished",
		"worker", workerID, "incident_id", t.alert.ID, "status", string(result.Status))
}

// Health is a point-in-time snapshot of the dispatcher.
type Health struct {
	Workers    int      `json:"workers"`
	QueueDepth int      `json:"queue_depth"`
	Queued     int      `json:"queued"`
	Active     []string `json:"active_incidents"`
	Handled    int      `json:"handled_total"`
}

// Health reports queue depth and live incidents.
func (d *Dispatcher) Health() Health {
	d.mu.Lock()
	defer d.mu.Unlock()
	active := make([]string, 0, len(d.active))
	for id := range d.active {
		active = append(active, id)
	}
	return Health{
		Workers:    d.cfg.WorkerCount,
		QueueDepth: d.cfg.QueueDepth,
		Queued:     len(d.tasks),
		Active:     active,
		Handled:    d.handled,
	}
}
