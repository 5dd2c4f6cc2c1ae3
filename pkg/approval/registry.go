// Package approval holds pending approval requests and wakes the single
// waiter per request when a human decides (or the timeout fires).
package approval

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// Errors returned by the registry.
var (
	// ErrNotFound means no request with that id exists (or it was swept).
	ErrNotFound = errors.New("approval request not found")
	// ErrAlreadyDecided means the request already left pending; the call is
	// a no-op.
	ErrAlreadyDecided = errors.New("approval request already decided")
	// ErrDuplicateWaiter means a waiter is already attached to the id.
	ErrDuplicateWaiter = errors.New("approval request already has a waiter")
)

// Defaults for registry housekeeping.
const (
	DefaultRetention     = 24 * time.Hour
	DefaultSweepInterval = 10 * time.Minute
)

// Config tunes the registry. Zero values select the defaults.
type Config struct {
	// Retention is how long decided/expired records are kept for dashboards.
	Retention time.Duration
	// SweepInterval is how often the sweeper scans for stale records.
	SweepInterval time.Duration
}

// Registry is the process-wide approval store. Safe for concurrent use.
// Exactly one waiter may be attached per request id.
type Registry struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]*entry
}

type entry struct {
	req   models.ApprovalRequest
	done  chan models.ApprovalStatus // closed after the decision is sent
	timer *time.Timer
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{cfg: cfg, pending: make(map[string]*entry)}
}

// Ticket is the wait handle returned by Submit. Done receives exactly one
// terminal status and is then closed.
type Ticket struct {
	ID   string
	Done <-chan models.ApprovalStatus
}

// Submit inserts a pending request and returns its wait handle. The request
// expires automatically at req.TimeoutAt.
func (r *Registry) Submit(req models.ApprovalRequest) (*Ticket, error) {
	if req.Status == "" {
		req.Status = models.ApprovalPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[req.ID]; exists {
		return nil, ErrDuplicateWaiter
	}

	e := &entry{
		req:  req,
		done: make(chan models.ApprovalStatus, 1),
	}
	if d := time.Until(req.TimeoutAt); d > 0 {
		e.timer = time.AfterFunc(d, func() { r.expire(req.ID) })
	} else {
		// Already past its deadline — resolve immediately.
		e.req.Status = models.ApprovalExpired
		e.done <- models.ApprovalExpired
		close(e.done)
	}
	r.pending[req.ID] = e

	return &Ticket{ID: req.ID, Done: e.done}, nil
}

// Await blocks until the request is decided, expires, or ctx is cancelled.
// Context cancellation resolves the wait as expired so the caller never
// executes an unapproved action.
func (r *Registry) Await(ctx context.Context, t *Ticket) models.ApprovalStatus {
	select {
	case status, ok := <-t.Done:
		if !ok {
			return models.ApprovalExpired
		}
		return status
	case <-ctx.Done():
		return models.ApprovalExpired
	}
}

// Approve marks the request approved and wakes its waiter. One-shot: a second
// call returns ErrAlreadyDecided and changes nothing.
func (r *Registry) Approve(id, comment string) error {
	return r.decide(id, models.ApprovalApproved, comment)
}

// Reject marks the request rejected and wakes its waiter. One-shot.
func (r *Registry) Reject(id, comment string) error {
	return r.decide(id, models.ApprovalRejected, comment)
}

// Get returns a snapshot of one request, lazily expiring it if overdue.
func (r *Registry) Get(id string) (models.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.pending[id]
	if !ok {
		return models.ApprovalRequest{}, ErrNotFound
	}
	r.lazyExpireLocked(e)
	return e.req, nil
}

// List returns all requests still pending, lazily expiring overdue ones.
// Intended for the approvals dashboard.
func (r *Registry) List() []models.ApprovalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ApprovalRequest, 0, len(r.pending))
	for _, e := range r.pending {
		r.lazyExpireLocked(e)
		if e.req.Status == models.ApprovalPending {
			out = append(out, e.req)
		}
	}
	return out
}

// StartSweeper launches the background goroutine that removes records older
// than the retention window. It stops when ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := r.sweep(time.Now())
				if removed > 0 {
					slog.Debug("Swept stale approval requests", "removed", removed)
				}
			}
		}
	}()
}

// decide applies a terminal status. Callers treat ErrAlreadyDecided as a
// no-op success for idempotency.
func (r *Registry) decide(id string, status models.ApprovalStatus, comment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[id]
	if !ok {
		return ErrNotFound
	}
	r.lazyExpireLocked(e)
	if e.req.Status.Terminal() {
		return ErrAlreadyDecided
	}

	e.req.Status = status
	e.req.Comments = comment
	if e.timer != nil {
		e.timer.Stop()
	}
	e.done <- status
	close(e.done)

	slog.Info("Approval request decided", "id", id, "status", status)
	return nil
}

// expire is the timer callback: transition pending → expired and wake the waiter.
func (r *Registry) expire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.pending[id]
	if !ok || e.req.Status.Terminal() {
		return
	}
	e.req.Status = models.ApprovalExpired
	e.done <- models.ApprovalExpired
	close(e.done)
	slog.Info("Approval request expired", "id", id)
}

// lazyExpireLocked transitions an overdue pending request to expired on
// observation, covering timer scheduling gaps. Caller holds r.mu.
func (r *Registry) lazyExpireLocked(e *entry) {
	if e.req.Status != models.ApprovalPending {
		return
	}
	if !e.req.TimeoutAt.IsZero() && time.Now().After(e.req.TimeoutAt) {
		e.req.Status = models.ApprovalExpired
		if e.timer != nil {
			e.timer.Stop()
		}
		e.done <- models.ApprovalExpired
		close(e.done)
	}
}

// sweep removes terminal records whose deadline is older than the retention
// window. Returns the number removed.
func (r *Registry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for id, e := range r.pending {
		r.lazyExpireLocked(e)
		if !e.req.Status.Terminal() {
			continue
		}
		cutoff := e.req.TimeoutAt
		if cutoff.IsZero() {
			cutoff = e.req.RequestedAt
		}
		if now.Sub(cutoff) > r.cfg.Retention {
			delete(r.pending, id)
			removed++
		}
	}
	return removed
}
