// Package breaker implements the pipeline circuit breaker. It tracks
// consecutive execution failures across incidents: the circuit opens on a
// failure threshold, half-opens after a cooldown, and closes again after a
// success quorum.
package breaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the breaker position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Defaults for the breaker thresholds.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultCooldown         = 300 * time.Second
)

// Config tunes the breaker. Zero values select the defaults.
type Config struct {
	// FailureThreshold opens the circuit when the failure counter reaches it.
	FailureThreshold int
	// SuccessThreshold closes a half-open circuit after this many successes.
	SuccessThreshold int
	// Cooldown is how long an open circuit waits before probing half-open.
	Cooldown time.Duration

	// now overrides the clock in tests.
	now func() time.Time
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// Snapshot is an immutable view of the breaker state.
type Snapshot struct {
	State        State      `json:"state"`
	FailureCount int        `json:"failure_count"`
	SuccessCount int        `json:"success_count"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a new execution may proceed. An open circuit whose
// cooldown has elapsed transitions to half-open and allows the probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.cfg.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.transition(StateHalfOpen)
			b.successes = 0
			return true
		}
		return false
	}
	return false
}

// RecordSuccess feeds a successful execution into the state machine.
// Closed: the failure counter decrements toward zero (one success does not
// erase a failure streak). Half-open: the success counter increments and the
// circuit closes once the quorum is met.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure feeds a failed execution into the state machine. A half-open
// circuit re-opens immediately; a closed circuit opens once the failure
// counter reaches the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.openedAt = b.cfg.now()
		}
	case StateHalfOpen:
		b.transition(StateOpen)
		b.openedAt = b.cfg.now()
	}
}

// Reset forces the breaker closed. Used by the explicit AUTO-mode override.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = 0
	b.successes = 0
	b.openedAt = time.Time{}
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	snap := Snapshot{
		State:        b.state,
		FailureCount: b.failures,
		SuccessCount: b.successes,
	}
	if !b.openedAt.IsZero() {
		t := b.openedAt
		snap.OpenedAt = &t
	}
	return snap
}

// transition logs state changes; callers hold b.mu.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	slog.Info("Circuit breaker state change", "from", b.state, "to", to,
		"failures", b.failures)
	b.state = to
}
