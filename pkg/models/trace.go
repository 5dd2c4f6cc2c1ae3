package models

import (
	"sync"
	"time"
)

// Stage identifies where in the pipeline a trace entry was produced.
type Stage string

const (
	StageReceived         Stage = "received"
	StageClassifying      Stage = "classifying"
	StageGatheringContext Stage = "gathering_context"
	StageAnalyzing        Stage = "analyzing"
	StagePlanning         Stage = "planning"
	StageGating           Stage = "gating"
	StageExecuting        Stage = "executing"
	StageVerifying        Stage = "verifying"
	StageComplete         Stage = "complete"
	StageFailed           Stage = "failed"
)

// Terminal reports whether the stage ends an incident.
func (s Stage) Terminal() bool { return s == StageComplete || s == StageFailed }

// TraceEntry is one line in the authoritative incident history.
type TraceEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Stage      Stage          `json:"stage"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Trace is the append-only ordered log for one incident. It is owned by the
// coordinator goroutine; other components read immutable snapshots.
type Trace struct {
	ID         string
	IncidentID string

	mu      sync.Mutex
	entries []TraceEntry
}

// NewTrace creates an empty trace for an incident.
func NewTrace(id, incidentID string) *Trace {
	return &Trace{ID: id, IncidentID: incidentID}
}

// Append adds an entry, stamping the current time. Timestamps are
// monotonically non-decreasing because appends are serialized by the mutex.
func (t *Trace) Append(level string, stage Stage, message string, attrs map[string]any) TraceEntry {
	entry := TraceEntry{
		Timestamp:  time.Now(),
		Level:      level,
		Stage:      stage,
		Message:    message,
		Attributes: attrs,
	}
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
	return entry
}

// Entries returns an immutable snapshot of the trace.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries appended so far.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
