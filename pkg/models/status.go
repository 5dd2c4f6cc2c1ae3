package models

import (
	"fmt"
	"strings"
)

// OperatingMode controls the command gate's execution policy.
type OperatingMode string

const (
	// ModePlan never executes; every gate decision is a preview.
	ModePlan OperatingMode = "plan"
	// ModeApproval executes low-risk actions directly and suspends
	// medium/high-risk actions until a human decides.
	ModeApproval OperatingMode = "approval"
	// ModeAuto executes according to risk and confidence thresholds.
	ModeAuto OperatingMode = "auto"
)

// IsValid reports whether m is a known operating mode.
func (m OperatingMode) IsValid() bool {
	switch m {
	case ModePlan, ModeApproval, ModeAuto:
		return true
	}
	return false
}

// ParseOperatingMode parses the OPERATING_MODE environment value
// (PLAN|APPROVAL|AUTO, case-insensitive).
func ParseOperatingMode(s string) (OperatingMode, error) {
	m := OperatingMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("unknown operating mode %q (want PLAN, APPROVAL or AUTO)", s)
	}
	return m, nil
}

// IncidentStatus is the user-visible terminal status of an incident.
type IncidentStatus string

const (
	// StatusAnalyzed means the incident was diagnosed but nothing executed
	// (plan mode, empty plan, or every action refused/skipped).
	StatusAnalyzed IncidentStatus = "analyzed"
	// StatusAnalyzedAndExecuted means every executed action succeeded.
	StatusAnalyzedAndExecuted IncidentStatus = "analyzed_and_executed"
	// StatusPartiallyResolved means some executed actions succeeded and
	// some failed.
	StatusPartiallyResolved IncidentStatus = "partially_resolved"
	// StatusFailed means a blocking condition ended the incident early.
	StatusFailed IncidentStatus = "failed"
	// StatusDuplicate means a live handler already exists for the alert id.
	StatusDuplicate IncidentStatus = "duplicate"
)

// ContextEntry is one backend's contribution to an incident's context bundle.
// Either Payload or Err is set, never both.
type ContextEntry struct {
	Payload any    `json:"payload,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Succeeded reports whether the backend returned a payload.
func (e ContextEntry) Succeeded() bool { return e.Err == "" }

// ContextBundle maps backend name to the gathered payload or the failure.
// A key is present iff the coordinator attempted that backend.
type ContextBundle map[string]ContextEntry

// Successful returns the subset of entries that carry payloads.
func (b ContextBundle) Successful() map[string]any {
	out := make(map[string]any)
	for name, entry := range b {
		if entry.Succeeded() {
			out[name] = entry.Payload
		}
	}
	return out
}
