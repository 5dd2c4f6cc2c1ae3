package models

import "time"

// Risk is the assessed blast radius of a proposed action or command.
type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// IsValid reports whether r is a known risk level.
func (r Risk) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// rank orders risk levels for comparison. Unknown levels rank highest so a
// malformed value is never treated as safe.
func (r Risk) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	}
	return 3
}

// AtLeast reports whether r is the same or a higher risk than other.
func (r Risk) AtLeast(other Risk) bool { return r.rank() >= other.rank() }

// Max returns the higher of the two risk levels.
func (r Risk) Max(other Risk) Risk {
	if other.rank() > r.rank() {
		return other
	}
	return r
}

// PreconditionPrivileged must be present on every high-risk action; the
// planner attaches it and the executor refuses high-risk actions without it.
const PreconditionPrivileged = "destructive_mode_enabled"

// ResolutionAction is one proposed remediation step in a plan.
type ResolutionAction struct {
	Kind              string         `json:"kind"`
	Description       string         `json:"description"`
	Params            map[string]any `json:"params,omitempty"`
	Confidence        float64        `json:"confidence"`
	Risk              Risk           `json:"risk"`
	EstimatedDuration time.Duration  `json:"estimated_duration"`
	RollbackPossible  bool           `json:"rollback_possible"`
	Preconditions     []string       `json:"preconditions,omitempty"`
}

// Integration returns the backend this action targets, defaulting to
// kubernetes when the planner did not route it explicitly.
func (a *ResolutionAction) Integration() string {
	if v, ok := a.Params["integration"].(string); ok && v != "" {
		return v
	}
	return "kubernetes"
}

// ParamString returns a string parameter, or "" when absent.
func (a *ResolutionAction) ParamString(key string) string {
	if v, ok := a.Params[key].(string); ok {
		return v
	}
	return ""
}

// ParamBool returns a bool parameter, or def when absent or not a bool.
func (a *ResolutionAction) ParamBool(key string, def bool) bool {
	if v, ok := a.Params[key].(bool); ok {
		return v
	}
	return def
}

// RiskAssessment is the gate's pure classification of a command.
// Derived from the command text and action flags only — no I/O.
type RiskAssessment struct {
	Level      Risk   `json:"level"`
	Forbidden  bool   `json:"forbidden"`
	Reason     string `json:"reason"`
	AffectsAll bool   `json:"affects_all"`
}
