// Package models defines the core data model shared across the incident
// pipeline: alerts, resolution actions, approvals, execution records and the
// per-incident trace.
package models

import (
	"fmt"
	"time"
)

// Severity is the paging severity of an inbound alert.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// AlertKind is the classified category of an alert. The classifier produces
// it; the planner selects a strategy based on it.
type AlertKind string

const (
	KindPodCrash         AlertKind = "pod_crash"
	KindImagePull        AlertKind = "image_pull"
	KindHighMemory       AlertKind = "high_memory"
	KindHighCPU          AlertKind = "high_cpu"
	KindServiceDown      AlertKind = "service_down"
	KindDeploymentFailed AlertKind = "deployment_failed"
	KindNodeIssue        AlertKind = "node_issue"
	KindOOMKill          AlertKind = "oom_kill"
	KindUnknown          AlertKind = "unknown"
)

// Alert is an inbound incident report from the paging system.
// Immutable after ingest — the coordinator never mutates it.
type Alert struct {
	ID          string         `json:"id"`
	Severity    Severity       `json:"severity"`
	Service     string         `json:"service"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Validate checks the required alert fields.
func (a *Alert) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("alert id is required")
	case a.Service == "":
		return fmt.Errorf("alert service is required")
	case a.Description == "":
		return fmt.Errorf("alert description is required")
	case a.Timestamp.IsZero():
		return fmt.Errorf("alert timestamp is required")
	case !a.Severity.IsValid():
		return fmt.Errorf("unknown severity %q", a.Severity)
	}
	return nil
}

// MetaString returns a string metadata value, or "" when absent.
func (a *Alert) MetaString(key string) string {
	if a.Metadata == nil {
		return ""
	}
	if v, ok := a.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// MetaInt returns an integer metadata value, tolerating the float64 shape
// JSON decoding produces. Returns def when absent or not numeric.
func (a *Alert) MetaInt(key string, def int) int {
	if a.Metadata == nil {
		return def
	}
	switch v := a.Metadata[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
