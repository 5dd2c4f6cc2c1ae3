package models

import "time"

// ActionResult is an adapter's report of a performed (or dry-run) action.
type ActionResult struct {
	Output  string         `json:"output,omitempty"`
	DryRun  bool           `json:"dry_run"`
	Changed bool           `json:"changed"`
	Details map[string]any `json:"details,omitempty"`
}

// VerificationResult is the outcome of a post-execution check.
type VerificationResult struct {
	Passed  bool          `json:"passed"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// ExecutionRecord is one append-only entry in an incident's execution log.
// Exactly one record is appended per planned action the executor visited.
type ExecutionRecord struct {
	Timestamp    time.Time           `json:"timestamp"`
	Action       ResolutionAction    `json:"action"`
	Assessment   RiskAssessment      `json:"risk_assessment"`
	Executed     bool                `json:"executed"`
	SkipReason   string              `json:"skip_reason,omitempty"`
	Result       *ActionResult       `json:"result,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Succeeded reports whether the action executed and, when verified, the
// post-condition held.
func (r *ExecutionRecord) Succeeded() bool {
	if !r.Executed || r.Error != "" {
		return false
	}
	if r.Verification != nil {
		return r.Verification.Passed
	}
	return true
}

// ExecutionSummary aggregates a plan run for the incident result.
type ExecutionSummary struct {
	ActionsPlanned    int  `json:"actions_planned"`
	ActionsExecuted   int  `json:"actions_executed"`
	ActionsSuccessful int  `json:"actions_successful"`
	ActionsFailed     int  `json:"actions_failed"`
	ActionsSkipped    int  `json:"actions_skipped"`
	Aborted           bool `json:"aborted"`
	CircuitOpen       bool `json:"circuit_open"`
}

// AuditEntry records one attempted backend action, successful or not.
// Adapters append an entry for every ExecuteAction call, including dry runs.
type AuditEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Integration string         `json:"integration"`
	Action      string         `json:"action"`
	Command     string         `json:"command,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	DryRun      bool           `json:"dry_run"`
	Error       string         `json:"error,omitempty"`
}
