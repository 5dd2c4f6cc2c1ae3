package models

import "time"

// ApprovalStatus is the lifecycle state of an approval request.
// Transitions are one-shot and monotonic: once a request leaves pending it
// never changes again.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// Terminal reports whether the status is a final state.
func (s ApprovalStatus) Terminal() bool { return s != ApprovalPending && s != "" }

// ApprovalRequest is a pending request for a human to authorize one action.
type ApprovalRequest struct {
	ID          string           `json:"id"`
	IncidentID  string           `json:"incident_id"`
	Action      ResolutionAction `json:"action"`
	Command     string           `json:"command"`
	RequestedAt time.Time        `json:"requested_at"`
	TimeoutAt   time.Time        `json:"timeout_at"`
	Status      ApprovalStatus   `json:"status"`
	Comments    string           `json:"comments,omitempty"`
}
