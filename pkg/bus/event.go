// Package bus provides the in-process event bus for incident activity.
// Publishers fan events out to subscribers with bounded queues; slow
// consumers lose their oldest events rather than blocking the pipeline.
package bus

import (
	"time"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// Level is the severity of an activity event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelAlert   Level = "alert"
)

// Event is one structured activity record. Events are value types: once
// published they are never mutated.
type Event struct {
	Timestamp   time.Time      `json:"timestamp"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	IncidentID  string         `json:"incident_id,omitempty"`
	Stage       models.Stage   `json:"stage,omitempty"`
	Integration string         `json:"integration,omitempty"`
	Action      string         `json:"action,omitempty"`
	Progress    *float64       `json:"progress,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// MessageSubscriberLag is published to a subscriber whose queue overflowed.
const MessageSubscriberLag = "subscriber_lag"
