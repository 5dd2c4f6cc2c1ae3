package notify

import (
	"context"
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/models"
)

func sectionText(t *testing.T, block goslack.Block) string {
	t.Helper()
	section, ok := block.(*goslack.SectionBlock)
	require.True(t, ok, "expected a section block")
	return section.Text.Text
}

func TestBuildStartedMessage(t *testing.T) {
	alert := models.Alert{
		ID:          "inc-1",
		Service:     "api",
		Severity:    "high",
		Description: "Pod api-x is in CrashLoopBackOff",
	}

	blocks := BuildStartedMessage(alert, "https://responder.example.com")
	require.Len(t, blocks, 1)

	text := sectionText(t, blocks[0])
	assert.Contains(t, text, "`api`")
	assert.Contains(t, text, "CrashLoopBackOff")
	assert.Contains(t, text, "https://responder.example.com/incidents/inc-1")
}

func TestBuildFinishedMessage(t *testing.T) {
	alert := models.Alert{ID: "inc-1", Service: "api"}
	result := coordinator.Result{
		Status:     models.StatusPartiallyResolved,
		IncidentID: "inc-1",
		Analysis:   "One restart succeeded, the scale-out failed.",
		Summary: models.ExecutionSummary{
			ActionsPlanned: 2, ActionsExecuted: 2,
			ActionsSuccessful: 1, ActionsFailed: 1,
		},
	}

	blocks := BuildFinishedMessage(alert, result, "https://responder.example.com")
	require.Len(t, blocks, 3)

	header := sectionText(t, blocks[0])
	assert.Contains(t, header, "Partially Resolved")
	assert.Contains(t, header, "2 planned, 2 executed, 1 successful, 1 failed")

	assert.Contains(t, sectionText(t, blocks[1]), "restart succeeded")

	actions, ok := blocks[2].(*goslack.ActionBlock)
	require.True(t, ok)
	btn, ok := actions.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "https://responder.example.com/incidents/inc-1", btn.URL)
}

func TestBuildFinishedMessageCircuitOpen(t *testing.T) {
	result := coordinator.Result{
		Status:     models.StatusAnalyzed,
		IncidentID: "inc-2",
		Summary:    models.ExecutionSummary{ActionsPlanned: 1, CircuitOpen: true},
	}

	blocks := BuildFinishedMessage(models.Alert{ID: "inc-2", Service: "api"}, result, "https://d")
	assert.Contains(t, sectionText(t, blocks[0]), "circuit breaker is open")
}

func TestTruncateForSlack(t *testing.T) {
	long := strings.Repeat("x", maxBlockTextLength+100)
	got := truncateForSlack(long)
	assert.Less(t, len(got), len(long))
	assert.Contains(t, got, "truncated")
	assert.Equal(t, "short", truncateForSlack("short"))
}

func TestNilServiceIsNoOp(t *testing.T) {
	var s *Service
	// Must not panic.
	s.IncidentStarted(context.Background(), models.Alert{ID: "x"})
	s.IncidentFinished(context.Background(), models.Alert{ID: "x"}, coordinator.Result{})

	assert.Nil(t, NewService(ServiceConfig{Token: "", Channel: "alerts"}))
	assert.Nil(t, NewService(ServiceConfig{Token: "xoxb-1", Channel: ""}))
}
