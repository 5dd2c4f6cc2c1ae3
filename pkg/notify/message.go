package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/models"
)

const maxBlockTextLength = 2900

var statusEmoji = map[models.IncidentStatus]string{
	models.StatusAnalyzed:            ":mag:",
	models.StatusAnalyzedAndExecuted: ":white_check_mark:",
	models.StatusPartiallyResolved:   ":warning:",
	models.StatusFailed:              ":x:",
}

var statusLabel = map[models.IncidentStatus]string{
	models.StatusAnalyzed:            "Incident Analyzed",
	models.StatusAnalyzedAndExecuted: "Incident Resolved",
	models.StatusPartiallyResolved:   "Incident Partially Resolved",
	models.StatusFailed:              "Incident Response Failed",
}

func incidentURL(incidentID, dashboardURL string) string {
	return fmt.Sprintf("%s/incidents/%s", dashboardURL, incidentID)
}

// BuildStartedMessage creates Block Kit blocks announcing that automated
// response has begun for an alert.
func BuildStartedMessage(alert models.Alert, dashboardURL string) []goslack.Block {
	url := incidentURL(alert.ID, dashboardURL)
	text := fmt.Sprintf(":arrows_counterclockwise: *Responding to alert* for `%s` (%s)\n%s\n<%s|Follow along>",
		alert.Service, alert.Severity, truncateForSlack(alert.Description), url)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildFinishedMessage creates Block Kit blocks for the terminal incident
// notification, including the execution tally and the analysis narrative.
func BuildFinishedMessage(alert models.Alert, result coordinator.Result, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[result.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[result.Status]
	if label == "" {
		label = "Incident " + string(result.Status)
	}

	header := fmt.Sprintf("%s *%s* — `%s`", emoji, label, alert.Service)
	if result.Summary.ActionsPlanned > 0 {
		header += fmt.Sprintf("\n%d planned, %d executed, %d successful, %d failed",
			result.Summary.ActionsPlanned, result.Summary.ActionsExecuted,
			result.Summary.ActionsSuccessful, result.Summary.ActionsFailed)
	}
	if result.Summary.CircuitOpen {
		header += "\n:rotating_light: Execution suspended: circuit breaker is open"
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if result.Analysis != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(result.Analysis), false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "",
		goslack.NewTextBlockObject(goslack.PlainTextType, "View Incident", false, false))
	btn.URL = incidentURL(result.IncidentID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view the full incident in the dashboard)_"
}
