package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// SystemPrompt frames the analysis call. The model only narrates; it is
// never asked to choose or authorize actions.
const SystemPrompt = `You are an SRE assistant analyzing a production incident.
Summarize the most likely root cause from the alert and the gathered context,
and comment on the proposed remediation plan. Be concise and concrete.
Do not invent data that is not in the context. Do not propose new commands.`

// Per-backend payloads are truncated so one noisy backend cannot blow the
// prompt budget.
const maxContextChars = 4000

// BuildAnalysisPrompt renders the incident into the user prompt.
func BuildAnalysisPrompt(alert models.Alert, kind models.AlertKind, bundle models.ContextBundle, actions []models.ResolutionAction) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Alert\nService: %s\nSeverity: %s\nDescription: %s\n",
		alert.Service, alert.Severity, alert.Description)
	fmt.Fprintf(&sb, "Classified as: %s\n", kind)

	sb.WriteString("\n## Context\n")
	for _, name := range sortedKeys(bundle) {
		entry := bundle[name]
		if !entry.Succeeded() {
			fmt.Fprintf(&sb, "### %s\nunavailable: %s\n", name, entry.Err)
			continue
		}
		fmt.Fprintf(&sb, "### %s\n%s\n", name, renderPayload(entry.Payload))
	}

	sb.WriteString("\n## Proposed plan\n")
	if len(actions) == 0 {
		sb.WriteString("No automated actions proposed.\n")
	}
	for i, action := range actions {
		fmt.Fprintf(&sb, "%d. %s (%s, confidence %.2f, risk %s)\n",
			i+1, action.Description, action.Kind, action.Confidence, action.Risk)
	}

	return sb.String()
}

func renderPayload(payload any) string {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	s := string(data)
	if len(s) > maxContextChars {
		s = s[:maxContextChars] + "\n... (truncated)"
	}
	return s
}

func sortedKeys(bundle models.ContextBundle) []string {
	keys := make([]string, 0, len(bundle))
	for k := range bundle {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
