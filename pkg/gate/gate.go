// Package gate decides whether a proposed remediation command may execute.
// Classification is a stateless rule engine over the command text; the only
// non-determinism is the approval wait in APPROVAL mode.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/responder/pkg/approval"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// DefaultApprovalTimeout bounds the wait for a human decision.
const DefaultApprovalTimeout = 300 * time.Second

// forbiddenCommands is the built-in deny list, matched as substrings of the
// normalized command text. Deployments may extend this list via configuration
// but can never shrink it.
var forbiddenCommands = []string{
	"delete namespace",
	"delete ns ",
	"delete node",
	"delete persistentvolume",
	"delete pv ",
	"delete pvc",
}

// systemNamespaces escalate any command that targets them.
var systemNamespaces = []string{"kube-system", "kube-public", "kube-node-lease"}

// Verb risk table. First-match on the leading verb of the normalized command.
// Unknown verbs classify as medium: a verb we cannot recognize is not allowed
// to pass as read-only. Rollout subcommands (restart/undo/status) are
// controller-mediated and reversible, so they classify low; the effective
// level still escalates through the action's declared risk.
var (
	lowVerbs = map[string]bool{
		"get": true, "describe": true, "logs": true, "top": true,
		"explain": true, "events": true, "version": true, "api-resources": true,
		"rollout": true, "list": true, "search": true, "query": true,
		"acknowledge": true, "resolve": true, "add_note": true,
	}
	mediumVerbs = map[string]bool{
		"scale": true, "apply": true, "replace": true, "set": true,
		"create": true, "annotate": true, "label": true, "expose": true,
		"restart": true, "update": true, "edit": true,
	}
	highVerbs = map[string]bool{
		"delete": true, "patch": true, "exec": true, "drain": true,
		"evict": true, "cordon": true, "taint": true,
	}
)

var namespaceFlagRe = regexp.MustCompile(`(?:^|\s)(?:-n|--namespace)[=\s]+(\S+)`)

// Decision is the gate's verdict for one command.
type Decision struct {
	Execute    bool                    `json:"execute"`
	Reason     string                  `json:"reason"`
	Command    string                  `json:"command"`
	Assessment models.RiskAssessment   `json:"assessment"`
	Approval   *models.ApprovalRequest `json:"required_approval,omitempty"`
}

// Decision reasons surfaced in traces and events.
const (
	ReasonForbidden           = "forbidden"
	ReasonPlanMode            = "plan_mode"
	ReasonLowRisk             = "low_risk"
	ReasonAutoConfidence      = "auto_confidence_met"
	ReasonConfidenceTooLow    = "confidence_below_threshold"
	ReasonDestructiveDisabled = "destructive_disabled"
	ReasonApproved            = "approved"
	ReasonApprovalRejected    = "approval_rejected"
	ReasonApprovalTimeout     = "approval_timeout"
	ReasonApprovalError       = "approval_error"
)

// Config tunes the gate.
type Config struct {
	// DestructiveEnabled unlocks high-risk execution in AUTO mode.
	DestructiveEnabled bool
	// ApprovalTimeout is the per-request wait in APPROVAL mode.
	ApprovalTimeout time.Duration
	// ExtraForbidden extends the built-in forbidden command list.
	ExtraForbidden []string
}

// Gate is safe for concurrent use. approvals may be nil only if APPROVAL
// mode is never selected.
type Gate struct {
	cfg       Config
	approvals *approval.Registry
	forbidden []string
	logger    *slog.Logger
}

// New creates a Gate.
func New(cfg Config, approvals *approval.Registry) *Gate {
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = DefaultApprovalTimeout
	}
	denied := make([]string, 0, len(forbiddenCommands)+len(cfg.ExtraForbidden))
	denied = append(denied, forbiddenCommands...)
	denied = append(denied, cfg.ExtraForbidden...)
	return &Gate{
		cfg:       cfg,
		approvals: approvals,
		forbidden: denied,
		logger:    slog.Default().With("component", "gate"),
	}
}

// Assess classifies a command purely from its text. No I/O, no state.
func (g *Gate) Assess(command string) models.RiskAssessment {
	normalized := normalize(command)

	// Rule 1: forbidden list short-circuits everything else.
	for _, deny := range g.forbidden {
		if strings.Contains(normalized, deny) {
			return models.RiskAssessment{
				Level:     models.RiskHigh,
				Forbidden: true,
				Reason:    fmt.Sprintf("command matches forbidden pattern %q", deny),
			}
		}
	}

	// Rule 2: base risk from the leading verb.
	level := verbRisk(normalized)
	reason := "verb classification"

	// Rule 3: escalate broad or sensitive targets.
	assessment := models.RiskAssessment{Level: level, Reason: reason}
	if hasAllFlag(normalized) {
		assessment.Level = models.RiskHigh
		assessment.AffectsAll = true
		assessment.Reason = "command affects all resources"
	}
	if ns := targetNamespace(normalized); ns != "" {
		for _, sys := range systemNamespaces {
			if ns == sys {
				assessment.Level = models.RiskHigh
				assessment.Reason = fmt.Sprintf("command targets system namespace %q", ns)
			}
		}
		if strings.Contains(ns, "prod") {
			assessment.Level = models.RiskHigh
			assessment.Reason = fmt.Sprintf("command targets production namespace %q", ns)
		}
	}

	return assessment
}

// Decide applies the operating-mode policy to a proposed command. In
// APPROVAL mode this may block until a decision, the approval timeout, or
// ctx cancellation. The effective risk is the higher of the text
// classification and the action's declared risk.
func (g *Gate) Decide(ctx context.Context, incidentID, command string, action models.ResolutionAction, mode models.OperatingMode) Decision {
	assessment := g.Assess(command)
	d := Decision{Command: command, Assessment: assessment}

	if assessment.Forbidden {
		d.Reason = ReasonForbidden
		return d
	}

	level := assessment.Level.Max(action.Risk)

	switch mode {
	case models.ModePlan:
		// Never execute; the command is included for preview.
		d.Reason = ReasonPlanMode
		return d

	case models.ModeAuto:
		switch {
		case level == models.RiskLow:
			d.Execute = true
			d.Reason = ReasonLowRisk
		case level == models.RiskMedium && action.Confidence >= 0.7:
			d.Execute = true
			d.Reason = ReasonAutoConfidence
		case level == models.RiskHigh && !g.cfg.DestructiveEnabled:
			d.Reason = ReasonDestructiveDisabled
		case level == models.RiskHigh && action.Confidence >= 0.9:
			d.Execute = true
			d.Reason = ReasonAutoConfidence
		default:
			d.Reason = ReasonConfidenceTooLow
		}
		return d

	case models.ModeApproval:
		if level == models.RiskLow {
			d.Execute = true
			d.Reason = ReasonLowRisk
			return d
		}
		// High-risk actions stay locked while destructive operations are
		// disabled, even with a willing approver.
		if level == models.RiskHigh && !g.cfg.DestructiveEnabled {
			d.Reason = ReasonDestructiveDisabled
			return d
		}
		return g.awaitApproval(ctx, incidentID, command, action, d)
	}

	// Unknown mode: refuse rather than guess.
	d.Reason = fmt.Sprintf("unknown operating mode %q", mode)
	return d
}

// awaitApproval suspends the caller until a human decides or the request
// times out.
func (g *Gate) awaitApproval(ctx context.Context, incidentID, command string, action models.ResolutionAction, d Decision) Decision {
	if g.approvals == nil {
		d.Reason = ReasonApprovalError
		return d
	}

	req := models.ApprovalRequest{
		ID:          uuid.New().String(),
		IncidentID:  incidentID,
		Action:      action,
		Command:     command,
		RequestedAt: time.Now(),
		TimeoutAt:   time.Now().Add(g.cfg.ApprovalTimeout),
		Status:      models.ApprovalPending,
	}

	ticket, err := g.approvals.Submit(req)
	if err != nil {
		g.logger.Error("Failed to submit approval request",
			"incident_id", incidentID, "error", err)
		d.Reason = ReasonApprovalError
		return d
	}

	g.logger.Info("Awaiting approval", "approval_id", req.ID,
		"incident_id", incidentID, "command", command)

	status := g.approvals.Await(ctx, ticket)
	if final, err := g.approvals.Get(req.ID); err == nil {
		req = final
	}
	d.Approval = &req

	switch status {
	case models.ApprovalApproved:
		d.Execute = true
		d.Reason = ReasonApproved
	case models.ApprovalRejected:
		d.Reason = ReasonApprovalRejected
	default:
		d.Reason = ReasonApprovalTimeout
	}
	return d
}

// normalize lowercases and collapses whitespace, and strips a leading
// "kubectl" so the verb table sees the actual verb.
func normalize(command string) string {
	s := strings.ToLower(strings.TrimSpace(command))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimPrefix(s, "kubectl ")
	return s
}

func verbRisk(normalized string) models.Risk {
	verb, _, _ := strings.Cut(normalized, " ")
	switch {
	case lowVerbs[verb]:
		return models.RiskLow
	case highVerbs[verb]:
		return models.RiskHigh
	case mediumVerbs[verb]:
		return models.RiskMedium
	}
	return models.RiskMedium
}

func hasAllFlag(normalized string) bool {
	for _, tok := range strings.Fields(normalized) {
		switch tok {
		// normalize lowercased the text, so kubectl's -A shows up as -a.
		case "--all", "--all-namespaces", "-a":
			return true
		}
	}
	return false
}

func targetNamespace(normalized string) string {
	m := namespaceFlagRe.FindStringSubmatch(normalized)
	if len(m) == 2 {
		return m[1]
	}
	return ""
}
