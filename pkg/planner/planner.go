// Package planner turns a classified alert plus gathered context into an
// ordered list of candidate remediation actions. Planning is deterministic:
// it never consults the LLM, so a degraded analysis stage cannot change the
// plan.
package planner

import (
	"sort"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// DefaultMaxReplicas caps scale-out proposals.
const DefaultMaxReplicas = 10

// Config tunes the planner.
type Config struct {
	// MaxReplicas is the ceiling for scale_deployment proposals.
	MaxReplicas int
}

// Planner is stateless and safe for concurrent use.
type Planner struct {
	cfg Config
}

// New creates a Planner.
func New(cfg Config) *Planner {
	if cfg.MaxReplicas <= 0 {
		cfg.MaxReplicas = DefaultMaxReplicas
	}
	return &Planner{cfg: cfg}
}

// Plan produces the ordered action list for an incident. The result is
// stably sorted by descending confidence; ties break by ascending risk, then
// by insertion order.
func (p *Planner) Plan(alert models.Alert, kind models.AlertKind, bundle models.ContextBundle) []models.ResolutionAction {
	facts := gatherFacts(alert, bundle)

	var actions []models.ResolutionAction
	switch kind {
	case models.KindPodCrash:
		actions = p.planPodCrash(facts)
	case models.KindOOMKill:
		actions = p.planOOMKill(facts)
	case models.KindImagePull:
		actions = p.planImagePull(facts)
	case models.KindHighMemory:
		actions = p.planHighLoad(facts, "memory")
	case models.KindHighCPU:
		actions = p.planHighLoad(facts, "cpu")
	case models.KindServiceDown:
		actions = p.planServiceDown(facts)
	case models.KindDeploymentFailed:
		actions = p.planDeploymentFailed(facts)
	case models.KindNodeIssue:
		actions = p.planNodeIssue(facts)
	default:
		actions = p.planUnknown(facts)
	}

	for i := range actions {
		finalize(&actions[i])
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Confidence != actions[j].Confidence {
			return actions[i].Confidence > actions[j].Confidence
		}
		return !actions[i].Risk.AtLeast(actions[j].Risk) // lower risk first
	})
	return actions
}

// finalize enforces cross-cutting action invariants: every high-risk action
// carries the privileged-mode precondition.
func finalize(a *models.ResolutionAction) {
	if a.Risk != models.RiskHigh {
		return
	}
	for _, pre := range a.Preconditions {
		if pre == models.PreconditionPrivileged {
			return
		}
	}
	a.Preconditions = append(a.Preconditions, models.PreconditionPrivileged)
}
