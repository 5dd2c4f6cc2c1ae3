// Package executor runs a resolution plan action by action: breaker check,
// gate decision, adapter execution, post-condition verification, and the
// append-only execution record.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/breaker"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/gate"
	"github.com/codeready-toolchain/responder/pkg/models"
	"github.com/codeready-toolchain/responder/pkg/planner"
)

// DefaultFailureCap aborts the remaining plan after this many failures.
const DefaultFailureCap = 3

// Skip reasons recorded when an action was never attempted.
const (
	SkipAdvisory     = "advisory"
	SkipCircuitOpen  = "circuit_open"
	SkipAborted      = "too_many_failures"
	SkipPrecondition = "precondition_missing"
	SkipNoAdapter    = "no_adapter"
	SkipRenderFailed = "render_failed"
)

// Config tunes the executor.
type Config struct {
	// FailureCap is the per-plan hard stop (default 3).
	FailureCap int
}

// Executor is safe for concurrent use; each Execute call is independent.
type Executor struct {
	cfg      Config
	registry *adapter.Registry
	gate     *gate.Gate
	breaker  *breaker.Breaker
	bus      *bus.Bus
	logger   *slog.Logger
}

// New creates an Executor.
func New(cfg Config, registry *adapter.Registry, g *gate.Gate, b *breaker.Breaker, eventBus *bus.Bus) *Executor {
	if cfg.FailureCap <= 0 {
		cfg.FailureCap = DefaultFailureCap
	}
	return &Executor{
		cfg:      cfg,
		registry: registry,
		gate:     g,
		breaker:  b,
		bus:      eventBus,
		logger:   slog.Default().With("component", "executor"),
	}
}

// Execute runs the plan for one incident. Exactly one ExecutionRecord is
// appended per action visited; actions after an abort are still recorded,
// as skipped.
func (e *Executor) Execute(ctx context.Context, incidentID string, plan []models.ResolutionAction, mode models.OperatingMode, trace *models.Trace) ([]models.ExecutionRecord, models.ExecutionSummary) {
	summary := models.ExecutionSummary{ActionsPlanned: len(plan)}
	records := make([]models.ExecutionRecord, 0, len(plan))

	failures := 0
	for i, action := range plan {
		if failures >= e.cfg.FailureCap {
			summary.Aborted = true
			e.publish(bus.LevelError, incidentID, models.StageExecuting, action.Kind,
				"too_many_failures", map[string]any{"failure_cap": e.cfg.FailureCap})
			trace.Append("error", models.StageExecuting, "aborting remaining actions after repeated failures",
				map[string]any{"failures": failures, "remaining": len(plan) - i})
			records = append(records, e.recordSkipsFrom(plan[i:], SkipAborted, &summary)...)
			break
		}

		record := e.runAction(ctx, incidentID, action, mode, trace, &summary)
		records = append(records, record)

		if record.Executed {
			if record.Succeeded() {
				e.breaker.RecordSuccess()
			} else {
				e.breaker.RecordFailure()
				failures++
			}
		}
	}

	return records, summary
}

// runAction performs steps 1-7 of the per-action loop and returns its record.
func (e *Executor) runAction(ctx context.Context, incidentID string, action models.ResolutionAction, mode models.OperatingMode, trace *models.Trace, summary *models.ExecutionSummary) models.ExecutionRecord {
	record := models.ExecutionRecord{Timestamp: time.Now(), Action: action}

	e.publish(bus.LevelInfo, incidentID, models.StageGating, action.Kind,
		fmt.Sprintf("Gating %s", action.Kind), nil)

	// Advisory actions describe investigation steps; there is nothing to run.
	if advisory, _ := action.Params[planner.ParamAdvisory].(bool); advisory {
		record.SkipReason = SkipAdvisory
		summary.ActionsSkipped++
		trace.Append("info", models.StageGating, "advisory action recorded for operators",
			map[string]any{"kind": action.Kind, "description": action.Description})
		return record
	}

	if unmet := unmetPrecondition(action); unmet != "" {
		record.SkipReason = SkipPrecondition
		record.Error = fmt.Sprintf("precondition %q not satisfied", unmet)
		summary.ActionsSkipped++
		trace.Append("warning", models.StageGating, "action skipped: precondition not satisfied",
			map[string]any{"kind": action.Kind, "precondition": unmet})
		return record
	}

	if !e.breaker.Allow() {
		record.SkipReason = SkipCircuitOpen
		summary.ActionsSkipped++
		summary.CircuitOpen = true
		e.publish(bus.LevelWarning, incidentID, models.StageExecuting, action.Kind,
			"circuit_open", map[string]any{"breaker": e.breaker.Snapshot()})
		trace.Append("warning", models.StageExecuting, "circuit breaker open, refusing execution",
			map[string]any{"kind": action.Kind})
		return record
	}

	backend, err := e.registry.Get(action.Integration())
	if err != nil {
		record.SkipReason = SkipNoAdapter
		record.Error = err.Error()
		summary.ActionsSkipped++
		trace.Append("warning", models.StageGating, "no adapter for action",
			map[string]any{"kind": action.Kind, "integration": action.Integration()})
		return record
	}

	command, err := backend.RenderCommand(action.Kind, action.Params)
	if err != nil {
		record.SkipReason = SkipRenderFailed
		record.Error = err.Error()
		summary.ActionsSkipped++
		trace.Append("warning", models.StageGating, "could not render command",
			map[string]any{"kind": action.Kind, "error": err.Error()})
		return record
	}

	decision := e.gate.Decide(ctx, incidentID, command, action, mode)
	record.Assessment = decision.Assessment
	trace.Append("info", models.StageGating, "gate decision",
		map[string]any{"command": command, "execute": decision.Execute, "reason": decision.Reason})

	if !decision.Execute {
		record.SkipReason = decision.Reason
		summary.ActionsSkipped++
		level := bus.LevelInfo
		if decision.Reason == gate.ReasonForbidden {
			level = bus.LevelWarning
		}
		e.publish(level, incidentID, models.StageGating, action.Kind,
			fmt.Sprintf("Gate refused %s: %s", action.Kind, decision.Reason),
			map[string]any{"command": command})
		return record
	}

	e.publish(bus.LevelInfo, incidentID, models.StageExecuting, action.Kind,
		fmt.Sprintf("Executing: %s", command), nil)

	result, err := backend.ExecuteAction(ctx, action.Kind, action.Params)
	record.Executed = true
	record.Result = result
	summary.ActionsExecuted++

	if err != nil {
		record.Error = err.Error()
		summary.ActionsFailed++
		e.publish(bus.LevelError, incidentID, models.StageExecuting, action.Kind,
			fmt.Sprintf("Action %s failed: %v", action.Kind, err), nil)
		trace.Append("error", models.StageExecuting, "action failed",
			map[string]any{"kind": action.Kind, "error": err.Error()})
		return record
	}

	if verifier, ok := backend.(adapter.Verifier); ok && verifiable(action.Kind) {
		e.publish(bus.LevelInfo, incidentID, models.StageVerifying, action.Kind,
			fmt.Sprintf("Verifying %s", action.Kind), nil)
		verification, verr := verifier.Verify(ctx, action.Kind, action.Params)
		if verr != nil {
			e.logger.Warn("Verification errored", "incident_id", incidentID,
				"kind", action.Kind, "error", verr)
			verification = &models.VerificationResult{Passed: false, Detail: verr.Error()}
		}
		record.Verification = verification
		if verification.Passed {
			trace.Append("info", models.StageVerifying, "post-condition verified",
				map[string]any{"kind": action.Kind, "detail": verification.Detail})
		} else {
			// The action ran but the post-condition did not hold; this
			// counts as a failure for the breaker and the summary.
			summary.ActionsFailed++
			e.publish(bus.LevelWarning, incidentID, models.StageVerifying, action.Kind,
				fmt.Sprintf("Verification failed for %s: %s", action.Kind, verification.Detail), nil)
			trace.Append("warning", models.StageVerifying, "verification failed",
				map[string]any{"kind": action.Kind, "detail": verification.Detail})
			return record
		}
	}

	summary.ActionsSuccessful++
	e.publish(bus.LevelSuccess, incidentID, models.StageExecuting, action.Kind,
		fmt.Sprintf("Action %s succeeded", action.Kind), nil)
	return record
}

// recordSkipsFrom appends one skipped record per remaining action.
func (e *Executor) recordSkipsFrom(remaining []models.ResolutionAction, reason string, summary *models.ExecutionSummary) []models.ExecutionRecord {
	records := make([]models.ExecutionRecord, 0, len(remaining))
	for _, action := range remaining {
		records = append(records, models.ExecutionRecord{
			Timestamp:  time.Now(),
			Action:     action,
			SkipReason: reason,
		})
		summary.ActionsSkipped++
	}
	return records
}

// verifiable is the fixed set of actions with adapter post-condition checks.
func verifiable(kind string) bool {
	switch kind {
	case "restart_pod", "scale_deployment", "rollback_deployment", "rollback_image_version":
		return true
	}
	return false
}

// unmetPrecondition returns the first precondition the executor can check
// and finds unsatisfied. The privileged-mode guard is the gate's to enforce.
func unmetPrecondition(action models.ResolutionAction) string {
	for _, pre := range action.Preconditions {
		switch pre {
		case models.PreconditionPrivileged:
			continue
		case "managed_by_controller":
			// The gather stage reads pod ownerReferences and the planner
			// carries the answer in the params. A bare pod deleted by a
			// restart never comes back.
			if !action.ParamBool("managed_by_controller", false) {
				return pre
			}
		default:
			return pre
		}
	}
	return ""
}

func (e *Executor) publish(level bus.Level, incidentID string, stage models.Stage, action, message string, attrs map[string]any) {
	e.bus.Publish(bus.Event{
		Level:      level,
		Message:    message,
		IncidentID: incidentID,
		Stage:      stage,
		Action:     action,
		Attributes: attrs,
	})
}
