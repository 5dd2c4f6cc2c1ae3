// Package coordinator orchestrates one incident from alert ingest to a
// terminal status: classify, gather context in parallel, analyze, plan,
// execute, and stream every stage to the event bus.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/classifier"
	"github.com/codeready-toolchain/responder/pkg/executor"
	"github.com/codeready-toolchain/responder/pkg/llm"
	"github.com/codeready-toolchain/responder/pkg/models"
	"github.com/codeready-toolchain/responder/pkg/planner"
)

// DefaultGatherDeadline bounds the context-gathering stage.
const DefaultGatherDeadline = 30 * time.Second

// Result is the terminal outcome of one incident.
type Result struct {
	Status     models.IncidentStatus     `json:"status"`
	IncidentID string                    `json:"incident_id"`
	TraceID    string                    `json:"trace_id"`
	Analysis   string                    `json:"analysis,omitempty"`
	Plan       []models.ResolutionAction `json:"plan"`
	Summary    models.ExecutionSummary   `json:"execution_summary"`
	Records    []models.ExecutionRecord  `json:"execution_records,omitempty"`
	Bundle     models.ContextBundle      `json:"context_bundle,omitempty"`
}

// Store persists terminal incident artifacts. May be nil (dev mode).
type Store interface {
	SaveIncident(ctx context.Context, result Result, trace *models.Trace) error
}

// Notifier announces incident lifecycle to humans. May be nil.
type Notifier interface {
	IncidentStarted(ctx context.Context, alert models.Alert)
	IncidentFinished(ctx context.Context, alert models.Alert, result Result)
}

// Config tunes the coordinator.
type Config struct {
	GatherDeadline time.Duration
}

// Coordinator is safe for concurrent use; each Handle call runs one
// incident sequentially and incidents run independently.
type Coordinator struct {
	cfg      Config
	registry *adapter.Registry
	planner  *planner.Planner
	executor *executor.Executor
	analyst  llm.Analyst // nil degrades analysis
	bus      *bus.Bus
	store    Store
	notifier Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	live   map[string]struct{}
	traces map[string]*models.Trace
}

// New creates a Coordinator. analyst, store and notifier may be nil.
func New(cfg Config, registry *adapter.Registry, p *planner.Planner, e *executor.Executor, analyst llm.Analyst, eventBus *bus.Bus, store Store, notifier Notifier) *Coordinator {
	if cfg.GatherDeadline <= 0 {
		cfg.GatherDeadline = DefaultGatherDeadline
	}
	return &Coordinator{
		cfg:      cfg,
		registry: registry,
		planner:  p,
		executor: e,
		analyst:  analyst,
		bus:      eventBus,
		store:    store,
		notifier: notifier,
		logger:   slog.Default().With("component", "coordinator"),
		live:     make(map[string]struct{}),
		traces:   make(map[string]*models.Trace),
	}
}

// Trace returns the trace for an incident, live or finished.
func (c *Coordinator) Trace(incidentID string) (*models.Trace, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.traces[incidentID]
	return t, ok
}

// Handle runs one incident to a terminal state. A second submission for the
// same alert id while the first is live returns duplicate with no side
// effects. The stage sequence is linear; there is no loop back.
func (c *Coordinator) Handle(ctx context.Context, alert models.Alert, mode models.OperatingMode) (Result, error) {
	if err := alert.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid alert: %w", err)
	}

	c.mu.Lock()
	if _, busy := c.live[alert.ID]; busy {
		c.mu.Unlock()
		c.logger.Info("Duplicate alert while incident is live", "incident_id", alert.ID)
		return Result{Status: models.StatusDuplicate, IncidentID: alert.ID}, nil
	}
	c.live[alert.ID] = struct{}{}
	trace := models.NewTrace(uuid.New().String(), alert.ID)
	c.traces[alert.ID] = trace
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.live, alert.ID)
		c.mu.Unlock()
	}()

	result := c.run(ctx, alert, mode, trace)

	if c.store != nil {
		if err := c.store.SaveIncident(ctx, result, trace); err != nil {
			c.logger.Error("Failed to persist incident", "incident_id", alert.ID, "error", err)
		}
	}
	if c.notifier != nil {
		c.notifier.IncidentFinished(ctx, alert, result)
	}
	return result, nil
}

// run drives the stage pipeline and guarantees exactly one received event
// and exactly one terminal event per incident.
func (c *Coordinator) run(ctx context.Context, alert models.Alert, mode models.OperatingMode, trace *models.Trace) Result {
	result := Result{IncidentID: alert.ID, TraceID: trace.ID}

	c.stage(trace, bus.LevelInfo, alert.ID, models.StageReceived,
		fmt.Sprintf("Alert received for %s: %s", alert.Service, alert.Description),
		map[string]any{"severity": alert.Severity, "mode": string(mode)})
	if c.notifier != nil {
		c.notifier.IncidentStarted(ctx, alert)
	}

	// Classify. Pure, cannot fail.
	kind := classifier.Classify(alert.Description)
	c.stage(trace, bus.LevelInfo, alert.ID, models.StageClassifying,
		fmt.Sprintf("Classified as %s", kind), map[string]any{"kind": string(kind)})

	// Gather. All backends unreachable is the one fatal case here.
	backends := c.relevantHealthy(ctx, kind)
	if len(backends) == 0 && len(c.registry.Names()) > 0 {
		c.stage(trace, bus.LevelError, alert.ID, models.StageFailed,
			"No backend is reachable; cannot make progress", nil)
		result.Status = models.StatusFailed
		return result
	}

	c.stage(trace, bus.LevelInfo, alert.ID, models.StageGatheringContext,
		fmt.Sprintf("Gathering context from %d backends", len(backends)),
		map[string]any{"backends": backendNames(backends)})
	result.Bundle = c.gatherContext(ctx, alert, kind, backends)
	for name, entry := range result.Bundle {
		if !entry.Succeeded() {
			trace.Append("warning", models.StageGatheringContext,
				"backend failed during context gathering",
				map[string]any{"integration": name, "error": entry.Err})
		}
	}

	// Plan before analysis: the narrative comments on the plan, and the
	// plan never depends on the narrative.
	result.Plan = c.planner.Plan(alert, kind, result.Bundle)
	c.stage(trace, bus.LevelInfo, alert.ID, models.StagePlanning,
		fmt.Sprintf("Planned %d actions", len(result.Plan)),
		map[string]any{"actions": actionKinds(result.Plan)})

	result.Analysis = c.analyze(ctx, alert, kind, result.Bundle, result.Plan, trace)

	// Execute.
	c.stage(trace, bus.LevelInfo, alert.ID, models.StageExecuting,
		fmt.Sprintf("Executing plan in %s mode", mode), nil)
	result.Records, result.Summary = c.executor.Execute(ctx, alert.ID, result.Plan, mode, trace)

	result.Status = terminalStatus(result.Summary)
	c.finish(trace, alert.ID, result)
	return result
}

// analyze performs the single best-effort LLM call.
func (c *Coordinator) analyze(ctx context.Context, alert models.Alert, kind models.AlertKind, bundle models.ContextBundle, plan []models.ResolutionAction, trace *models.Trace) string {
	c.stage(trace, bus.LevelInfo, alert.ID, models.StageAnalyzing, "Requesting incident analysis", nil)

	if c.analyst == nil {
		trace.Append("warning", models.StageAnalyzing, "no analyst configured, skipping narrative", nil)
		return ""
	}

	prompt := llm.BuildAnalysisPrompt(alert, kind, bundle, plan)
	analysis, err := c.analyst.Generate(ctx, llm.SystemPrompt, prompt)
	if err != nil {
		// Narrative-only: a failed analysis degrades, never blocks.
		c.publish(bus.LevelWarning, alert.ID, models.StageAnalyzing, "analyzing_failed",
			map[string]any{"error": err.Error()})
		trace.Append("warning", models.StageAnalyzing, "analysis failed, continuing without narrative",
			map[string]any{"error": err.Error()})
		return ""
	}
	trace.Append("info", models.StageAnalyzing, "analysis complete",
		map[string]any{"length": len(analysis)})
	return analysis
}

// finish emits the single terminal event.
func (c *Coordinator) finish(trace *models.Trace, incidentID string, result Result) {
	stage := models.StageComplete
	level := bus.LevelSuccess
	if result.Status == models.StatusFailed {
		stage = models.StageFailed
		level = bus.LevelError
	}
	c.stage(trace, level, incidentID, stage,
		fmt.Sprintf("Incident finished: %s", result.Status),
		map[string]any{
			"status":   string(result.Status),
			"executed": result.Summary.ActionsExecuted,
			"failed":   result.Summary.ActionsFailed,
		})
}

// terminalStatus derives the user-visible status from the execution
// summary. Nothing executed means the incident is analysis-only, whatever
// the reason (plan mode, gate refusals, open circuit).
func terminalStatus(summary models.ExecutionSummary) models.IncidentStatus {
	switch {
	case summary.ActionsExecuted == 0:
		return models.StatusAnalyzed
	case summary.ActionsFailed == 0:
		return models.StatusAnalyzedAndExecuted
	case summary.ActionsSuccessful > 0:
		return models.StatusPartiallyResolved
	default:
		return models.StatusFailed
	}
}

func (c *Coordinator) relevantHealthy(ctx context.Context, kind models.AlertKind) []adapter.Adapter {
	var relevant []adapter.Adapter
	for _, backend := range c.registry.Healthy(ctx) {
		if relevantBackend(backend.Name(), kind) {
			relevant = append(relevant, backend)
		}
	}
	return relevant
}

// stage appends to the trace and publishes the matching bus event, keeping
// the two views of the incident in lockstep.
func (c *Coordinator) stage(trace *models.Trace, level bus.Level, incidentID string, s models.Stage, message string, attrs map[string]any) {
	trace.Append(string(level), s, message, attrs)
	c.bus.Publish(bus.Event{
		Level:      level,
		Message:    message,
		IncidentID: incidentID,
		Stage:      s,
		Attributes: attrs,
	})
}

func (c *Coordinator) publish(level bus.Level, incidentID string, s models.Stage, message string, attrs map[string]any) {
	c.bus.Publish(bus.Event{
		Level:      level,
		Message:    message,
		IncidentID: incidentID,
		Stage:      s,
		Attributes: attrs,
	})
}

func backendNames(backends []adapter.Adapter) []string {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name())
	}
	return names
}

func actionKinds(plan []models.ResolutionAction) []string {
	kinds := make([]string, 0, len(plan))
	for _, a := range plan {
		kinds = append(kinds, a.Kind)
	}
	return kinds
}
