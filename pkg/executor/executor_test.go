package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/breaker"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/gate"
	"github.com/codeready-toolchain/responder/pkg/models"
	"github.com/codeready-toolchain/responder/pkg/planner"
)

// scriptedAdapter is a kubernetes-shaped fake whose executions and
// verifications are driven per action kind.
type scriptedAdapter struct {
	execErr    map[string]error
	verifyFail map[string]bool
	executed   []string
}

func (s *scriptedAdapter) Name() string                        { return "kubernetes" }
func (s *scriptedAdapter) Connect(context.Context) error       { return nil }
func (s *scriptedAdapter) Disconnect(context.Context) error    { return nil }
func (s *scriptedAdapter) HealthCheck(context.Context) bool    { return true }
func (s *scriptedAdapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{ActionKinds: []string{"restart_pod", "scale_deployment", "delete_resource"}}
}
func (s *scriptedAdapter) FetchContext(context.Context, string, map[string]any) (any, error) {
	return nil, nil
}

func (s *scriptedAdapter) RenderCommand(kind string, params map[string]any) (string, error) {
	switch kind {
	case "restart_pod":
		return fmt.Sprintf("kubectl rollout restart deployment/%s -n default", params["deployment"]), nil
	case "scale_deployment":
		return fmt.Sprintf("kubectl scale deployment/%s --replicas=%v -n default", params["deployment"], params["replicas"]), nil
	case "delete_resource":
		return fmt.Sprintf("kubectl delete %s -n default", params["target"]), nil
	}
	return "", fmt.Errorf("unknown kind %s", kind)
}

func (s *scriptedAdapter) ExecuteAction(_ context.Context, kind string, _ map[string]any) (*models.ActionResult, error) {
	s.executed = append(s.executed, kind)
	if err := s.execErr[kind]; err != nil {
		return nil, err
	}
	return &models.ActionResult{Changed: true}, nil
}

func (s *scriptedAdapter) Verify(_ context.Context, kind string, _ map[string]any) (*models.VerificationResult, error) {
	if s.verifyFail[kind] {
		return &models.VerificationResult{Passed: false, Detail: "not converged"}, nil
	}
	return &models.VerificationResult{Passed: true, Detail: "converged"}, nil
}

type fixture struct {
	exec    *Executor
	adapter *scriptedAdapter
	breaker *breaker.Breaker
	trace   *models.Trace
}

func newFixture(t *testing.T, gcfg gate.Config) *fixture {
	t.Helper()
	fake := &scriptedAdapter{execErr: map[string]error{}, verifyFail: map[string]bool{}}
	registry := adapter.NewRegistry()
	registry.Register(fake)

	b := breaker.New(breaker.Config{})
	eventBus := bus.New(bus.Options{})
	t.Cleanup(eventBus.Close)

	return &fixture{
		exec:    New(Config{}, registry, gate.New(gcfg, nil), b, eventBus),
		adapter: fake,
		breaker: b,
		trace:   models.NewTrace("trace-1", "inc-1"),
	}
}

func restartAction(confidence float64) models.ResolutionAction {
	return models.ResolutionAction{
		Kind: "restart_pod",
		Params: map[string]any{
			"deployment":            "api",
			"pod_name":              "api-x",
			"managed_by_controller": true,
		},
		Confidence:    confidence,
		Risk:          models.RiskLow,
		Preconditions: []string{"managed_by_controller"},
	}
}

func TestExecuteRunsAndVerifiesLowRiskInAuto(t *testing.T) {
	f := newFixture(t, gate.Config{})

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{restartAction(0.6)}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.True(t, records[0].Executed)
	require.NotNil(t, records[0].Verification)
	assert.True(t, records[0].Verification.Passed)
	assert.Equal(t, 1, summary.ActionsSuccessful)
	assert.Equal(t, 0, summary.ActionsFailed)
	assert.Equal(t, []string{"restart_pod"}, f.adapter.executed)
}

func TestExecutePlanModeSkipsEverything(t *testing.T) {
	f := newFixture(t, gate.Config{})

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{restartAction(0.9)}, models.ModePlan, f.trace)

	require.Len(t, records, 1)
	assert.False(t, records[0].Executed)
	assert.Equal(t, gate.ReasonPlanMode, records[0].SkipReason)
	assert.Equal(t, 1, summary.ActionsSkipped)
	assert.Empty(t, f.adapter.executed)
}

func TestExecuteAdvisoryIsRecordedNotRun(t *testing.T) {
	f := newFixture(t, gate.Config{})
	advisory := models.ResolutionAction{
		Kind:       "manual_investigation",
		Params:     map[string]any{planner.ParamAdvisory: true},
		Confidence: 0.9,
		Risk:       models.RiskLow,
	}

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{advisory}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.Equal(t, SkipAdvisory, records[0].SkipReason)
	assert.Equal(t, 1, summary.ActionsSkipped)
	assert.Empty(t, f.adapter.executed)
}

func TestExecutePreconditionMissingSkips(t *testing.T) {
	f := newFixture(t, gate.Config{})
	bare := models.ResolutionAction{
		Kind:          "restart_pod",
		Params:        map[string]any{"pod_name": "api-x"}, // no controller
		Confidence:    0.6,
		Risk:          models.RiskLow,
		Preconditions: []string{"managed_by_controller"},
	}

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{bare}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.Equal(t, SkipPrecondition, records[0].SkipReason)
	assert.Contains(t, records[0].Error, "managed_by_controller")
	assert.Equal(t, 1, summary.ActionsSkipped)
	assert.Empty(t, f.adapter.executed)
}

func TestExecuteSkipsRestartOfUnmanagedPod(t *testing.T) {
	f := newFixture(t, gate.Config{})
	bare := restartAction(0.6)
	bare.Params["managed_by_controller"] = false

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{bare}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.False(t, records[0].Executed)
	assert.Equal(t, SkipPrecondition, records[0].SkipReason)
	assert.Equal(t, 1, summary.ActionsSkipped)
	assert.Empty(t, f.adapter.executed)
}

func TestExecuteFailureCapAbortsRemaining(t *testing.T) {
	f := newFixture(t, gate.Config{})
	f.adapter.execErr["restart_pod"] = errors.New("kubectl exploded")

	plan := []models.ResolutionAction{
		restartAction(0.6), restartAction(0.6), restartAction(0.6),
		restartAction(0.6), restartAction(0.6),
	}
	records, summary := f.exec.Execute(context.Background(), "inc-1", plan, models.ModeAuto, f.trace)

	require.Len(t, records, 5, "every planned action gets a record")
	assert.Equal(t, 3, summary.ActionsFailed)
	assert.True(t, summary.Aborted)
	assert.Equal(t, SkipAborted, records[3].SkipReason)
	assert.Equal(t, SkipAborted, records[4].SkipReason)
	assert.Len(t, f.adapter.executed, 3)
}

func TestExecuteOpenCircuitShortCircuits(t *testing.T) {
	f := newFixture(t, gate.Config{})
	for i := 0; i < breaker.DefaultFailureThreshold; i++ {
		f.breaker.RecordFailure()
	}

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{restartAction(0.6)}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.Equal(t, SkipCircuitOpen, records[0].SkipReason)
	assert.True(t, summary.CircuitOpen)
	assert.Empty(t, f.adapter.executed)
}

func TestExecuteVerificationFailureCountsAsFailure(t *testing.T) {
	f := newFixture(t, gate.Config{})
	f.adapter.verifyFail["restart_pod"] = true

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{restartAction(0.6)}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.True(t, records[0].Executed)
	assert.False(t, records[0].Succeeded())
	assert.Equal(t, 1, summary.ActionsFailed)
	assert.Equal(t, 0, summary.ActionsSuccessful)

	// The breaker saw the verification failure.
	assert.Equal(t, 1, f.breaker.Snapshot().FailureCount)
}

func TestExecuteHighRiskRefusedWithoutDestructive(t *testing.T) {
	f := newFixture(t, gate.Config{DestructiveEnabled: false})
	del := models.ResolutionAction{
		Kind:          "delete_resource",
		Params:        map[string]any{"target": "pod api-x"},
		Confidence:    0.95,
		Risk:          models.RiskHigh,
		Preconditions: []string{models.PreconditionPrivileged},
	}

	records, _ := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{del}, models.ModeAuto, f.trace)

	require.Len(t, records, 1)
	assert.Equal(t, gate.ReasonDestructiveDisabled, records[0].SkipReason)
	assert.Empty(t, f.adapter.executed)
}

func TestExecuteMediumRiskConfidenceGateInAuto(t *testing.T) {
	f := newFixture(t, gate.Config{})
	scaleHigh := models.ResolutionAction{
		Kind:       "scale_deployment",
		Params:     map[string]any{"deployment": "api", "replicas": 5},
		Confidence: 0.8,
		Risk:       models.RiskLow, // command text classifies medium via "scale"
	}
	scaleLow := scaleHigh
	scaleLow.Confidence = 0.5

	records, summary := f.exec.Execute(context.Background(), "inc-1",
		[]models.ResolutionAction{scaleHigh, scaleLow}, models.ModeAuto, f.trace)

	require.Len(t, records, 2)
	assert.True(t, records[0].Executed)
	assert.False(t, records[1].Executed)
	assert.Equal(t, gate.ReasonConfidenceTooLow, records[1].SkipReason)
	assert.Equal(t, 1, summary.ActionsExecuted)
}
