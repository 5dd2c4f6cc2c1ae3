package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/models"
)

func crashAlert(meta map[string]any) models.Alert {
	return models.Alert{
		ID:          "a1",
		Severity:    models.SeverityHigh,
		Service:     "api",
		Description: "Pod api-x is in CrashLoopBackOff",
		Timestamp:   time.Now(),
		Metadata:    meta,
	}
}

func kinds(actions []models.ResolutionAction) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestPodCrashRestart(t *testing.T) {
	p := New(Config{})
	plan := p.Plan(crashAlert(map[string]any{
		"pod_name": "api-x", "namespace": "default", "restart_count": 1,
	}), models.KindPodCrash, nil)

	require.NotEmpty(t, plan)
	assert.Contains(t, kinds(plan), "restart_pod")

	for _, a := range plan {
		if a.Kind == "restart_pod" {
			assert.Equal(t, 0.6, a.Confidence)
			assert.Equal(t, models.RiskLow, a.Risk)
			assert.Contains(t, a.Preconditions, "managed_by_controller")
			assert.Equal(t, "api-x", a.ParamString("pod_name"))
			assert.True(t, a.ParamBool("managed_by_controller", false))
		}
	}
}

func TestPodCrashRestartCarriesControllerOwnership(t *testing.T) {
	p := New(Config{})
	bundle := models.ContextBundle{
		"kubernetes": {Payload: map[string]any{"managed_by_controller": false}},
	}
	plan := p.Plan(crashAlert(map[string]any{
		"pod_name": "api-x", "restart_count": 1,
	}), models.KindPodCrash, bundle)

	require.Contains(t, kinds(plan), "restart_pod")
	for _, a := range plan {
		if a.Kind == "restart_pod" {
			// The executor skips the restart when the pod has no controller.
			assert.False(t, a.ParamBool("managed_by_controller", true))
		}
	}
}

func TestPodCrashTooManyRestarts(t *testing.T) {
	p := New(Config{})
	plan := p.Plan(crashAlert(map[string]any{
		"pod_name": "api-x", "restart_count": 7,
	}), models.KindPodCrash, nil)

	assert.Contains(t, kinds(plan), "manual_investigation")
	assert.NotContains(t, kinds(plan), "restart_pod")
}

func TestPodCrashOOMLogs(t *testing.T) {
	p := New(Config{})
	bundle := models.ContextBundle{
		"kubernetes": {Payload: map[string]any{
			"logs": "last state: OOMKilled, exit code 137",
		}},
	}
	plan := p.Plan(crashAlert(map[string]any{"pod_name": "api-x", "restart_count": 1}),
		models.KindPodCrash, bundle)

	require.NotEmpty(t, plan)
	// Memory bump has the highest confidence, so it leads the plan.
	assert.Equal(t, "increase_memory_limit", plan[0].Kind)
	assert.Equal(t, 0.8, plan[0].Confidence)
}

func TestPodCrashConfigLogs(t *testing.T) {
	p := New(Config{})
	bundle := models.ContextBundle{
		"kubernetes": {Payload: map[string]any{
			"logs": "error: configmap \"api-settings\" not found",
		}},
	}
	plan := p.Plan(crashAlert(map[string]any{"pod_name": "api-x", "restart_count": 0}),
		models.KindPodCrash, bundle)

	assert.Contains(t, kinds(plan), "check_configmaps_secrets")
}

func TestImagePull(t *testing.T) {
	p := New(Config{})
	alert := crashAlert(map[string]any{"deployment": "api"})
	alert.Description = "ImagePullBackOff for api, tag: v2.3.1"

	plan := p.Plan(alert, models.KindImagePull, nil)
	got := kinds(plan)
	assert.Contains(t, got, "verify_image_pull_secret")
	assert.Contains(t, got, "verify_image_exists")
	assert.Contains(t, got, "rollback_image_version")

	for _, a := range plan {
		if a.Kind == "rollback_image_version" {
			assert.Equal(t, models.RiskMedium, a.Risk)
			assert.Equal(t, 0.7, a.Confidence)
			assert.Equal(t, "v2.3.1", a.ParamString("tag"))
		}
	}

	// Tie at 0.7: lower risk (verify_image_exists) sorts before the
	// medium-risk rollback.
	idxVerify, idxRollback := -1, -1
	for i, k := range got {
		switch k {
		case "verify_image_exists":
			idxVerify = i
		case "rollback_image_version":
			idxRollback = i
		}
	}
	assert.Less(t, idxVerify, idxRollback)
}

func TestImagePullWithoutTag(t *testing.T) {
	p := New(Config{})
	alert := crashAlert(nil)
	alert.Description = "ImagePullBackOff for api"
	plan := p.Plan(alert, models.KindImagePull, nil)
	assert.NotContains(t, kinds(plan), "rollback_image_version")
}

func TestHighMemoryScalesAndBumpsLimit(t *testing.T) {
	p := New(Config{})
	plan := p.Plan(crashAlert(map[string]any{
		"deployment": "api", "replicas": 4,
	}), models.KindHighMemory, nil)

	require.Len(t, plan, 2)
	assert.Equal(t, "scale_deployment", plan[0].Kind)
	assert.Equal(t, 6, plan[0].Params["replicas"])
	assert.Equal(t, "increase_memory_limit", plan[1].Kind)
	assert.Equal(t, models.RiskMedium, plan[1].Risk)
}

func TestHighCPUAtReplicaCap(t *testing.T) {
	p := New(Config{})
	plan := p.Plan(crashAlert(map[string]any{
		"deployment": "api", "replicas": 10,
	}), models.KindHighCPU, nil)

	got := kinds(plan)
	assert.NotContains(t, got, "scale_deployment")
	assert.Contains(t, got, "increase_cpu_limit")
}

func TestScaleTargetCapped(t *testing.T) {
	p := New(Config{})
	plan := p.Plan(crashAlert(map[string]any{
		"deployment": "api", "replicas": 9,
	}), models.KindHighMemory, nil)
	require.Equal(t, "scale_deployment", plan[0].Kind)
	assert.Equal(t, 10, plan[0].Params["replicas"])
}

func TestServiceDownNoPods(t *testing.T) {
	p := New(Config{})
	bundle := models.ContextBundle{
		"kubernetes": {Payload: map[string]any{"endpoint_count": float64(0)}},
	}
	plan := p.Plan(crashAlert(nil), models.KindServiceDown, bundle)
	require.Len(t, plan, 1)
	assert.Equal(t, "deploy_missing_pods", plan[0].Kind)
	assert.Equal(t, 0.9, plan[0].Confidence)
}

func TestServiceDownBrokenPods(t *testing.T) {
	p := New(Config{})
	bundle := models.ContextBundle{
		"kubernetes": {Payload: map[string]any{
			"endpoint_count": float64(1),
			"pods": []any{
				map[string]any{"name": "api-1", "phase": "Running"},
				map[string]any{"name": "api-2", "phase": "CrashLoopBackOff"},
				map[string]any{"name": "api-3", "phase": "Pending"},
			},
		}},
	}
	plan := p.Plan(crashAlert(nil), models.KindServiceDown, bundle)
	require.Len(t, plan, 2)
	for _, a := range plan {
		assert.Equal(t, "fix_pod_issues", a.Kind)
		assert.Equal(t, 0.8, a.Confidence)
	}
}

func TestDeploymentFailedRollback(t *testing.T) {
	p := New(Config{})
	bundle := models.ContextBundle{
		"kubernetes": {Payload: map[string]any{"unhealthy": true}},
	}
	plan := p.Plan(crashAlert(map[string]any{"deployment": "api"}),
		models.KindDeploymentFailed, bundle)

	require.Len(t, plan, 1)
	assert.Equal(t, "rollback_deployment", plan[0].Kind)
	assert.Equal(t, 0.9, plan[0].Confidence)
	assert.True(t, plan[0].RollbackPossible)
}

func TestUnknownKindFallsBack(t *testing.T) {
	p := New(Config{})
	plan := p.Plan(crashAlert(nil), models.KindUnknown, nil)
	require.Len(t, plan, 1)
	assert.Equal(t, "manual_investigation", plan[0].Kind)
}

// Output ordering is stable across runs: (−confidence, risk, insertion).
func TestStableOrdering(t *testing.T) {
	p := New(Config{})
	alert := crashAlert(map[string]any{"deployment": "api", "replicas": 3})

	first := p.Plan(alert, models.KindHighMemory, nil)
	for i := 0; i < 20; i++ {
		assert.Equal(t, kinds(first), kinds(p.Plan(alert, models.KindHighMemory, nil)))
	}
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Confidence, first[i].Confidence)
	}
}

// High-risk actions always carry the privileged-mode precondition.
func TestFinalizePrivilegedGuard(t *testing.T) {
	a := models.ResolutionAction{Kind: "delete_resource", Risk: models.RiskHigh}
	finalize(&a)
	assert.Contains(t, a.Preconditions, models.PreconditionPrivileged)

	// Idempotent.
	finalize(&a)
	assert.Len(t, a.Preconditions, 1)
}
