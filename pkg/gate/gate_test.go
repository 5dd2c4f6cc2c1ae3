package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/approval"
	"github.com/codeready-toolchain/responder/pkg/models"
)

func action(kind string, risk models.Risk, confidence float64) models.ResolutionAction {
	return models.ResolutionAction{Kind: kind, Risk: risk, Confidence: confidence}
}

func TestAssessForbidden(t *testing.T) {
	g := New(Config{}, nil)

	tests := []struct {
		name    string
		command string
	}{
		{"namespace", "kubectl delete namespace default"},
		{"short ns", "kubectl delete ns payments"},
		{"node", "kubectl delete node worker-3"},
		{"pv", "kubectl delete persistentvolume data-0"},
		{"pvc", "kubectl delete pvc data-api-0"},
		{"case and spacing", "  KUBECTL   DELETE   NAMESPACE   default "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := g.Assess(tt.command)
			assert.True(t, a.Forbidden)
			assert.Equal(t, models.RiskHigh, a.Level)
		})
	}
}

// Forbidden wins over everything, in every mode — even PLAN previews report
// it and AUTO with destructive enabled refuses.
func TestForbiddenShortCircuits(t *testing.T) {
	g := New(Config{DestructiveEnabled: true}, nil)
	for _, mode := range []models.OperatingMode{models.ModePlan, models.ModeApproval, models.ModeAuto} {
		d := g.Decide(context.Background(), "inc-1", "kubectl delete namespace default",
			action("delete_resource", models.RiskHigh, 0.99), mode)
		assert.False(t, d.Execute, "mode %s", mode)
		assert.Equal(t, ReasonForbidden, d.Reason, "mode %s", mode)
	}
}

func TestExtraForbiddenExtends(t *testing.T) {
	g := New(Config{ExtraForbidden: []string{"drop table"}}, nil)
	assert.True(t, g.Assess("psql -c 'DROP TABLE incidents'").Forbidden)
	// Built-ins still apply.
	assert.True(t, g.Assess("kubectl delete node worker-1").Forbidden)
}

func TestAssessVerbRisk(t *testing.T) {
	g := New(Config{}, nil)

	tests := []struct {
		command string
		want    models.Risk
	}{
		{"kubectl get pods -n default", models.RiskLow},
		{"kubectl logs api-x -n default", models.RiskLow},
		{"kubectl rollout restart deployment/api -n default", models.RiskLow},
		{"kubectl rollout undo deployment/api -n default", models.RiskLow},
		{"kubectl scale deployment/api --replicas=5 -n default", models.RiskMedium},
		{"kubectl set resources deployment/api --limits=memory=768Mi -n default", models.RiskMedium},
		{"kubectl apply -f fix.yaml", models.RiskMedium},
		{"kubectl delete pod api-x -n default", models.RiskHigh},
		{"kubectl patch deployment api -p '{}' -n default", models.RiskHigh},
		{"kubectl exec api-x -- sh", models.RiskHigh},
		{"kubectl drain worker-2", models.RiskHigh},
		{"frobnicate the cluster", models.RiskMedium}, // unknown verb is never low
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			a := g.Assess(tt.command)
			assert.Equal(t, tt.want, a.Level)
			assert.False(t, a.Forbidden)
		})
	}
}

func TestAssessEscalation(t *testing.T) {
	g := New(Config{}, nil)

	all := g.Assess("kubectl get pods --all-namespaces")
	assert.Equal(t, models.RiskHigh, all.Level)
	assert.True(t, all.AffectsAll)

	sys := g.Assess("kubectl scale deployment/coredns --replicas=0 -n kube-system")
	assert.Equal(t, models.RiskHigh, sys.Level)

	prod := g.Assess("kubectl rollout restart deployment/api -n prod-eu")
	assert.Equal(t, models.RiskHigh, prod.Level)
}

func TestPlanModeNeverExecutes(t *testing.T) {
	g := New(Config{DestructiveEnabled: true}, nil)

	d := g.Decide(context.Background(), "inc-1", "kubectl get pods -n default",
		action("inspect", models.RiskLow, 1.0), models.ModePlan)
	assert.False(t, d.Execute)
	assert.Equal(t, ReasonPlanMode, d.Reason)
	assert.Equal(t, "kubectl get pods -n default", d.Command)
}

func TestAutoModePolicy(t *testing.T) {
	tests := []struct {
		name        string
		destructive bool
		command     string
		action      models.ResolutionAction
		execute     bool
		reason      string
	}{
		{
			"low risk executes",
			false,
			"kubectl rollout restart deployment/api -n default",
			action("restart_pod", models.RiskLow, 0.6),
			true, ReasonLowRisk,
		},
		{
			"medium with confidence executes",
			false,
			"kubectl scale deployment/api --replicas=5 -n default",
			action("scale_deployment", models.RiskMedium, 0.8),
			true, ReasonAutoConfidence,
		},
		{
			"medium below threshold refused",
			false,
			"kubectl scale deployment/api --replicas=5 -n default",
			action("scale_deployment", models.RiskMedium, 0.6),
			false, ReasonConfidenceTooLow,
		},
		{
			"high without destructive refused",
			false,
			"kubectl delete pod api-x -n default",
			action("delete_resource", models.RiskHigh, 0.95),
			false, ReasonDestructiveDisabled,
		},
		{
			"high with destructive and confidence executes",
			true,
			"kubectl delete pod api-x -n default",
			action("delete_resource", models.RiskHigh, 0.95),
			true, ReasonAutoConfidence,
		},
		{
			"high with destructive but low confidence refused",
			true,
			"kubectl delete pod api-x -n default",
			action("delete_resource", models.RiskHigh, 0.8),
			false, ReasonConfidenceTooLow,
		},
		{
			"declared risk escalates low text",
			false,
			"kubectl rollout undo deployment/api -n default",
			action("rollback_image_version", models.RiskMedium, 0.5),
			false, ReasonConfidenceTooLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Config{DestructiveEnabled: tt.destructive}, nil)
			d := g.Decide(context.Background(), "inc-1", tt.command, tt.action, models.ModeAuto)
			assert.Equal(t, tt.execute, d.Execute)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestApprovalModeLowRiskDirect(t *testing.T) {
	g := New(Config{}, approval.NewRegistry(approval.Config{}))
	d := g.Decide(context.Background(), "inc-1", "kubectl get pods -n default",
		action("inspect", models.RiskLow, 0.9), models.ModeApproval)
	assert.True(t, d.Execute)
	assert.Nil(t, d.Approval)
}

func TestApprovalModeApproved(t *testing.T) {
	reg := approval.NewRegistry(approval.Config{})
	g := New(Config{ApprovalTimeout: 5 * time.Second}, reg)

	done := make(chan Decision, 1)
	go func() {
		done <- g.Decide(context.Background(), "inc-1",
			"kubectl scale deployment/api --replicas=5 -n default",
			action("scale_deployment", models.RiskMedium, 0.8), models.ModeApproval)
	}()

	// Wait for the pending request to appear, then approve it.
	var pending []models.ApprovalRequest
	require.Eventually(t, func() bool {
		pending = reg.List()
		return len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, reg.Approve(pending[0].ID, "go ahead"))

	d := <-done
	assert.True(t, d.Execute)
	assert.Equal(t, ReasonApproved, d.Reason)
	require.NotNil(t, d.Approval)
	assert.Equal(t, models.ApprovalApproved, d.Approval.Status)
}

func TestApprovalModeRejected(t *testing.T) {
	reg := approval.NewRegistry(approval.Config{})
	g := New(Config{ApprovalTimeout: 5 * time.Second}, reg)

	done := make(chan Decision, 1)
	go func() {
		done <- g.Decide(context.Background(), "inc-1",
			"kubectl scale deployment/api --replicas=5 -n default",
			action("scale_deployment", models.RiskMedium, 0.8), models.ModeApproval)
	}()

	var pending []models.ApprovalRequest
	require.Eventually(t, func() bool {
		pending = reg.List()
		return len(pending) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, reg.Reject(pending[0].ID, "not now"))

	d := <-done
	assert.False(t, d.Execute)
	assert.Equal(t, ReasonApprovalRejected, d.Reason)
}

func TestApprovalModeTimeout(t *testing.T) {
	reg := approval.NewRegistry(approval.Config{})
	g := New(Config{ApprovalTimeout: 50 * time.Millisecond}, reg)

	d := g.Decide(context.Background(), "inc-1",
		"kubectl scale deployment/api --replicas=5 -n default",
		action("scale_deployment", models.RiskMedium, 0.8), models.ModeApproval)

	assert.False(t, d.Execute)
	assert.Equal(t, ReasonApprovalTimeout, d.Reason)
	require.NotNil(t, d.Approval)
	assert.Equal(t, models.ApprovalExpired, d.Approval.Status)
}

func TestApprovalModeHighRiskLockedWithoutDestructive(t *testing.T) {
	reg := approval.NewRegistry(approval.Config{})
	g := New(Config{}, reg)

	d := g.Decide(context.Background(), "inc-1", "kubectl delete pod api-x -n default",
		action("delete_resource", models.RiskHigh, 0.95), models.ModeApproval)
	assert.False(t, d.Execute)
	assert.Equal(t, ReasonDestructiveDisabled, d.Reason)
	assert.Empty(t, reg.List(), "no approval request should be created")
}

// The rule engine is deterministic: same inputs, same decision.
func TestDecideDeterministic(t *testing.T) {
	g := New(Config{}, nil)
	first := g.Decide(context.Background(), "inc-1", "kubectl get pods -n default",
		action("inspect", models.RiskLow, 0.5), models.ModeAuto)
	for i := 0; i < 50; i++ {
		again := g.Decide(context.Background(), "inc-1", "kubectl get pods -n default",
			action("inspect", models.RiskLow, 0.5), models.ModeAuto)
		assert.Equal(t, first, again)
	}
}
