package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/responder/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        models.AlertKind
	}{
		{"crashloop", "Pod api-x is in CrashLoopBackOff", models.KindPodCrash},
		{"crash loop spaced", "container stuck in crash loop", models.KindPodCrash},
		{"image pull", "ImagePullBackOff on deployment payments", models.KindImagePull},
		{"err image pull", "ErrImagePull: manifest unknown", models.KindImagePull},
		{"high memory", "High memory usage on api pods (92%)", models.KindHighMemory},
		{"memory threshold", "memory limit exceeded threshold", models.KindHighMemory},
		{"high cpu", "High CPU usage detected for checkout", models.KindHighCPU},
		{"cpu throttling", "cpu throttling observed on worker", models.KindHighCPU},
		{"service down", "Service payments is down", models.KindServiceDown},
		{"no endpoints", "no healthy endpoints for svc/api", models.KindServiceDown},
		{"deployment failed", "Deployment rollout failed for api", models.KindDeploymentFailed},
		{"progress deadline", "ProgressDeadlineExceeded for deploy/api", models.KindDeploymentFailed},
		{"node issue", "Node worker-3 is NotReady", models.KindNodeIssue},
		{"oom kill", "Container killed: OOMKilled", models.KindOOMKill},
		{"out of memory", "process terminated: out of memory", models.KindOOMKill},
		{"unknown", "disk pressure on etcd volume", models.KindUnknown},
		{"empty", "", models.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.description))
		})
	}
}

// oom_kill is more specific than pod_crash and memory pressure; it must win
// when both would match.
func TestSpecificPatternsWin(t *testing.T) {
	assert.Equal(t, models.KindOOMKill, Classify("pod api-x crash: OOMKilled, high memory usage"))
}

// Classification is pure: repeated calls agree.
func TestClassifyIsDeterministic(t *testing.T) {
	in := "Pod api-x is in CrashLoopBackOff"
	first := Classify(in)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(in))
	}
}
