package kubernetes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// Verification poll bounds. Tests shrink these.
var (
	verifyTimeout  = 30 * time.Second
	verifyInterval = 2 * time.Second
)

// verifiableKinds lists the actions the adapter can confirm afterwards.
var verifiableKinds = map[string]bool{
	"restart_pod":            true,
	"scale_deployment":       true,
	"rollback_deployment":    true,
	"rollback_image_version": true,
}

// Verify confirms an action's post-condition with a bounded poll. A timeout
// is a failed verification, not an error: the action ran, the cluster just
// has not converged.
func (a *Adapter) Verify(ctx context.Context, kind string, params map[string]any) (*models.VerificationResult, error) {
	if !verifiableKinds[kind] {
		return nil, fmt.Errorf("%w: no verification for action %q", adapter.ErrUnsupported, kind)
	}

	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	var lastDetail string
	for {
		passed, detail, err := a.checkOnce(pollCtx, kind, params)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", kind, err)
		}
		if passed {
			return &models.VerificationResult{
				Passed:  true,
				Detail:  detail,
				Elapsed: time.Since(start),
			}, nil
		}
		lastDetail = detail

		select {
		case <-pollCtx.Done():
			return &models.VerificationResult{
				Passed:  false,
				Detail:  fmt.Sprintf("not converged after %s: %s", verifyTimeout, lastDetail),
				Elapsed: time.Since(start),
			}, nil
		case <-time.After(verifyInterval):
		}
	}
}

func (a *Adapter) checkOnce(ctx context.Context, kind string, params map[string]any) (bool, string, error) {
	switch kind {
	case "restart_pod":
		return a.checkPodRunning(ctx, params)
	case "scale_deployment":
		return a.checkReplicas(ctx, params)
	case "rollback_deployment", "rollback_image_version":
		return a.checkRolloutDone(ctx, params)
	}
	return false, "", fmt.Errorf("%w: %q", adapter.ErrUnsupported, kind)
}

// checkPodRunning passes when a pod for the workload other than the replaced
// one is Running with all containers ready.
func (a *Adapter) checkPodRunning(ctx context.Context, params map[string]any) (bool, string, error) {
	ns := a.namespace(params)
	oldPod := stringParam(params, "pod_name")
	prefix := stringParam(params, "deployment")

	payload, err := a.runJSON(ctx, []string{"get", "pods", "-n", ns, "-o", "json"})
	if err != nil {
		return false, "", err
	}

	items, _ := payload["items"].([]any)
	for _, item := range items {
		pod, _ := item.(map[string]any)
		meta, _ := pod["metadata"].(map[string]any)
		name, _ := meta["name"].(string)
		if name == "" || name == oldPod {
			continue
		}
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		status, _ := pod["status"].(map[string]any)
		if phase, _ := status["phase"].(string); phase != "Running" {
			continue
		}
		if containersReady(status) {
			return true, fmt.Sprintf("pod %s running and ready", name), nil
		}
	}
	return false, "no replacement pod running and ready", nil
}

func containersReady(status map[string]any) bool {
	statuses, _ := status["containerStatuses"].([]any)
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		cs, _ := s.(map[string]any)
		if ready, _ := cs["ready"].(bool); !ready {
			return false
		}
	}
	return true
}

// checkReplicas passes when ready replicas match both the requested count
// and the spec.
func (a *Adapter) checkReplicas(ctx context.Context, params map[string]any) (bool, string, error) {
	ns := a.namespace(params)
	dep := stringParam(params, "deployment")
	want, _ := intParam(params, "replicas")

	payload, err := a.runJSON(ctx, []string{"get", "deployment", dep, "-n", ns, "-o", "json"})
	if err != nil {
		return false, "", err
	}

	spec, _ := payload["spec"].(map[string]any)
	status, _ := payload["status"].(map[string]any)
	specReplicas := jsonInt(spec["replicas"])
	ready := jsonInt(status["readyReplicas"])

	if specReplicas == want && ready == want {
		return true, fmt.Sprintf("%d/%d replicas ready", ready, want), nil
	}
	return false, fmt.Sprintf("%d/%d replicas ready (spec %d)", ready, want, specReplicas), nil
}

// checkRolloutDone passes when kubectl reports the rollout complete.
func (a *Adapter) checkRolloutDone(ctx context.Context, params map[string]any) (bool, string, error) {
	ns := a.namespace(params)
	dep := stringParam(params, "deployment")

	out, err := a.runner.run(ctx, "rollout", "status", "deployment/"+dep,
		"-n", ns, "--timeout=1s")
	if err != nil {
		// kubectl exits non-zero while the rollout is still progressing.
		return false, "rollout still progressing", nil
	}
	return true, strings.TrimSpace(out), nil
}

func jsonInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}

var (
	_ adapter.Adapter  = (*Adapter)(nil)
	_ adapter.Verifier = (*Adapter)(nil)
)
