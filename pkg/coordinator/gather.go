package coordinator

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// relevantBackend decides whether a backend is worth querying for the
// classified alert kind. Kubernetes context feeds the planner directly, so
// it is always relevant; the others only add signal for specific kinds.
func relevantBackend(name string, kind models.AlertKind) bool {
	switch name {
	case "kubernetes":
		return true
	case "grafana":
		switch kind {
		case models.KindHighMemory, models.KindHighCPU, models.KindServiceDown, models.KindUnknown:
			return true
		}
		return false
	case "github":
		switch kind {
		case models.KindDeploymentFailed, models.KindImagePull, models.KindPodCrash:
			return true
		}
		return false
	case "notion":
		return true
	case "pagerduty":
		// Pager state is acted on, not gathered.
		return false
	}
	return true
}

// gatherContext queries every healthy relevant backend in parallel under one
// stage deadline. A key is present in the bundle iff that backend was
// attempted; failures become error entries, never stage failures.
func (c *Coordinator) gatherContext(ctx context.Context, alert models.Alert, kind models.AlertKind, backends []adapter.Adapter) models.ContextBundle {
	gatherCtx, cancel := context.WithTimeout(ctx, c.cfg.GatherDeadline)
	defer cancel()

	bundle := make(models.ContextBundle, len(backends))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(gatherCtx)
	for _, backend := range backends {
		g.Go(func() error {
			payload, err := c.gatherOne(gctx, backend, alert, kind)
			entry := models.ContextEntry{Payload: payload}
			if err != nil {
				entry = models.ContextEntry{Err: err.Error()}
			}
			mu.Lock()
			bundle[backend.Name()] = entry
			mu.Unlock()
			// Per-backend failures stay in the bundle; returning the error
			// would cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	return bundle
}

// gatherOne fetches and shapes one backend's contribution.
func (c *Coordinator) gatherOne(ctx context.Context, backend adapter.Adapter, alert models.Alert, kind models.AlertKind) (any, error) {
	switch backend.Name() {
	case "kubernetes":
		return c.gatherKubernetes(ctx, backend, alert)

	case "grafana":
		return backend.FetchContext(ctx, "alerts", nil)

	case "github":
		since := alert.Timestamp.Add(-24 * time.Hour).UTC().Format(time.RFC3339)
		return backend.FetchContext(ctx, "commits_since", map[string]any{"since": since})

	case "notion":
		return backend.FetchContext(ctx, "search", map[string]any{"query": alert.Service + " runbook"})
	}

	// Unknown backends get their first declared context kind.
	kinds := backend.Capabilities().ContextKinds
	if len(kinds) == 0 {
		return nil, nil
	}
	return backend.FetchContext(ctx, kinds[0], nil)
}

// gatherKubernetes issues the cluster fetches and distills them into the
// flat fact map the planner consumes. Individual fetch failures degrade to
// missing keys; only a total failure errors the entry.
func (c *Coordinator) gatherKubernetes(ctx context.Context, backend adapter.Adapter, alert models.Alert) (any, error) {
	namespace := alert.MetaString("namespace")
	params := map[string]any{}
	if namespace != "" {
		params["namespace"] = namespace
	}

	summary := map[string]any{}
	var firstErr error
	got := 0

	if raw, err := backend.FetchContext(ctx, "pods", params); err == nil {
		got++
		mergePodFacts(summary, raw, alert)
	} else {
		firstErr = err
	}

	if raw, err := backend.FetchContext(ctx, "deployments", params); err == nil {
		got++
		mergeDeploymentFacts(summary, raw, alert)
	} else if firstErr == nil {
		firstErr = err
	}

	if pod := alert.MetaString("pod_name"); pod != "" {
		logParams := map[string]any{"pod_name": pod}
		if namespace != "" {
			logParams["namespace"] = namespace
		}
		if raw, err := backend.FetchContext(ctx, "logs", logParams); err == nil {
			got++
			if m, ok := raw.(map[string]any); ok {
				summary["logs"] = m["logs"]
			}
		}
	}

	if raw, err := backend.FetchContext(ctx, "events", params); err == nil {
		got++
		summary["events"] = raw
	}

	if got == 0 {
		return nil, firstErr
	}
	return summary, nil
}

// mergePodFacts extracts pod names, phases, restart counts and controller
// ownership from a pod list payload.
func mergePodFacts(summary map[string]any, raw any, alert models.Alert) {
	list, ok := raw.(map[string]any)
	if !ok {
		return
	}
	items, _ := list["items"].([]any)

	pods := make([]any, 0, len(items))
	alertPod := alert.MetaString("pod_name")

	for _, item := range items {
		pod, _ := item.(map[string]any)
		meta, _ := pod["metadata"].(map[string]any)
		status, _ := pod["status"].(map[string]any)
		name, _ := meta["name"].(string)
		phase, _ := status["phase"].(string)
		pods = append(pods, map[string]any{"name": name, "phase": phase})

		if name != alertPod {
			continue
		}
		summary["restart_count"] = podRestartCount(status)
		owners, _ := meta["ownerReferences"].([]any)
		summary["managed_by_controller"] = len(owners) > 0
	}
	summary["pods"] = pods
}

func podRestartCount(status map[string]any) int {
	statuses, _ := status["containerStatuses"].([]any)
	max := 0
	for _, s := range statuses {
		cs, _ := s.(map[string]any)
		if n, ok := cs["restartCount"].(float64); ok && int(n) > max {
			max = int(n)
		}
	}
	return max
}

// mergeDeploymentFacts extracts replica counts and health for the workload
// the alert names.
func mergeDeploymentFacts(summary map[string]any, raw any, alert models.Alert) {
	list, ok := raw.(map[string]any)
	if !ok {
		return
	}
	items, _ := list["items"].([]any)

	target := alert.MetaString("deployment")
	if target == "" {
		target = alert.Service
	}

	for _, item := range items {
		dep, _ := item.(map[string]any)
		meta, _ := dep["metadata"].(map[string]any)
		name, _ := meta["name"].(string)
		if name != target && !strings.HasPrefix(name, target) {
			continue
		}

		spec, _ := dep["spec"].(map[string]any)
		status, _ := dep["status"].(map[string]any)
		desired := floatToInt(spec["replicas"])
		ready := floatToInt(status["readyReplicas"])

		summary["replicas"] = desired
		summary["unhealthy"] = ready < desired
		return
	}
}

func floatToInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
