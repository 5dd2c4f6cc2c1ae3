package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeready-toolchain/responder/pkg/adapter"
)

// RenderCommand returns the kubectl command line the action resolves to.
// Pure: no cluster I/O. The limit-increase actions render the percentage
// form; the concrete value is resolved from live state at execution time.
func (a *Adapter) RenderCommand(kind string, params map[string]any) (string, error) {
	ns := a.namespace(params)

	switch kind {
	case "restart_pod":
		// Controller-managed pods are restarted through a rollout so the
		// replacement comes up before the old pod goes away. A bare pod has
		// no controller to recreate it; deleting it is the only restart and
		// carries the matching risk.
		if dep := stringParam(params, "deployment"); dep != "" {
			return fmt.Sprintf("kubectl rollout restart deployment/%s -n %s", dep, ns), nil
		}
		pod := stringParam(params, "pod_name")
		if pod == "" {
			return "", fmt.Errorf("restart_pod: missing deployment and pod_name")
		}
		return fmt.Sprintf("kubectl delete pod %s -n %s", pod, ns), nil

	case "scale_deployment":
		dep, err := requiredParam(params, "deployment")
		if err != nil {
			return "", err
		}
		replicas, ok := intParam(params, "replicas")
		if !ok {
			return "", fmt.Errorf("scale_deployment: missing replicas")
		}
		return fmt.Sprintf("kubectl scale deployment/%s --replicas=%d -n %s", dep, replicas, ns), nil

	case "rollback_deployment", "rollback_image_version":
		dep, err := requiredParam(params, "deployment")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("kubectl rollout undo deployment/%s -n %s", dep, ns), nil

	case "increase_memory_limit", "increase_cpu_limit":
		dep, err := requiredParam(params, "deployment")
		if err != nil {
			return "", err
		}
		resource := stringParam(params, "resource")
		if resource == "" {
			resource = strings.TrimSuffix(strings.TrimPrefix(kind, "increase_"), "_limit")
		}
		percent, ok := intParam(params, "percent")
		if !ok {
			percent = 50
		}
		return fmt.Sprintf("kubectl set resources deployment/%s --limits=%s=+%d%% -n %s",
			dep, resource, percent, ns), nil

	case "patch_resource":
		res, err := requiredParam(params, "target")
		if err != nil {
			return "", err
		}
		patch := stringParam(params, "patch")
		return fmt.Sprintf("kubectl patch %s -n %s -p '%s'", res, ns, patch), nil

	case "delete_resource":
		res, err := requiredParam(params, "target")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("kubectl delete %s -n %s", res, ns), nil
	}

	return "", fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
}

// actionArgs builds the kubectl argv for an action. The limit-increase
// actions read the deployment's current limit here so the new value is
// computed against live state, not stale planner context.
func (a *Adapter) actionArgs(ctx context.Context, kind string, params map[string]any) ([]string, error) {
	ns := a.namespace(params)

	switch kind {
	case "restart_pod":
		if dep := stringParam(params, "deployment"); dep != "" {
			return []string{"rollout", "restart", "deployment/" + dep, "-n", ns}, nil
		}
		return []string{"delete", "pod", stringParam(params, "pod_name"), "-n", ns}, nil

	case "scale_deployment":
		dep := stringParam(params, "deployment")
		replicas, _ := intParam(params, "replicas")
		return []string{"scale", "deployment/" + dep, fmt.Sprintf("--replicas=%d", replicas), "-n", ns}, nil

	case "rollback_deployment", "rollback_image_version":
		return []string{"rollout", "undo", "deployment/" + stringParam(params, "deployment"), "-n", ns}, nil

	case "increase_memory_limit", "increase_cpu_limit":
		dep := stringParam(params, "deployment")
		resource := stringParam(params, "resource")
		if resource == "" {
			resource = strings.TrimSuffix(strings.TrimPrefix(kind, "increase_"), "_limit")
		}
		percent, ok := intParam(params, "percent")
		if !ok {
			percent = 50
		}
		current, err := a.currentLimit(ctx, ns, dep, resource)
		if err != nil {
			return nil, err
		}
		target, err := scaleQuantity(current, percent)
		if err != nil {
			return nil, fmt.Errorf("scale %s limit %q: %w", resource, current, err)
		}
		return []string{"set", "resources", "deployment/" + dep,
			fmt.Sprintf("--limits=%s=%s", resource, target), "-n", ns}, nil

	case "patch_resource":
		return []string{"patch", stringParam(params, "target"), "-n", ns,
			"-p", stringParam(params, "patch")}, nil

	case "delete_resource":
		return append([]string{"delete"}, append(strings.Fields(stringParam(params, "target")), "-n", ns)...), nil
	}

	return nil, fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
}

// fetchViaKubectl gathers context with direct CLI calls.
func (a *Adapter) fetchViaKubectl(ctx context.Context, kind string, params map[string]any) (any, error) {
	ns := a.namespace(params)

	switch kind {
	case "pods", "services", "deployments":
		args := []string{"get", kind, "-n", ns, "-o", "json"}
		if selector := stringParam(params, "selector"); selector != "" {
			args = append(args, "-l", selector)
		}
		return a.runJSON(ctx, args)

	case "events":
		return a.runJSON(ctx, []string{"get", "events", "-n", ns,
			"--sort-by=.lastTimestamp", "-o", "json"})

	case "logs":
		pod := stringParam(params, "pod_name")
		if pod == "" {
			return nil, adapter.Permanent(fmt.Errorf("logs: missing pod_name"))
		}
		args := []string{"logs", pod, "-n", ns, "--tail", logTailLines}
		if prev, _ := params["previous"].(bool); prev {
			args = append(args, "--previous")
		}
		out, err := a.runner.run(ctx, args...)
		if err != nil {
			return nil, err
		}
		return map[string]any{"pod": pod, "logs": out}, nil

	case "metrics":
		out, err := a.runner.run(ctx, "top", "pods", "-n", ns)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": out}, nil
	}

	return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
}

func (a *Adapter) runJSON(ctx context.Context, args []string) (map[string]any, error) {
	out, err := a.runner.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil, fmt.Errorf("parse kubectl output: %w", err)
	}
	return payload, nil
}

// currentLimit reads the first container's limit for the given resource.
func (a *Adapter) currentLimit(ctx context.Context, ns, deployment, resource string) (string, error) {
	path := fmt.Sprintf("{.spec.template.spec.containers[0].resources.limits.%s}", resource)
	out, err := a.runner.run(ctx, "get", "deployment", deployment, "-n", ns,
		"-o", "jsonpath="+path)
	if err != nil {
		return "", err
	}
	limit := strings.TrimSpace(out)
	if limit == "" {
		return "", adapter.Permanent(
			fmt.Errorf("deployment %s has no %s limit to increase", deployment, resource))
	}
	return limit, nil
}

func requiredParam(params map[string]any, key string) (string, error) {
	v := stringParam(params, key)
	if v == "" {
		return "", fmt.Errorf("missing required param %q", key)
	}
	return v, nil
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
