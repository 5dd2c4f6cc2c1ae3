package planner

import (
	"regexp"
	"strings"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// facts is the planner's tolerant view of alert metadata plus the kubernetes
// context payload. Backends return opaque JSON-shaped data; every lookup
// degrades to a zero value rather than failing.
type facts struct {
	service       string
	podName       string
	namespace     string
	deployment    string
	logs          string
	restartCount  int
	replicas      int
	endpointCount int
	pods          []podFact
	imageTag      string
	managed       bool
	unhealthy     bool
}

type podFact struct {
	name  string
	phase string
}

var tagRe = regexp.MustCompile(`tag:\s*(\S+)`)

func gatherFacts(alert models.Alert, bundle models.ContextBundle) facts {
	f := facts{
		service:      alert.Service,
		podName:      alert.MetaString("pod_name"),
		namespace:    alert.MetaString("namespace"),
		deployment:   alert.MetaString("deployment"),
		restartCount: alert.MetaInt("restart_count", 0),
		replicas:     alert.MetaInt("replicas", -1),
		managed:      true,
	}
	if f.namespace == "" {
		f.namespace = "default"
	}
	if f.deployment == "" {
		f.deployment = f.service
	}

	// Merge the kubernetes context payload when the gather stage got one.
	k8s, ok := asMap(payloadOf(bundle, "kubernetes"))
	if !ok {
		f.logs = alert.MetaString("logs")
		f.endpointCount = alert.MetaInt("endpoint_count", -1)
		f.imageTag = extractTag(alert.Description + "\n" + f.logs)
		return f
	}

	f.logs = stringOr(k8s["logs"], alert.MetaString("logs"))
	f.restartCount = intOr(k8s["restart_count"], f.restartCount)
	f.replicas = intOr(k8s["replicas"], f.replicas)
	f.endpointCount = intOr(k8s["endpoint_count"], alert.MetaInt("endpoint_count", -1))
	if v, ok := k8s["managed_by_controller"].(bool); ok {
		f.managed = v
	}
	if v, ok := k8s["unhealthy"].(bool); ok {
		f.unhealthy = v
	}
	for _, raw := range listOf(k8s["pods"]) {
		if pod, ok := asMap(raw); ok {
			f.pods = append(f.pods, podFact{
				name:  stringOr(pod["name"], ""),
				phase: stringOr(pod["phase"], ""),
			})
		}
	}
	f.imageTag = extractTag(alert.Description + "\n" + f.logs)
	return f
}

// logsIndicateOOM reports whether the pod logs point at memory exhaustion.
func (f facts) logsIndicateOOM() bool {
	l := strings.ToLower(f.logs)
	return strings.Contains(l, "oomkilled") ||
		strings.Contains(l, "out of memory") ||
		strings.Contains(l, "oom-kill")
}

// logsIndicateConfig reports whether the logs point at configuration or
// permission problems.
func (f facts) logsIndicateConfig() bool {
	l := strings.ToLower(f.logs)
	for _, needle := range []string{
		"configmap", "secret", "permission denied", "forbidden",
		"config error", "invalid configuration", "unauthorized",
	} {
		if strings.Contains(l, needle) {
			return true
		}
	}
	return false
}

func (f facts) runningPods() int {
	n := 0
	for _, p := range f.pods {
		if strings.EqualFold(p.phase, "Running") {
			n++
		}
	}
	return n
}

func extractTag(text string) string {
	if m := tagRe.FindStringSubmatch(text); len(m) == 2 {
		return m[1]
	}
	return ""
}

// --- tolerant accessors over opaque payloads ---

func payloadOf(bundle models.ContextBundle, backend string) any {
	if entry, ok := bundle[backend]; ok && entry.Succeeded() {
		return entry.Payload
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func intOr(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
