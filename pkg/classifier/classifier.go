// Package classifier maps free-text alert descriptions to alert kinds using
// an ordered pattern table. Classification is a pure function: identical
// input always yields the identical kind.
package classifier

import (
	"regexp"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// pattern pairs a compiled regexp with the kind it selects. First match wins,
// so more specific patterns come before broader ones (oom_kill before
// pod_crash and high_memory).
type pattern struct {
	re   *regexp.Regexp
	kind models.AlertKind
}

var patterns = []pattern{
	{regexp.MustCompile(`(?i)\boom[-_]?kill`), models.KindOOMKill},
	{regexp.MustCompile(`(?i)out of memory`), models.KindOOMKill},
	{regexp.MustCompile(`(?i)crashloopbackoff|crash.?loop|pod.*crash|container.*restart`), models.KindPodCrash},
	{regexp.MustCompile(`(?i)imagepullbackoff|errimagepull|image pull|pull.*image`), models.KindImagePull},
	{regexp.MustCompile(`(?i)high memory|memory (usage|pressure|limit)|memory.*(exceed|threshold)`), models.KindHighMemory},
	{regexp.MustCompile(`(?i)high cpu|cpu (usage|pressure|throttl)|cpu.*(exceed|threshold)`), models.KindHighCPU},
	{regexp.MustCompile(`(?i)service\b.*\b(down|unavailable|unreachable)\b|no healthy (endpoints|upstream)|connection refused`), models.KindServiceDown},
	{regexp.MustCompile(`(?i)deploy(ment)?.*(fail|error|stuck)|rollout.*(fail|stuck)|progressdeadlineexceeded`), models.KindDeploymentFailed},
	{regexp.MustCompile(`(?i)node.*(notready|not ready|unreachable|pressure|cordon)|kubelet.*(down|stopped)`), models.KindNodeIssue},
}

// Classify returns the alert kind for a description, or KindUnknown when no
// pattern matches.
func Classify(description string) models.AlertKind {
	for _, p := range patterns {
		if p.re.MatchString(description) {
			return p.kind
		}
	}
	return models.KindUnknown
}
