package planner

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// Advisory marks actions that describe investigation steps for a human
// rather than commands the executor can run. The executor records and skips
// them.
const ParamAdvisory = "advisory"

func (p *Planner) planPodCrash(f facts) []models.ResolutionAction {
	var actions []models.ResolutionAction

	if f.logsIndicateOOM() {
		actions = append(actions, p.increaseLimit(f, "memory", 0.8, models.RiskLow))
	}
	if f.logsIndicateConfig() {
		actions = append(actions, models.ResolutionAction{
			Kind:        "check_configmaps_secrets",
			Description: fmt.Sprintf("Review ConfigMaps and Secrets mounted by %s for recent changes", f.podName),
			Params: map[string]any{
				"namespace": f.namespace,
				"pod_name":  f.podName,
				ParamAdvisory: true,
			},
			Confidence:        0.7,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Minute,
		})
	}

	if f.restartCount >= 5 {
		actions = append(actions, manualInvestigation(f,
			fmt.Sprintf("Pod %s has restarted %d times; automated restarts will not help", f.podName, f.restartCount), 0.9))
		return actions
	}

	restart := models.ResolutionAction{
		Kind:        "restart_pod",
		Description: fmt.Sprintf("Restart pod %s to clear the crash loop", f.podName),
		Params: map[string]any{
			"namespace":             f.namespace,
			"pod_name":              f.podName,
			"deployment":            f.deployment,
			"managed_by_controller": f.managed,
		},
		Confidence:        0.6,
		Risk:              models.RiskLow,
		EstimatedDuration: 2 * time.Minute,
		RollbackPossible:  false,
		Preconditions:     []string{"managed_by_controller"},
	}
	actions = append(actions, restart)
	return actions
}

func (p *Planner) planOOMKill(f facts) []models.ResolutionAction {
	actions := []models.ResolutionAction{
		p.increaseLimit(f, "memory", 0.8, models.RiskLow),
	}
	if f.restartCount < 5 {
		actions = append(actions, models.ResolutionAction{
			Kind:        "restart_pod",
			Description: fmt.Sprintf("Restart pod %s after the OOM kill", f.podName),
			Params: map[string]any{
				"namespace":             f.namespace,
				"pod_name":              f.podName,
				"deployment":            f.deployment,
				"managed_by_controller": f.managed,
			},
			Confidence:        0.6,
			Risk:              models.RiskLow,
			EstimatedDuration: 2 * time.Minute,
			Preconditions:     []string{"managed_by_controller"},
		})
	}
	return actions
}

func (p *Planner) planImagePull(f facts) []models.ResolutionAction {
	actions := []models.ResolutionAction{
		{
			Kind:        "verify_image_pull_secret",
			Description: fmt.Sprintf("Verify the image pull secret for %s exists and has valid registry credentials", f.deployment),
			Params: map[string]any{
				"namespace":   f.namespace,
				"deployment":  f.deployment,
				ParamAdvisory: true,
			},
			Confidence:        0.75,
			Risk:              models.RiskLow,
			EstimatedDuration: 5 * time.Minute,
		},
		{
			Kind:        "verify_image_exists",
			Description: "Check that the referenced image and tag exist in the registry",
			Params: map[string]any{
				"namespace":   f.namespace,
				"deployment":  f.deployment,
				ParamAdvisory: true,
			},
			Confidence:        0.7,
			Risk:              models.RiskLow,
			EstimatedDuration: 5 * time.Minute,
		},
	}

	if f.imageTag != "" {
		actions = append(actions, models.ResolutionAction{
			Kind:        "rollback_image_version",
			Description: fmt.Sprintf("Roll back %s to the previously deployed image (current tag %s cannot be pulled)", f.deployment, f.imageTag),
			Params: map[string]any{
				"namespace":  f.namespace,
				"deployment": f.deployment,
				"tag":        f.imageTag,
			},
			Confidence:        0.7,
			Risk:              models.RiskMedium,
			EstimatedDuration: 5 * time.Minute,
			RollbackPossible:  true,
		})
	}
	return actions
}

func (p *Planner) planHighLoad(f facts, resource string) []models.ResolutionAction {
	var actions []models.ResolutionAction

	if f.replicas >= 0 && f.replicas < p.cfg.MaxReplicas {
		target := f.replicas + 2
		if target > p.cfg.MaxReplicas {
			target = p.cfg.MaxReplicas
		}
		actions = append(actions, models.ResolutionAction{
			Kind:        "scale_deployment",
			Description: fmt.Sprintf("Scale %s from %d to %d replicas to spread %s load", f.deployment, f.replicas, target, resource),
			Params: map[string]any{
				"namespace":  f.namespace,
				"deployment": f.deployment,
				"replicas":   target,
			},
			Confidence:        0.8,
			Risk:              models.RiskLow,
			EstimatedDuration: 3 * time.Minute,
			RollbackPossible:  true,
		})
	}

	actions = append(actions, p.increaseLimit(f, resource, 0.7, models.RiskMedium))
	return actions
}

func (p *Planner) planServiceDown(f facts) []models.ResolutionAction {
	if f.endpointCount == 0 && len(f.pods) == 0 {
		return []models.ResolutionAction{{
			Kind:        "deploy_missing_pods",
			Description: fmt.Sprintf("Service %s has no endpoints and no matching pods; the deployment appears missing", f.service),
			Params: map[string]any{
				"namespace":   f.namespace,
				"deployment":  f.deployment,
				ParamAdvisory: true,
			},
			Confidence:        0.9,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Minute,
		}}
	}

	var actions []models.ResolutionAction
	for _, pod := range f.pods {
		if pod.phase == "" || pod.phase == "Running" {
			continue
		}
		actions = append(actions, models.ResolutionAction{
			Kind:        "fix_pod_issues",
			Description: fmt.Sprintf("Pod %s is %s; investigate and restore it", pod.name, pod.phase),
			Params: map[string]any{
				"namespace":   f.namespace,
				"pod_name":    pod.name,
				"phase":       pod.phase,
				ParamAdvisory: true,
			},
			Confidence:        0.8,
			Risk:              models.RiskLow,
			EstimatedDuration: 10 * time.Minute,
		})
	}
	return actions
}

func (p *Planner) planDeploymentFailed(f facts) []models.ResolutionAction {
	if !f.unhealthy {
		// Rollout reported failed but the deployment looks healthy now —
		// nothing safe to automate.
		return []models.ResolutionAction{manualInvestigation(f,
			fmt.Sprintf("Deployment %s reports a failed rollout but appears healthy; review rollout history", f.deployment), 0.6)}
	}
	return []models.ResolutionAction{{
		Kind:        "rollback_deployment",
		Description: fmt.Sprintf("Roll back %s to the last working revision", f.deployment),
		Params: map[string]any{
			"namespace":  f.namespace,
			"deployment": f.deployment,
		},
		Confidence:        0.9,
		Risk:              models.RiskLow,
		EstimatedDuration: 5 * time.Minute,
		RollbackPossible:  true,
	}}
}

func (p *Planner) planNodeIssue(f facts) []models.ResolutionAction {
	return []models.ResolutionAction{manualInvestigation(f,
		"Node-level issues require a human: check node conditions, kubelet logs and recent drains", 0.8)}
}

func (p *Planner) planUnknown(f facts) []models.ResolutionAction {
	return []models.ResolutionAction{manualInvestigation(f,
		fmt.Sprintf("Alert for %s did not match a known pattern; triage manually", f.service), 0.5)}
}

// increaseLimit proposes raising a resource limit by 50%.
func (p *Planner) increaseLimit(f facts, resource string, confidence float64, risk models.Risk) models.ResolutionAction {
	return models.ResolutionAction{
		Kind:        "increase_" + resource + "_limit",
		Description: fmt.Sprintf("Increase the %s limit for %s by 50%%", resource, f.deployment),
		Params: map[string]any{
			"namespace":  f.namespace,
			"deployment": f.deployment,
			"resource":   resource,
			"percent":    50,
		},
		Confidence:        confidence,
		Risk:              risk,
		EstimatedDuration: 5 * time.Minute,
		RollbackPossible:  true,
	}
}

func manualInvestigation(f facts, description string, confidence float64) models.ResolutionAction {
	return models.ResolutionAction{
		Kind:        "manual_investigation",
		Description: description,
		Params: map[string]any{
			"namespace":   f.namespace,
			"service":     f.service,
			ParamAdvisory: true,
		},
		Confidence:        confidence,
		Risk:              models.RiskLow,
		EstimatedDuration: 30 * time.Minute,
	}
}
