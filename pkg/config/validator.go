package config

import (
	"errors"
	"fmt"
)

var validModes = map[string]bool{"plan": true, "approval": true, "auto": true}

// Validate checks the resolved configuration for values the pipeline cannot
// operate with. It collects every problem rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if !validModes[c.Pipeline.OperatingMode] {
		errs = append(errs, fmt.Errorf(
			"pipeline.operating_mode must be plan, approval, or auto, got %q",
			c.Pipeline.OperatingMode))
	}
	if c.Pipeline.ApprovalTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("pipeline.approval_timeout_seconds must be positive"))
	}
	if c.Pipeline.GatherDeadlineSeconds <= 0 {
		errs = append(errs, errors.New("pipeline.gather_deadline_seconds must be positive"))
	}

	if c.Circuit.FailureThreshold <= 0 {
		errs = append(errs, errors.New("circuit.failure_threshold must be positive"))
	}
	if c.Circuit.SuccessThreshold <= 0 {
		errs = append(errs, errors.New("circuit.success_threshold must be positive"))
	}
	if c.Circuit.RecoverySeconds <= 0 {
		errs = append(errs, errors.New("circuit.recovery_seconds must be positive"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if c.LLM.APIKey != "" && c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required when an API key is set"))
	}

	if c.Database.Host != "" {
		if c.Database.User == "" || c.Database.Database == "" {
			errs = append(errs, errors.New("database.user and database.database are required when database.host is set"))
		}
	}

	if c.Slack.Token != "" && c.Slack.Channel == "" {
		errs = append(errs, errors.New("slack.channel is required when slack.token is set"))
	}

	if c.Backends.GitHub.Token != "" && (c.Backends.GitHub.Owner == "" || c.Backends.GitHub.Repo == "") {
		errs = append(errs, errors.New("backends.github.owner and repo are required when a token is set"))
	}

	return errors.Join(errs...)
}
