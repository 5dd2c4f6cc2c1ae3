package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path, merges it over the built-in defaults,
// applies environment overrides, and validates the result. A missing file is
// not an error: defaults plus environment are enough for a dev run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Info("No configuration file, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	default:
		var fileCfg Config
		if err := yaml.Unmarshal(ExpandEnv(data), &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		// File values override defaults; zero values keep the default.
		if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets operators flip the safety-relevant settings without
// editing YAML. Environment wins over both defaults and file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPERATING_MODE"); v != "" {
		cfg.Pipeline.OperatingMode = strings.ToLower(v)
	}
	if v := os.Getenv("DESTRUCTIVE_ENABLED"); v != "" {
		cfg.Pipeline.DestructiveEnabled = isTruthy(v)
	}
	setIntFromEnv(&cfg.Pipeline.ApprovalTimeoutSeconds, "APPROVAL_TIMEOUT_SECONDS")
	setIntFromEnv(&cfg.Pipeline.GatherDeadlineSeconds, "CONTEXT_GATHER_DEADLINE_SECONDS")
	setIntFromEnv(&cfg.Circuit.FailureThreshold, "CIRCUIT_FAILURE_THRESHOLD")
	setIntFromEnv(&cfg.Circuit.SuccessThreshold, "CIRCUIT_SUCCESS_THRESHOLD")
	setIntFromEnv(&cfg.Circuit.RecoverySeconds, "CIRCUIT_RECOVERY_SECONDS")

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
}

func setIntFromEnv(target *int, name string) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment override", "name", name, "value", v)
		return
	}
	*target = n
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
