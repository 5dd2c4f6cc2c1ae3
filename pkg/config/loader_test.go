package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "responder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "plan", cfg.Pipeline.OperatingMode)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Backends.Kubernetes.Disabled)
	assert.Equal(t, "kubectl", cfg.Backends.Kubernetes.KubectlPath)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  operating_mode: auto
  destructive_enabled: true
circuit:
  failure_threshold: 3
server:
  port: 9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Pipeline.OperatingMode)
	assert.True(t, cfg.Pipeline.DestructiveEnabled)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Unset values keep their defaults through the merge.
	assert.Equal(t, 300, cfg.Pipeline.ApprovalTimeoutSeconds)
	assert.Equal(t, 2, cfg.Circuit.SuccessThreshold)
}

func TestLoadEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("OPERATING_MODE", "APPROVAL")
	t.Setenv("APPROVAL_TIMEOUT_SECONDS", "60")
	t.Setenv("CIRCUIT_FAILURE_THRESHOLD", "not-a-number")

	path := writeConfig(t, "pipeline:\n  operating_mode: auto\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "approval", cfg.Pipeline.OperatingMode)
	assert.Equal(t, 60, cfg.Pipeline.ApprovalTimeoutSeconds)
	// Non-numeric overrides are ignored, not fatal.
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
}

func TestLoadExpandsEnvTemplates(t *testing.T) {
	t.Setenv("TEST_SLACK_TOKEN", "xoxb-123")

	path := writeConfig(t, `
slack:
  token: "{{.TEST_SLACK_TOKEN}}"
  channel: incidents
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-123", cfg.Slack.Token)
}

func TestExpandEnvPreservesDollarSigns(t *testing.T) {
	got := ExpandEnv([]byte(`pattern: "^secret.*$"`))
	assert.Equal(t, `pattern: "^secret.*$"`, string(got))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.OperatingMode = "yolo"
	cfg.Circuit.FailureThreshold = 0
	cfg.Slack.Token = "xoxb-1"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operating_mode")
	assert.Contains(t, err.Error(), "failure_threshold")
	assert.Contains(t, err.Error(), "slack.channel")
}

func TestLoadInvalidModeFails(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  operating_mode: destroy\n")
	_, err := Load(path)
	assert.Error(t, err)
}
