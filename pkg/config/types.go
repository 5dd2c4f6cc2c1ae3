// Package config loads and validates the responder configuration from
// responder.yaml plus environment overrides. YAML values reference secrets
// through {{.ENV_VAR}} template expansion so credentials never live in files.
package config

import "time"

// Config is the fully resolved runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Circuit   CircuitConfig   `yaml:"circuit"`
	LLM       LLMConfig       `yaml:"llm"`
	Database  DatabaseConfig  `yaml:"database"`
	Slack     SlackConfig     `yaml:"slack"`
	Backends  BackendsConfig  `yaml:"backends"`
	Retention RetentionConfig `yaml:"retention"`
	Bus       BusConfig       `yaml:"bus"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	DashboardURL     string   `yaml:"dashboard_url"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// PipelineConfig tunes incident handling.
type PipelineConfig struct {
	// OperatingMode is plan, approval, or auto.
	OperatingMode string `yaml:"operating_mode"`
	// DestructiveEnabled unlocks high-risk actions.
	DestructiveEnabled bool `yaml:"destructive_enabled"`
	// ApprovalTimeoutSeconds bounds the wait for a human decision.
	ApprovalTimeoutSeconds int `yaml:"approval_timeout_seconds"`
	// GatherDeadlineSeconds bounds parallel context gathering.
	GatherDeadlineSeconds int `yaml:"gather_deadline_seconds"`
	// ExtraForbidden extends the built-in forbidden command list.
	ExtraForbidden []string `yaml:"extra_forbidden"`
}

// CircuitConfig tunes the execution circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	RecoverySeconds  int `yaml:"recovery_seconds"`
}

// LLMConfig selects the analysis model.
type LLMConfig struct {
	// APIKey is normally injected via {{.ANTHROPIC_API_KEY}}. Empty disables
	// the analysis stage; the pipeline degrades rather than fails.
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// DatabaseConfig holds PostgreSQL settings. An empty Host disables
// persistence (dev mode).
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// SlackConfig holds notification settings. Empty Token or Channel disables
// notifications.
type SlackConfig struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

// BackendsConfig configures the context/action integrations. A backend with
// a zero config is not registered.
type BackendsConfig struct {
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	GitHub     GitHubConfig     `yaml:"github"`
	Grafana    GrafanaConfig    `yaml:"grafana"`
	Notion     NotionConfig     `yaml:"notion"`
	PagerDuty  PagerDutyConfig  `yaml:"pagerduty"`
}

// KubernetesConfig configures the cluster backend. Disabled (rather than
// Enabled) so the zero value survives the defaults merge.
type KubernetesConfig struct {
	Disabled    bool     `yaml:"disabled"`
	KubectlPath string   `yaml:"kubectl_path"`
	MCPCommand  []string `yaml:"mcp_command"`
	Namespace   string   `yaml:"namespace"`
}

// GitHubConfig configures the source-control backend.
type GitHubConfig struct {
	BaseURL       string `yaml:"base_url"`
	Token         string `yaml:"token"`
	Owner         string `yaml:"owner"`
	Repo          string `yaml:"repo"`
	CacheDir      string `yaml:"cache_dir"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
}

// GrafanaConfig configures the observability backend.
type GrafanaConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// NotionConfig configures the runbook backend.
type NotionConfig struct {
	Token        string `yaml:"token"`
	ParentPageID string `yaml:"parent_page_id"`
}

// PagerDutyConfig configures the paging backend.
type PagerDutyConfig struct {
	Token      string `yaml:"token"`
	RoutingKey string `yaml:"routing_key"`
	From       string `yaml:"from"`
}

// RetentionConfig bounds how long terminal incidents are kept.
type RetentionConfig struct {
	MaxAgeDays           int `yaml:"max_age_days"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// BusConfig tunes the event bus.
type BusConfig struct {
	QueueSize  int `yaml:"queue_size"`
	ReplaySize int `yaml:"replay_size"`
}

// ApprovalTimeout returns the configured approval wait.
func (p PipelineConfig) ApprovalTimeout() time.Duration {
	return time.Duration(p.ApprovalTimeoutSeconds) * time.Second
}

// GatherDeadline returns the configured gather stage deadline.
func (p PipelineConfig) GatherDeadline() time.Duration {
	return time.Duration(p.GatherDeadlineSeconds) * time.Second
}

// Recovery returns the open-state recovery window.
func (c CircuitConfig) Recovery() time.Duration {
	return time.Duration(c.RecoverySeconds) * time.Second
}

// Default returns the built-in configuration, suitable for a local dev run
// with no YAML file at all.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			DashboardURL: "http://localhost:8080",
		},
		Pipeline: PipelineConfig{
			OperatingMode:          "plan",
			ApprovalTimeoutSeconds: 300,
			GatherDeadlineSeconds:  30,
		},
		Circuit: CircuitConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoverySeconds:  300,
		},
		LLM: LLMConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},
		Database: DatabaseConfig{
			Port:         5432,
			User:         "responder",
			Database:     "responder",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Backends: BackendsConfig{
			Kubernetes: KubernetesConfig{
				KubectlPath: "kubectl",
				Namespace:   "default",
			},
			GitHub: GitHubConfig{CacheTTLHours: 2},
		},
		Retention: RetentionConfig{
			MaxAgeDays:           30,
			SweepIntervalMinutes: 60,
		},
	}
}
