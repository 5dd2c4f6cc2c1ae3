// Package kubernetes implements the cluster backend adapter. Context is
// fetched through a child MCP server over stdio when one is configured,
// falling back to direct kubectl invocation; actions always go through
// kubectl so the executed command matches the text the gate classified.
package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

const (
	// Name is the integration name used in bundles and events.
	Name = "kubernetes"

	connectTimeout = 15 * time.Second
	logTailLines   = "100"
)

// Config for the kubernetes adapter.
type Config struct {
	// KubectlPath is the cluster CLI binary (default "kubectl").
	KubectlPath string
	// MCPCommand launches the child MCP server; empty disables MCP and
	// every fetch goes through kubectl directly.
	MCPCommand []string
	// Namespace is the default namespace when params omit one.
	Namespace string
	// DestructiveDisabled refuses delete/patch actions at the adapter edge,
	// independent of the command gate.
	DestructiveDisabled bool
}

// AuditSink receives a copy of every audit entry (e.g. for persistence).
// May be nil.
type AuditSink interface {
	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}

// Adapter talks to one cluster. Safe for concurrent use: kubectl runs are
// independent processes and the MCP session serializes per-request ids
// internally.
type Adapter struct {
	cfg    Config
	runner runner
	sink   AuditSink
	logger *slog.Logger

	mu      sync.Mutex
	session mcpSession // nil until Connect succeeds with MCP configured

	auditMu sync.Mutex
	audit   []models.AuditEntry
}

// mcpSession is the slice of the MCP client session the adapter uses.
// Narrowed to an interface so tests can fake the child process.
type mcpSession interface {
	CallTool(ctx context.Context, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error)
	Ping(ctx context.Context, params *mcpsdk.PingParams) error
	Close() error
}

// New creates the adapter. sink may be nil.
func New(cfg Config, sink AuditSink) *Adapter {
	if cfg.KubectlPath == "" {
		cfg.KubectlPath = "kubectl"
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &Adapter{
		cfg:    cfg,
		runner: &execRunner{binary: cfg.KubectlPath},
		sink:   sink,
		logger: slog.Default().With("integration", Name),
	}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		ContextKinds: []string{"pods", "services", "deployments", "events", "logs", "metrics"},
		ActionKinds: []string{
			"restart_pod", "scale_deployment", "rollback_deployment",
			"rollback_image_version", "increase_memory_limit", "increase_cpu_limit",
			"patch_resource", "delete_resource",
		},
		Features: []string{"mcp", "kubectl_fallback", "verification"},
	}
}

// Connect starts the child MCP server when configured. Idempotent: an
// existing session is kept. A failed MCP start is not fatal — the adapter
// degrades to kubectl-only operation.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil || len(a.cfg.MCPCommand) == 0 {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "responder", Version: "dev"}, nil)
	transport := &mcpsdk.CommandTransport{
		Command: exec.Command(a.cfg.MCPCommand[0], a.cfg.MCPCommand[1:]...),
	}
	session, err := client.Connect(connectCtx, transport, nil)
	if err != nil {
		a.logger.Warn("MCP server failed to start, falling back to kubectl",
			"command", a.cfg.MCPCommand[0], "error", err)
		return nil
	}

	a.session = session
	a.logger.Info("MCP server connected", "command", a.cfg.MCPCommand[0])
	return nil
}

// Disconnect closes the MCP session and its child process. Idempotent.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.mu.Unlock()

	if session == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- session.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Grace period elapsed; the SDK kills the child on Close, so the
		// pending Close will finish on its own.
		return ctx.Err()
	}
}

// HealthCheck pings the MCP session when present, otherwise probes kubectl
// version. Never mutates.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	if session != nil {
		return session.Ping(ctx, nil) == nil
	}
	_, err := a.runner.run(ctx, "version", "--client", "--output=yaml")
	return err == nil
}

// FetchContext gathers read-only cluster state. Transient failures are
// retried; the result is JSON-shaped data.
func (a *Adapter) FetchContext(ctx context.Context, kind string, params map[string]any) (any, error) {
	if !a.Capabilities().HasContext(kind) {
		return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
	}

	a.mu.Lock()
	session := a.session
	a.mu.Unlock()

	var payload any
	err := adapter.Retry(ctx, Name+".fetch."+kind, func() error {
		var ferr error
		if session != nil {
			payload, ferr = a.fetchViaMCP(ctx, session, kind, params)
			if ferr == nil {
				return nil
			}
			a.logger.Debug("MCP fetch failed, trying kubectl",
				"kind", kind, "error", ferr)
		}
		payload, ferr = a.fetchViaKubectl(ctx, kind, params)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s context: %w", kind, err)
	}
	return payload, nil
}

// ExecuteAction performs or previews one remediation action. Every attempt
// is audited, dry runs included. Side-effecting actions are never retried
// without an idempotency key.
func (a *Adapter) ExecuteAction(ctx context.Context, kind string, params map[string]any) (*models.ActionResult, error) {
	if !a.Capabilities().HasAction(kind) {
		return nil, fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
	}

	command, err := a.RenderCommand(kind, params)
	if err != nil {
		return nil, err
	}

	if a.cfg.DestructiveDisabled && destructiveKinds[kind] {
		a.recordAudit(ctx, kind, command, params, false, adapter.ErrDestructiveDisabled)
		return nil, adapter.ErrDestructiveDisabled
	}

	if adapter.IsDryRun(params) {
		a.recordAudit(ctx, kind, command, params, true, nil)
		return &models.ActionResult{
			DryRun: true,
			Output: "would execute: " + command,
			Details: map[string]any{
				"command": command,
			},
		}, nil
	}

	args, err := a.actionArgs(ctx, kind, params)
	if err != nil {
		return nil, err
	}

	_, idempotent := params["idempotency_key"]
	var out string
	runErr := adapter.RetryIdempotent(ctx, Name+".action."+kind, idempotent, func() error {
		var rerr error
		out, rerr = a.runner.run(ctx, args...)
		return rerr
	})

	a.recordAudit(ctx, kind, command, params, false, runErr)
	if runErr != nil {
		return nil, fmt.Errorf("execute %s: %w", kind, runErr)
	}

	return &models.ActionResult{
		Output:  out,
		Changed: true,
		Details: map[string]any{"command": command},
	}, nil
}

// AuditEntries returns an immutable snapshot of the adapter's audit log.
func (a *Adapter) AuditEntries() []models.AuditEntry {
	a.auditMu.Lock()
	defer a.auditMu.Unlock()
	out := make([]models.AuditEntry, len(a.audit))
	copy(out, a.audit)
	return out
}

// destructiveKinds are refused at the adapter edge when the destructive
// guard is on, in addition to whatever the gate decides.
var destructiveKinds = map[string]bool{
	"delete_resource": true,
	"patch_resource":  true,
}

func (a *Adapter) recordAudit(ctx context.Context, kind, command string, params map[string]any, dryRun bool, err error) {
	entry := models.AuditEntry{
		Timestamp:   time.Now(),
		Integration: Name,
		Action:      kind,
		Command:     command,
		Params:      params,
		DryRun:      dryRun,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	a.auditMu.Lock()
	a.audit = append(a.audit, entry)
	a.auditMu.Unlock()

	if a.sink != nil {
		if serr := a.sink.AppendAudit(ctx, entry); serr != nil {
			a.logger.Warn("Failed to persist audit entry", "error", serr)
		}
	}
}

// fetchViaMCP maps a context kind to the conventional MCP tool and parses
// the text result as JSON when possible.
func (a *Adapter) fetchViaMCP(ctx context.Context, session mcpSession, kind string, params map[string]any) (any, error) {
	tool, ok := mcpTools[kind]
	if !ok {
		return nil, fmt.Errorf("no MCP tool for context %q", kind)
	}

	args := map[string]any{"namespace": a.namespace(params)}
	if pod := stringParam(params, "pod_name"); pod != "" {
		args["name"] = pod
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return nil, err
	}
	text := textContent(result)
	if result.IsError {
		return nil, fmt.Errorf("MCP tool %s: %s", tool, text)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		// Not JSON — wrap the raw text so consumers still get a payload.
		return map[string]any{"text": text}, nil
	}
	return payload, nil
}

// mcpTools maps context kinds to the kubernetes MCP server's tool names.
var mcpTools = map[string]string{
	"pods":        "pods_list",
	"services":    "services_list",
	"deployments": "deployments_list",
	"events":      "events_list",
	"logs":        "pods_log",
	"metrics":     "pods_top",
}

func textContent(result *mcpsdk.CallToolResult) string {
	var text string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			text += tc.Text
		}
	}
	return text
}

func (a *Adapter) namespace(params map[string]any) string {
	if ns := stringParam(params, "namespace"); ns != "" {
		return ns
	}
	return a.cfg.Namespace
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}
