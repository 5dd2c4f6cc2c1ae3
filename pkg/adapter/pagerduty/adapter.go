// Package pagerduty implements the pager adapter: incident lifecycle
// actions over the REST API plus event triggering through the Events API.
package pagerduty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// Name is the integration name used in bundles and events.
const Name = "pagerduty"

const (
	defaultBaseURL   = "https://api.pagerduty.com"
	defaultEventsURL = "https://events.pagerduty.com/v2/enqueue"
	requestTimeout   = 15 * time.Second
)

// Config for the pagerduty adapter.
type Config struct {
	BaseURL   string
	EventsURL string
	// Token is a REST API token.
	Token string
	// RoutingKey routes trigger_event through the Events API.
	RoutingKey string
	// FromEmail identifies the acting user on incident updates; the REST
	// API requires it on PUT/POST.
	FromEmail string
}

// Adapter is the PagerDuty integration. Safe for concurrent use.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates the adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.EventsURL == "" {
		cfg.EventsURL = defaultEventsURL
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		ContextKinds: []string{"incident", "oncalls"},
		ActionKinds:  []string{"acknowledge", "resolve", "add_note", "trigger_event"},
	}
}

// Connect probes the abilities endpoint.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.HealthCheck(ctx) {
		return fmt.Errorf("pagerduty at %s is not reachable", a.cfg.BaseURL)
	}
	return nil
}

// Disconnect is a no-op.
func (a *Adapter) Disconnect(_ context.Context) error { return nil }

// HealthCheck probes /abilities, the cheapest authenticated endpoint.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	_, err := a.do(ctx, http.MethodGet, a.cfg.BaseURL+"/abilities", nil)
	return err == nil
}

// FetchContext reads pager state.
func (a *Adapter) FetchContext(ctx context.Context, kind string, params map[string]any) (any, error) {
	if !a.Capabilities().HasContext(kind) {
		return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
	}

	var payload any
	err := adapter.Retry(ctx, Name+".fetch."+kind, func() error {
		var ferr error
		switch kind {
		case "incident":
			id, _ := params["incident_id"].(string)
			if id == "" {
				return adapter.Permanent(fmt.Errorf("incident: missing incident_id"))
			}
			payload, ferr = a.do(ctx, http.MethodGet, a.cfg.BaseURL+"/incidents/"+id, nil)
		case "oncalls":
			payload, ferr = a.do(ctx, http.MethodGet, a.cfg.BaseURL+"/oncalls", nil)
		}
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s context: %w", kind, err)
	}
	return payload, nil
}

// RenderCommand returns the request text for gate classification. The
// lifecycle actions deliberately lead with their own verb.
func (a *Adapter) RenderCommand(kind string, params map[string]any) (string, error) {
	id, _ := params["incident_id"].(string)

	switch kind {
	case "acknowledge", "resolve":
		if id == "" {
			return "", fmt.Errorf("%s: missing incident_id", kind)
		}
		return fmt.Sprintf("%s incident %s", kind, id), nil
	case "add_note":
		if id == "" {
			return "", fmt.Errorf("add_note: missing incident_id")
		}
		return fmt.Sprintf("add_note incident %s", id), nil
	case "trigger_event":
		summary, _ := params["summary"].(string)
		if summary == "" {
			return "", fmt.Errorf("trigger_event: missing summary")
		}
		return fmt.Sprintf("trigger event %q", summary), nil
	}
	return "", fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
}

// ExecuteAction performs pager actions. Acknowledge and resolve are
// idempotent status transitions and retry on transient failures.
func (a *Adapter) ExecuteAction(ctx context.Context, kind string, params map[string]any) (*models.ActionResult, error) {
	command, err := a.RenderCommand(kind, params)
	if err != nil {
		return nil, err
	}

	if adapter.IsDryRun(params) {
		return &models.ActionResult{
			DryRun:  true,
			Output:  "would execute: " + command,
			Details: map[string]any{"command": command},
		}, nil
	}

	id, _ := params["incident_id"].(string)
	idempotent := kind == "acknowledge" || kind == "resolve"
	if _, ok := params["idempotency_key"]; ok {
		idempotent = true
	}

	err = adapter.RetryIdempotent(ctx, Name+".action."+kind, idempotent, func() error {
		switch kind {
		case "acknowledge", "resolve":
			status := "acknowledged"
			if kind == "resolve" {
				status = "resolved"
			}
			_, perr := a.do(ctx, http.MethodPut, a.cfg.BaseURL+"/incidents/"+id, map[string]any{
				"incident": map[string]any{"type": "incident_reference", "status": status},
			})
			return perr
		case "add_note":
			note, _ := params["content"].(string)
			_, perr := a.do(ctx, http.MethodPost, a.cfg.BaseURL+"/incidents/"+id+"/notes", map[string]any{
				"note": map[string]any{"content": note},
			})
			return perr
		case "trigger_event":
			_, perr := a.do(ctx, http.MethodPost, a.cfg.EventsURL, map[string]any{
				"routing_key":  a.cfg.RoutingKey,
				"event_action": "trigger",
				"payload": map[string]any{
					"summary":  params["summary"],
					"source":   "responder",
					"severity": severityOr(params, "warning"),
				},
			})
			return perr
		}
		return fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
	})
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", kind, err)
	}

	return &models.ActionResult{Changed: true, Details: map[string]any{"command": command}}, nil
}

func severityOr(params map[string]any, fallback string) string {
	if s, _ := params["severity"].(string); s != "" {
		return s
	}
	return fallback
}

func (a *Adapter) do(ctx context.Context, method, url string, body map[string]any) (any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token token="+a.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if a.cfg.FromEmail != "" {
		req.Header.Set("From", a.cfg.FromEmail)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("pagerduty %s %s: HTTP %d", method, url, resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, adapter.Permanent(err)
		}
		return nil, err
	}

	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("pagerduty: parse response: %w", err)
		}
	}
	return payload, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
