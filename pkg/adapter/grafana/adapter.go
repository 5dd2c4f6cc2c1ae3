// Package grafana implements the observability adapter. It is strictly
// read-only: it exposes no actions, so nothing here ever reaches the gate.
package grafana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// Name is the integration name used in bundles and events.
const Name = "grafana"

const requestTimeout = 15 * time.Second

// Config for the grafana adapter.
type Config struct {
	BaseURL string
	// Token is a Grafana service-account token.
	Token string
	// Datasource is the default datasource UID for metric queries.
	Datasource string
}

// Adapter is the Grafana integration. Safe for concurrent use.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates the adapter.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements adapter.Adapter. No action kinds: the
// observability backend is read-only.
func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		ContextKinds: []string{"dashboards", "metrics_query", "alerts", "datasources"},
	}
}

// Connect probes the health endpoint.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.HealthCheck(ctx) {
		return fmt.Errorf("grafana at %s is not reachable", a.cfg.BaseURL)
	}
	return nil
}

// Disconnect is a no-op; there is no session to tear down.
func (a *Adapter) Disconnect(_ context.Context) error { return nil }

// HealthCheck probes /api/health, which needs no authentication.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	_, err := a.do(ctx, http.MethodGet, "/api/health", nil, nil)
	return err == nil
}

// FetchContext gathers observability context.
func (a *Adapter) FetchContext(ctx context.Context, kind string, params map[string]any) (any, error) {
	if !a.Capabilities().HasContext(kind) {
		return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
	}

	var payload any
	err := adapter.Retry(ctx, Name+".fetch."+kind, func() error {
		var ferr error
		payload, ferr = a.fetch(ctx, kind, params)
		return ferr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s context: %w", kind, err)
	}
	return payload, nil
}

func (a *Adapter) fetch(ctx context.Context, kind string, params map[string]any) (any, error) {
	switch kind {
	case "dashboards":
		q := url.Values{"type": {"dash-db"}}
		if query, _ := params["query"].(string); query != "" {
			q.Set("query", query)
		}
		return a.do(ctx, http.MethodGet, "/api/search", q, nil)

	case "datasources":
		return a.do(ctx, http.MethodGet, "/api/datasources", nil, nil)

	case "alerts":
		return a.do(ctx, http.MethodGet, "/api/alertmanager/grafana/api/v2/alerts", nil, nil)

	case "metrics_query":
		expr, _ := params["query"].(string)
		if expr == "" {
			return nil, adapter.Permanent(fmt.Errorf("metrics_query: missing query"))
		}
		datasource, _ := params["datasource"].(string)
		if datasource == "" {
			datasource = a.cfg.Datasource
		}
		body := map[string]any{
			"queries": []map[string]any{{
				"refId":         "A",
				"expr":          expr,
				"datasource":    map[string]any{"uid": datasource},
				"intervalMs":    60000,
				"maxDataPoints": 100,
			}},
			"from": "now-1h",
			"to":   "now",
		}
		return a.do(ctx, http.MethodPost, "/api/ds/query", nil, body)
	}

	return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
}

// RenderCommand implements adapter.Adapter; the backend has no actions.
func (a *Adapter) RenderCommand(kind string, _ map[string]any) (string, error) {
	return "", fmt.Errorf("%w: grafana is read-only, action %q", adapter.ErrUnsupported, kind)
}

// ExecuteAction implements adapter.Adapter; the backend has no actions.
func (a *Adapter) ExecuteAction(_ context.Context, kind string, _ map[string]any) (*models.ActionResult, error) {
	return nil, fmt.Errorf("%w: grafana is read-only, action %q", adapter.ErrUnsupported, kind)
}

func (a *Adapter) do(ctx context.Context, method, path string, query url.Values, body map[string]any) (any, error) {
	u := a.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if a.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
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
		err := fmt.Errorf("grafana %s %s: HTTP %d", method, path, resp.StatusCode)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, adapter.Permanent(err)
		}
		return nil, err
	}

	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("grafana %s: parse response: %w", path, err)
		}
	}
	return payload, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
