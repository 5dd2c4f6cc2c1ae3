// Package notion implements the documentation adapter. The backend is
// best-effort: when Notion is unreachable the adapter degrades to a no-op
// and returns clearly flagged mock records instead of failing the incident.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// Name is the integration name used in bundles and events.
const Name = "notion"

const (
	defaultBaseURL = "https://api.notion.com/v1"
	apiVersion     = "2022-06-28"
	requestTimeout = 15 * time.Second
)

// Config for the notion adapter.
type Config struct {
	BaseURL string
	Token   string
	// ParentPageID is where create_page puts new pages.
	ParentPageID string
}

// Adapter is the Notion integration. Safe for concurrent use.
type Adapter struct {
	cfg     Config
	client  *http.Client
	offline atomic.Bool
}

// New creates the adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: requestTimeout}}
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		ContextKinds: []string{"search", "get_page"},
		ActionKinds:  []string{"create_page", "append_blocks"},
		Features:     []string{"offline_degradation"},
	}
}

// Connect probes the API. Failure switches the adapter into offline mode
// instead of erroring: documentation is never worth failing an incident for.
func (a *Adapter) Connect(ctx context.Context) error {
	_, err := a.do(ctx, http.MethodGet, "/users/me", nil)
	a.offline.Store(err != nil)
	return nil
}

// Disconnect is a no-op.
func (a *Adapter) Disconnect(_ context.Context) error { return nil }

// HealthCheck reports reachability and refreshes the offline flag.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	_, err := a.do(ctx, http.MethodGet, "/users/me", nil)
	a.offline.Store(err != nil)
	return err == nil
}

// Offline reports whether the adapter is currently degraded.
func (a *Adapter) Offline() bool { return a.offline.Load() }

// FetchContext searches or reads documentation. When offline, a flagged
// mock record comes back instead of an error.
func (a *Adapter) FetchContext(ctx context.Context, kind string, params map[string]any) (any, error) {
	if !a.Capabilities().HasContext(kind) {
		return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
	}
	if a.offline.Load() {
		return mockRecord(kind), nil
	}

	var payload any
	var err error
	switch kind {
	case "search":
		query, _ := params["query"].(string)
		payload, err = a.do(ctx, http.MethodPost, "/search",
			map[string]any{"query": query, "page_size": 10})
	case "get_page":
		pageID, _ := params["page_id"].(string)
		if pageID == "" {
			return nil, fmt.Errorf("get_page: missing page_id")
		}
		payload, err = a.do(ctx, http.MethodGet, "/pages/"+pageID, nil)
	}
	if err != nil {
		// Degrade rather than fail; the bundle records the mock flag.
		a.offline.Store(true)
		return mockRecord(kind), nil
	}
	return payload, nil
}

// RenderCommand returns the request text for gate classification.
func (a *Adapter) RenderCommand(kind string, params map[string]any) (string, error) {
	switch kind {
	case "create_page":
		title, _ := params["title"].(string)
		if title == "" {
			return "", fmt.Errorf("create_page: missing title")
		}
		return fmt.Sprintf("create page %q in notion", title), nil
	case "append_blocks":
		pageID, _ := params["page_id"].(string)
		if pageID == "" {
			return "", fmt.Errorf("append_blocks: missing page_id")
		}
		return fmt.Sprintf("update page %s in notion", pageID), nil
	}
	return "", fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
}

// ExecuteAction writes documentation. Offline execution returns a flagged
// mock result so the incident record shows the write never happened.
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

	if a.offline.Load() {
		return &models.ActionResult{
			Changed: false,
			Output:  "notion offline: recorded as mock",
			Details: mockRecord(kind),
		}, nil
	}

	var method, path string
	var body map[string]any
	switch kind {
	case "create_page":
		method = http.MethodPost
		path = "/pages"
		body = map[string]any{
			"parent": map[string]any{"page_id": a.cfg.ParentPageID},
			"properties": map[string]any{
				"title": map[string]any{"title": []map[string]any{
					{"text": map[string]any{"content": params["title"]}},
				}},
			},
		}
	case "append_blocks":
		pageID, _ := params["page_id"].(string)
		method = http.MethodPatch
		path = "/blocks/" + pageID + "/children"
		body = map[string]any{"children": params["blocks"]}
	}

	payload, err := a.do(ctx, method, path, body)
	if err != nil {
		a.offline.Store(true)
		return &models.ActionResult{
			Changed: false,
			Output:  "notion unreachable: recorded as mock",
			Details: mockRecord(kind),
		}, nil
	}

	details := map[string]any{"command": command}
	if m, ok := payload.(map[string]any); ok {
		if id, ok := m["id"].(string); ok {
			details["page_id"] = id
		}
	}
	return &models.ActionResult{Changed: true, Details: details}, nil
}

// mockRecord is the clearly flagged stand-in used while offline.
func mockRecord(kind string) map[string]any {
	return map[string]any{
		"mock":      true,
		"mock_id":   uuid.NewString(),
		"kind":      kind,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"note":      "documentation backend offline; no call was made",
	}
}

func (a *Adapter) do(ctx context.Context, method, path string, body map[string]any) (any, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	req.Header.Set("Notion-Version", apiVersion)
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
		return nil, fmt.Errorf("notion %s %s: HTTP %d", method, path, resp.StatusCode)
	}

	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("notion %s: parse response: %w", path, err)
		}
	}
	return payload, nil
}

var _ adapter.Adapter = (*Adapter)(nil)
