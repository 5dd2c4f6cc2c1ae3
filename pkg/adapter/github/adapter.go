// Package github implements the source-hosting adapter: repository context
// over the REST API, issue/comment actions, and an optional bounded clone
// cache for file access without a round trip per file.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// Name is the integration name used in bundles and events.
const Name = "github"

const (
	defaultBaseURL = "https://api.github.com"
	requestTimeout = 15 * time.Second
)

// Config for the github adapter.
type Config struct {
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// Token is sent as a bearer token; empty means unauthenticated access
	// to public repositories only.
	Token string
	// Owner and Repo are the defaults when params omit them.
	Owner string
	Repo  string
	// CacheDir enables the clone cache; empty disables it and file_contents
	// goes through the REST API instead.
	CacheDir string
	// CacheTTL bounds how stale a cached working copy may get (default 2h).
	CacheTTL time.Duration
	// CacheMaxBytes bounds the cache directory size (default 2 GiB).
	CacheMaxBytes int64
}

// Adapter is the GitHub integration. Safe for concurrent use.
type Adapter struct {
	cfg    Config
	client *http.Client
	cache  *cloneCache // nil when the cache is disabled
}

// New creates the adapter.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: requestTimeout},
	}
	if cfg.CacheDir != "" {
		a.cache = newCloneCache(cfg.CacheDir, cfg.CacheTTL, cfg.CacheMaxBytes)
	}
	return a
}

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return Name }

// Capabilities implements adapter.Adapter.
func (a *Adapter) Capabilities() adapter.Capabilities {
	caps := adapter.Capabilities{
		ContextKinds: []string{
			"repo_info", "commits_since", "open_issues", "pull_requests",
			"workflow_runs", "file_contents", "code_search",
		},
		ActionKinds: []string{"create_issue", "add_comment"},
	}
	if a.cache != nil {
		caps.Features = []string{"clone_cache"}
	}
	return caps
}

// Connect verifies the token and endpoint with a rate-limit probe. The
// rate-limit resource is free: it does not consume quota.
func (a *Adapter) Connect(ctx context.Context) error {
	_, err := a.get(ctx, "/rate_limit", nil)
	if err != nil {
		return fmt.Errorf("github connect: %w", err)
	}
	return nil
}

// Disconnect releases the clone cache. The HTTP client has nothing to close.
func (a *Adapter) Disconnect(_ context.Context) error {
	return nil
}

// HealthCheck probes the rate-limit endpoint.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	_, err := a.get(ctx, "/rate_limit", nil)
	return err == nil
}

// FetchContext gathers repository context. Transient HTTP failures retry
// with backoff; 4xx responses are permanent.
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
	owner, repo := a.repoCoords(params)

	switch kind {
	case "repo_info":
		return a.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), nil)

	case "commits_since":
		q := url.Values{}
		if since := stringParam(params, "since"); since != "" {
			q.Set("since", since)
		}
		q.Set("per_page", "20")
		return a.get(ctx, fmt.Sprintf("/repos/%s/%s/commits", owner, repo), q)

	case "open_issues":
		q := url.Values{"state": {"open"}, "per_page": {"20"}}
		return a.get(ctx, fmt.Sprintf("/repos/%s/%s/issues", owner, repo), q)

	case "pull_requests":
		q := url.Values{"state": {"open"}, "per_page": {"20"}}
		return a.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls", owner, repo), q)

	case "workflow_runs":
		q := url.Values{"per_page": {"10"}}
		return a.get(ctx, fmt.Sprintf("/repos/%s/%s/actions/runs", owner, repo), q)

	case "file_contents":
		path := stringParam(params, "path")
		if path == "" {
			return nil, adapter.Permanent(fmt.Errorf("file_contents: missing path"))
		}
		if a.cache != nil {
			return a.fileFromCache(ctx, owner, repo, path)
		}
		return a.fileFromAPI(ctx, owner, repo, path)

	case "code_search":
		query := stringParam(params, "query")
		if query == "" {
			return nil, adapter.Permanent(fmt.Errorf("code_search: missing query"))
		}
		q := url.Values{"q": {fmt.Sprintf("%s repo:%s/%s", query, owner, repo)}}
		return a.get(ctx, "/search/code", q)
	}

	return nil, fmt.Errorf("%w: context %q", adapter.ErrUnsupported, kind)
}

// RenderCommand returns the effective request text for gate classification.
// Both actions create content, so the verb is "create".
func (a *Adapter) RenderCommand(kind string, params map[string]any) (string, error) {
	owner, repo := a.repoCoords(params)

	switch kind {
	case "create_issue":
		title := stringParam(params, "title")
		if title == "" {
			return "", fmt.Errorf("create_issue: missing title")
		}
		return fmt.Sprintf("create issue in %s/%s: %q", owner, repo, title), nil

	case "add_comment":
		number, ok := intParam(params, "issue_number")
		if !ok {
			return "", fmt.Errorf("add_comment: missing issue_number")
		}
		return fmt.Sprintf("create comment on %s/%s#%d", owner, repo, number), nil
	}

	return "", fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
}

// ExecuteAction creates issues and comments. Neither is idempotent, so
// failures are not retried without an idempotency key.
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

	owner, repo := a.repoCoords(params)
	var path string
	var body map[string]any

	switch kind {
	case "create_issue":
		path = fmt.Sprintf("/repos/%s/%s/issues", owner, repo)
		body = map[string]any{
			"title": stringParam(params, "title"),
			"body":  stringParam(params, "body"),
		}
		if labels, ok := params["labels"].([]string); ok {
			body["labels"] = labels
		}
	case "add_comment":
		number, _ := intParam(params, "issue_number")
		path = fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
		body = map[string]any{"body": stringParam(params, "body")}
	default:
		return nil, fmt.Errorf("%w: action %q", adapter.ErrUnsupported, kind)
	}

	_, idempotent := params["idempotency_key"]
	var created any
	err = adapter.RetryIdempotent(ctx, Name+".action."+kind, idempotent, func() error {
		var perr error
		created, perr = a.post(ctx, path, body)
		return perr
	})
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", kind, err)
	}

	details := map[string]any{"command": command}
	if m, ok := created.(map[string]any); ok {
		if u, ok := m["html_url"].(string); ok {
			details["url"] = u
		}
	}
	return &models.ActionResult{Changed: true, Details: details}, nil
}

// fileFromCache serves file contents from the bounded working copy.
func (a *Adapter) fileFromCache(ctx context.Context, owner, repo, path string) (any, error) {
	dir, err := a.cache.checkout(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") {
		return nil, adapter.Permanent(fmt.Errorf("file_contents: path escapes repository"))
	}
	data, err := os.ReadFile(filepath.Join(dir, clean))
	if err != nil {
		return nil, adapter.Permanent(fmt.Errorf("file_contents: %w", err))
	}
	return map[string]any{"path": path, "content": string(data), "source": "clone_cache"}, nil
}

// fileFromAPI fetches one file through the contents endpoint and decodes it.
func (a *Adapter) fileFromAPI(ctx context.Context, owner, repo, path string) (any, error) {
	payload, err := a.get(ctx, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path), nil)
	if err != nil {
		return nil, err
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return payload, nil
	}
	encoded, _ := m["content"].(string)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(encoded, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return map[string]any{"path": path, "content": string(decoded), "source": "api"}, nil
}

func (a *Adapter) get(ctx context.Context, path string, query url.Values) (any, error) {
	return a.do(ctx, http.MethodGet, path, query, nil)
}

func (a *Adapter) post(ctx context.Context, path string, body map[string]any) (any, error) {
	return a.do(ctx, http.MethodPost, path, nil, body)
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
	req.Header.Set("Accept", "application/vnd.github+json")
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
		err := fmt.Errorf("github %s %s: HTTP %d: %s", method, path, resp.StatusCode, truncate(string(data), 200))
		// Client errors will not heal on retry; server errors might.
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, adapter.Permanent(err)
		}
		return nil, err
	}

	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("github %s: parse response: %w", path, err)
		}
	}
	return payload, nil
}

func (a *Adapter) repoCoords(params map[string]any) (string, string) {
	owner := stringParam(params, "owner")
	if owner == "" {
		owner = a.cfg.Owner
	}
	repo := stringParam(params, "repo")
	if repo == "" {
		repo = a.cfg.Repo
	}
	return owner, repo
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

var _ adapter.Adapter = (*Adapter)(nil)
