package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/adapter"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Token: "test-token", Owner: "acme", Repo: "payments"})
}

func TestFetchRepoInfo(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/payments", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"full_name": "acme/payments", "open_issues_count": 3})
	})

	payload, err := a.FetchContext(context.Background(), "repo_info", nil)
	require.NoError(t, err)
	m := payload.(map[string]any)
	assert.Equal(t, "acme/payments", m["full_name"])
}

func TestFetchCommitsSince(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/payments/commits", r.URL.Path)
		assert.Equal(t, "2026-08-26T00:00:00Z", r.URL.Query().Get("since"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"sha": "abc123"}})
	})

	payload, err := a.FetchContext(context.Background(), "commits_since",
		map[string]any{"since": "2026-08-26T00:00:00Z"})
	require.NoError(t, err)
	assert.Len(t, payload, 1)
}

func TestFetchFileContentsViaAPI(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/payments/contents/runbooks/oom.md", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": base64.StdEncoding.EncodeToString([]byte("# OOM runbook\n")),
		})
	})

	payload, err := a.FetchContext(context.Background(), "file_contents",
		map[string]any{"path": "runbooks/oom.md"})
	require.NoError(t, err)
	m := payload.(map[string]any)
	assert.Equal(t, "# OOM runbook\n", m["content"])
	assert.Equal(t, "api", m["source"])
}

// Client errors must not be retried: a 404 is permanent.
func TestClientErrorIsPermanent(t *testing.T) {
	var calls int
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := a.FetchContext(context.Background(), "repo_info", nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCreateIssue(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/payments/issues", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Pod crash loop in payments", body["title"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"number": 42, "html_url": "https://github.com/acme/payments/issues/42",
		})
	})

	result, err := a.ExecuteAction(context.Background(), "create_issue", map[string]any{
		"title": "Pod crash loop in payments",
		"body":  "Automated incident report",
	})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, "https://github.com/acme/payments/issues/42", result.Details["url"])
}

func TestAddCommentDryRun(t *testing.T) {
	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("dry run must not reach the API")
	})

	result, err := a.ExecuteAction(context.Background(), "add_comment", map[string]any{
		"issue_number": 42, "body": "update", adapter.ParamDryRun: true,
	})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Contains(t, result.Output, "acme/payments#42")
}

func TestRenderCommandUsesCreateVerb(t *testing.T) {
	a := New(Config{Owner: "acme", Repo: "payments"})

	cmd, err := a.RenderCommand("create_issue", map[string]any{"title": "incident"})
	require.NoError(t, err)
	assert.Equal(t, `create issue in acme/payments: "incident"`, cmd)

	cmd, err = a.RenderCommand("add_comment", map[string]any{"issue_number": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, "create comment on acme/payments#7", cmd)
}

// fakeGit materializes a canned working copy instead of cloning.
type fakeGit struct {
	mu     sync.Mutex
	clones int
	pulls  int
	files  map[string]string // relative path -> content written on clone
}

func (f *fakeGit) clone(_ context.Context, _ string, dir string) error {
	f.mu.Lock()
	f.clones++
	f.mu.Unlock()
	for rel, content := range f.files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeGit) pull(_ context.Context, _ string) error {
	f.mu.Lock()
	f.pulls++
	f.mu.Unlock()
	return nil
}

func TestCloneCacheReusesFreshCopy(t *testing.T) {
	git := &fakeGit{files: map[string]string{"README.md": "hello"}}
	c := newCloneCache(t.TempDir(), time.Hour, DefaultCacheMaxBytes)
	c.git = git

	dir1, err := c.checkout(context.Background(), "acme", "payments")
	require.NoError(t, err)
	dir2, err := c.checkout(context.Background(), "acme", "payments")
	require.NoError(t, err)

	assert.Equal(t, dir1, dir2)
	assert.Equal(t, 1, git.clones)
	assert.Equal(t, 0, git.pulls)
}

func TestCloneCacheRefreshesAfterTTL(t *testing.T) {
	git := &fakeGit{files: map[string]string{"README.md": "hello"}}
	c := newCloneCache(t.TempDir(), time.Hour, DefaultCacheMaxBytes)
	c.git = git

	now := time.Now()
	c.now = func() time.Time { return now }

	_, err := c.checkout(context.Background(), "acme", "payments")
	require.NoError(t, err)

	now = now.Add(3 * time.Hour)
	_, err = c.checkout(context.Background(), "acme", "payments")
	require.NoError(t, err)

	assert.Equal(t, 1, git.clones)
	assert.Equal(t, 1, git.pulls)
}

func TestCloneCacheEvictsLRUOverBudget(t *testing.T) {
	git := &fakeGit{files: map[string]string{"blob.bin": "0123456789"}} // 10 bytes per repo
	c := newCloneCache(t.TempDir(), time.Hour, 15)                      // fits one repo, not two
	c.git = git

	now := time.Now()
	c.now = func() time.Time { return now }

	old, err := c.checkout(context.Background(), "acme", "payments")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	fresh, err := c.checkout(context.Background(), "acme", "billing")
	require.NoError(t, err)

	assert.NoDirExists(t, old, "least-recently-used copy should be evicted")
	assert.DirExists(t, fresh, "the copy just handed out must survive")
}

func TestFileContentsFromCache(t *testing.T) {
	git := &fakeGit{files: map[string]string{"runbooks/oom.md": "# OOM"}}
	a := New(Config{Owner: "acme", Repo: "payments", CacheDir: t.TempDir()})
	a.cache.git = git

	payload, err := a.FetchContext(context.Background(), "file_contents",
		map[string]any{"path": "runbooks/oom.md"})
	require.NoError(t, err)
	m := payload.(map[string]any)
	assert.Equal(t, "# OOM", m["content"])
	assert.Equal(t, "clone_cache", m["source"])
}

func TestFileContentsRejectsEscape(t *testing.T) {
	git := &fakeGit{}
	a := New(Config{Owner: "acme", Repo: "payments", CacheDir: t.TempDir()})
	a.cache.git = git

	_, err := a.FetchContext(context.Background(), "file_contents",
		map[string]any{"path": "../../etc/passwd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes repository")
}
