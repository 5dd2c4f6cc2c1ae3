package adapter

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// fakeAdapter is a minimal Adapter for registry tests.
type fakeAdapter struct {
	name      string
	healthy   bool
	connects  atomic.Int32
	connected atomic.Bool
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Connect(context.Context) error {
	f.connects.Add(1)
	f.connected.Store(true)
	return nil
}
func (f *fakeAdapter) Disconnect(context.Context) error {
	f.connected.Store(false)
	return nil
}
func (f *fakeAdapter) HealthCheck(context.Context) bool { return f.healthy }
func (f *fakeAdapter) Capabilities() Capabilities {
	return Capabilities{ContextKinds: []string{"pods"}, ActionKinds: []string{"restart_pod"}}
}
func (f *fakeAdapter) FetchContext(context.Context, string, map[string]any) (any, error) {
	return map[string]any{"ok": true}, nil
}
func (f *fakeAdapter) RenderCommand(kind string, _ map[string]any) (string, error) {
	return "noop " + kind, nil
}
func (f *fakeAdapter) ExecuteAction(context.Context, string, map[string]any) (*models.ActionResult, error) {
	return &models.ActionResult{Changed: true}, nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "kubernetes", healthy: true})
	r.Register(&fakeAdapter{name: "grafana", healthy: false})

	a, err := r.Get("kubernetes")
	require.NoError(t, err)
	assert.Equal(t, "kubernetes", a.Name())

	_, err = r.Get("missing")
	assert.Error(t, err)

	assert.Equal(t, []string{"grafana", "kubernetes"}, r.Names())
}

func TestRegistryHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{name: "kubernetes", healthy: true})
	r.Register(&fakeAdapter{name: "grafana", healthy: false})

	healthy := r.Healthy(context.Background())
	require.Len(t, healthy, 1)
	assert.Equal(t, "kubernetes", healthy[0].Name())
}

// Connect is idempotent at the contract level; ConnectAll calling it again
// must be harmless.
func TestConnectAllIdempotent(t *testing.T) {
	r := NewRegistry()
	fa := &fakeAdapter{name: "kubernetes", healthy: true}
	r.Register(fa)

	r.ConnectAll(context.Background())
	r.ConnectAll(context.Background())
	assert.True(t, fa.connected.Load())

	r.Shutdown()
	assert.False(t, fa.connected.Load())
}

func TestCapabilities(t *testing.T) {
	c := Capabilities{ContextKinds: []string{"pods", "logs"}, ActionKinds: []string{"restart_pod"}}
	assert.True(t, c.HasContext("pods"))
	assert.False(t, c.HasContext("dashboards"))
	assert.True(t, c.HasAction("restart_pod"))
	assert.False(t, c.HasAction("delete_resource"))
}

func TestIsDryRun(t *testing.T) {
	assert.True(t, IsDryRun(map[string]any{ParamDryRun: true}))
	assert.False(t, IsDryRun(map[string]any{ParamDryRun: "yes"}))
	assert.False(t, IsDryRun(nil))
}

func TestMain(m *testing.M) {
	retryBase = time.Millisecond
	os.Exit(m.Run())
}

func TestRetryTransient(t *testing.T) {
	var calls int
	err := Retry(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustion(t *testing.T) {
	var calls int
	err := Retry(context.Background(), "test", func() error {
		calls++
		return errors.New("always failing")
	})
	assert.Error(t, err)
	assert.Equal(t, DefaultRetryAttempts, calls)
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	var calls int
	sentinel := errors.New("permission denied")
	err := Retry(context.Background(), "test", func() error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetryIdempotentRunsOnceWhenNotIdempotent(t *testing.T) {
	var calls int
	err := RetryIdempotent(context.Background(), "test", false, func() error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
