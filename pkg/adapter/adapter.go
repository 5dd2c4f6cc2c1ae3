// Package adapter defines the uniform capability contract every backend
// integration implements, plus the registry and retry helpers shared by the
// concrete adapters.
package adapter

import (
	"context"
	"errors"

	"github.com/codeready-toolchain/responder/pkg/models"
)

// Errors shared by adapter implementations.
var (
	// ErrNotConnected means the adapter was used before Connect succeeded.
	ErrNotConnected = errors.New("adapter not connected")
	// ErrUnsupported means the adapter does not provide the requested
	// context or action kind.
	ErrUnsupported = errors.New("unsupported kind")
	// ErrDestructiveDisabled means the adapter-level destructive guard
	// refused the action before the gate was even consulted.
	ErrDestructiveDisabled = errors.New("destructive operations disabled")
)

// Capabilities statically describes what an adapter can do.
type Capabilities struct {
	ContextKinds []string `json:"context_kinds"`
	ActionKinds  []string `json:"action_kinds"`
	Features     []string `json:"features,omitempty"`
}

// HasContext reports whether the adapter claims the context kind.
func (c Capabilities) HasContext(kind string) bool { return contains(c.ContextKinds, kind) }

// HasAction reports whether the adapter claims the action kind.
func (c Capabilities) HasAction(kind string) bool { return contains(c.ActionKinds, kind) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ParamDryRun is the action parameter that requests a no-side-effect
// preview. Every ExecuteAction implementation honors it.
const ParamDryRun = "dry_run"

// IsDryRun reads the dry_run flag from action params.
func IsDryRun(params map[string]any) bool {
	v, _ := params[ParamDryRun].(bool)
	return v
}

// Adapter is the uniform wrapper around one external system.
//
// Connect and Disconnect are idempotent. FetchContext never mutates external
// state; ExecuteAction may. Both are bounded by the caller's context
// deadline.
type Adapter interface {
	// Name returns the integration name used in context bundles, events
	// and audit entries.
	Name() string

	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// HealthCheck is a cheap liveness probe; it must not mutate.
	HealthCheck(ctx context.Context) bool

	Capabilities() Capabilities

	// FetchContext gathers read-only context of the given kind.
	FetchContext(ctx context.Context, kind string, params map[string]any) (any, error)

	// RenderCommand returns the effective command or request text the
	// adapter would issue for the action, so the gate can classify it
	// before anything runs.
	RenderCommand(kind string, params map[string]any) (string, error)

	// ExecuteAction performs the action. When params carry dry_run=true
	// the adapter reports the would-be effect without issuing it.
	ExecuteAction(ctx context.Context, kind string, params map[string]any) (*models.ActionResult, error)
}

// Verifier is implemented by adapters that can confirm an action's
// post-condition after execution (a bounded poll).
type Verifier interface {
	Verify(ctx context.Context, kind string, params map[string]any) (*models.VerificationResult, error)
}
