package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// disconnectGrace bounds how long Shutdown waits per adapter before moving on.
const disconnectGrace = 5 * time.Second

// Registry holds the configured adapters. Safe for concurrent use; adapters
// are registered during startup and only read afterwards.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own name. Last registration wins, which
// lets tests swap in fakes.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

// Get returns the named adapter.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %q", name)
	}
	return a, nil
}

// Names returns the registered adapter names, sorted for deterministic
// iteration.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the adapters in name order.
func (r *Registry) All() []Adapter {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}

// Healthy returns the adapters that pass a health check right now. Probes
// run sequentially; each is bounded by the caller's ctx.
func (r *Registry) Healthy(ctx context.Context) []Adapter {
	var healthy []Adapter
	for _, a := range r.All() {
		if a.HealthCheck(ctx) {
			healthy = append(healthy, a)
		} else {
			slog.Debug("Adapter failed health check", "integration", a.Name())
		}
	}
	return healthy
}

// ConnectAll connects every adapter, logging failures without aborting:
// partial availability is the norm and the coordinator records per-backend
// failures in the context bundle.
func (r *Registry) ConnectAll(ctx context.Context) {
	for _, a := range r.All() {
		if err := a.Connect(ctx); err != nil {
			slog.Warn("Adapter failed to connect",
				"integration", a.Name(), "error", err)
		} else {
			slog.Info("Adapter connected", "integration", a.Name())
		}
	}
}

// Shutdown disconnects every adapter with a bounded grace period each.
func (r *Registry) Shutdown() {
	for _, a := range r.All() {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
		if err := a.Disconnect(ctx); err != nil {
			slog.Warn("Adapter disconnect failed",
				"integration", a.Name(), "error", err)
		}
		cancel()
	}
}
