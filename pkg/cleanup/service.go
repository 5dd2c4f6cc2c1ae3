// Package cleanup enforces the incident retention policy.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes terminal incidents persisted before the cutoff and reports
// how many rows were removed. *store.Store satisfies this.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config bounds how long incidents are kept and how often the sweep runs.
type Config struct {
	MaxAge        time.Duration
	SweepInterval time.Duration
}

// Service periodically prunes incidents older than MaxAge. Deletion is
// idempotent and safe to run from multiple replicas.
type Service struct {
	cfg    Config
	pruner Pruner
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service. Returns nil when pruner is nil so
// callers without persistence can skip it.
func NewService(cfg Config, pruner Pruner) *Service {
	if pruner == nil {
		return nil
	}
	return &Service{
		cfg:    cfg,
		pruner: pruner,
		logger: slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s == nil || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Retention sweeper started",
		"max_age", s.cfg.MaxAge, "interval", s.cfg.SweepInterval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Retention sweeper stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.MaxAge)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	count, err := s.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: pruned old incidents", "count", count, "cutoff", cutoff)
	}
}
