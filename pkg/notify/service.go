package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service delivers incident notifications. Nil-safe: all methods are no-ops
// on a nil receiver, so the coordinator can carry it unconditionally.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger

	mu      sync.Mutex
	threads map[string]string // incident id -> thread ts
}

var _ coordinator.Notifier = (*Service)(nil)

// NewService creates a notification service. Returns nil when Token or
// Channel is empty, which disables notifications entirely.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return newService(NewClient(cfg.Token, cfg.Channel), cfg.DashboardURL)
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return newService(client, dashboardURL)
}

func newService(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify"),
		threads:      make(map[string]string),
	}
}

// IncidentStarted announces that automated response has begun. The posted
// message's ts is cached so the terminal notification threads under it.
func (s *Service) IncidentStarted(ctx context.Context, alert models.Alert) {
	if s == nil {
		return
	}

	blocks := BuildStartedMessage(alert, s.dashboardURL)
	ts, err := s.client.PostMessage(ctx, blocks, "", 5*time.Second)
	if err != nil {
		s.logger.Error("Failed to send incident start notification",
			"incident_id", alert.ID, "error", err)
		return
	}

	s.mu.Lock()
	s.threads[alert.ID] = ts
	s.mu.Unlock()
}

// IncidentFinished sends the terminal status notification, threaded under the
// start message when one was posted.
func (s *Service) IncidentFinished(ctx context.Context, alert models.Alert, result coordinator.Result) {
	if s == nil {
		return
	}

	s.mu.Lock()
	threadTS := s.threads[alert.ID]
	delete(s.threads, alert.ID)
	s.mu.Unlock()

	blocks := BuildFinishedMessage(alert, result, s.dashboardURL)
	if _, err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send incident notification",
			"incident_id", alert.ID, "status", string(result.Status), "error", err)
	}
}
