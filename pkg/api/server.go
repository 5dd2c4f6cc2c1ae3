// Package api exposes the HTTP surface: alert ingest, incident queries,
// approval decisions, the live event stream (SSE and WebSocket), health, and
// Prometheus metrics.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/responder/pkg/adapter"
	"github.com/codeready-toolchain/responder/pkg/approval"
	"github.com/codeready-toolchain/responder/pkg/breaker"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/coordinator"
	"github.com/codeready-toolchain/responder/pkg/dispatch"
	"github.com/codeready-toolchain/responder/pkg/models"
	"github.com/codeready-toolchain/responder/pkg/store"
)

// Options wires the server's collaborators. Store and MetricsHandler may be
// nil; the matching endpoints degrade to 503 / 404.
type Options struct {
	Mode             models.OperatingMode
	Coordinator      *coordinator.Coordinator
	Dispatcher       *dispatch.Dispatcher
	Registry         *adapter.Registry
	Approvals        *approval.Registry
	Breaker          *breaker.Breaker
	Bus              *bus.Bus
	Store            *store.Store
	MetricsHandler   http.Handler
	AllowedWSOrigins []string
}

// Server is the HTTP layer. It holds no pipeline state of its own.
type Server struct {
	opts   Options
	logger *slog.Logger
	http   *http.Server
}

// NewServer creates the server; call Start to listen.
func NewServer(opts Options) *Server {
	return &Server{
		opts:   opts,
		logger: slog.Default().With("component", "api"),
	}
}

// Routes builds the echo handler tree.
func (s *Server) Routes() *echo.Echo {
	e := echo.New()
	e.Use(recoverPanics(), securityHeaders(), requestLogger())

	v1 := e.Group("/api/v1")
	v1.POST("/alerts", s.submitAlertHandler)
	v1.GET("/incidents", s.listIncidentsHandler)
	v1.GET("/incidents/:id", s.getIncidentHandler)
	v1.GET("/incidents/:id/trace", s.getTraceHandler)
	v1.DELETE("/incidents/:id", s.cancelIncidentHandler)
	v1.GET("/approvals", s.listApprovalsHandler)
	v1.POST("/approvals/:id/approve", s.approveHandler)
	v1.POST("/approvals/:id/reject", s.rejectHandler)
	v1.GET("/stream", s.streamHandler)
	v1.GET("/ws", s.wsHandler)
	v1.GET("/health", s.healthHandler)

	if s.opts.MetricsHandler != nil {
		e.GET("/metrics", func(c *echo.Context) error {
			s.opts.MetricsHandler.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
	return e
}

// Start listens on addr and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
