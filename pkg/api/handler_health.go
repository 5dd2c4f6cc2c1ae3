package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/responder/pkg/breaker"
	"github.com/codeready-toolchain/responder/pkg/bus"
	"github.com/codeready-toolchain/responder/pkg/dispatch"
	"github.com/codeready-toolchain/responder/pkg/store"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse is the GET /api/v1/health body.
type HealthResponse struct {
	Status     string              `json:"status"`
	Backends   map[string]bool     `json:"backends"`
	Breaker    breaker.Snapshot    `json:"circuit_breaker"`
	Bus        bus.Stats           `json:"event_bus"`
	Dispatcher dispatch.Health     `json:"dispatcher"`
	Database   *store.HealthStatus `json:"database,omitempty"`
}

// healthHandler handles GET /api/v1/health. A backend being unreachable
// degrades health; only the database being down (when configured) makes the
// process unhealthy.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:     healthStatusHealthy,
		Backends:   make(map[string]bool),
		Breaker:    s.opts.Breaker.Snapshot(),
		Bus:        s.opts.Bus.Stats(),
		Dispatcher: s.opts.Dispatcher.Health(),
	}

	for _, backend := range s.opts.Registry.All() {
		ok := backend.HealthCheck(reqCtx)
		resp.Backends[backend.Name()] = ok
		if !ok {
			resp.Status = healthStatusDegraded
		}
	}

	httpStatus := http.StatusOK
	if s.opts.Store != nil {
		dbHealth, err := store.Health(reqCtx, s.opts.Store.DB())
		resp.Database = dbHealth
		if err != nil {
			resp.Status = healthStatusUnhealthy
			httpStatus = http.StatusServiceUnavailable
		}
	}

	return c.JSON(httpStatus, resp)
}
