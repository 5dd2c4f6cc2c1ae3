package api

import (
	"errors"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/responder/pkg/store"
)

// listIncidentsHandler handles GET /api/v1/incidents.
func (s *Server) listIncidentsHandler(c *echo.Context) error {
	if s.opts.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence is not configured")
	}

	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be 1-500")
		}
		limit = n
	}

	incidents, err := s.opts.Store.ListIncidents(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list incidents", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list incidents")
	}
	return c.JSON(http.StatusOK, map[string]any{"incidents": incidents})
}

// getIncidentHandler handles GET /api/v1/incidents/:id.
func (s *Server) getIncidentHandler(c *echo.Context) error {
	if s.opts.Store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "persistence is not configured")
	}

	result, err := s.opts.Store.GetIncident(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "incident not found")
	}
	if err != nil {
		s.logger.Error("Failed to load incident", "incident_id", c.Param("id"), "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load incident")
	}
	return c.JSON(http.StatusOK, result)
}

// getTraceHandler handles GET /api/v1/incidents/:id/trace. Live incidents are
// served from memory; finished ones from the store.
func (s *Server) getTraceHandler(c *echo.Context) error {
	id := c.Param("id")

	if trace, ok := s.opts.Coordinator.Trace(id); ok {
		return c.JSON(http.StatusOK, map[string]any{
			"incident_id": id,
			"trace_id":    trace.ID,
			"entries":     trace.Entries(),
		})
	}

	if s.opts.Store != nil {
		entries, err := s.opts.Store.GetTrace(c.Request().Context(), id)
		if err == nil {
			return c.JSON(http.StatusOK, map[string]any{
				"incident_id": id,
				"entries":     entries,
			})
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("Failed to load trace", "incident_id", id, "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to load trace")
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "no trace for that incident")
}
