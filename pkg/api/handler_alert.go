package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/responder/pkg/dispatch"
	"github.com/codeready-toolchain/responder/pkg/models"
)

// maxAlertSize bounds the inbound alert body.
const maxAlertSize = 64 << 10

// SubmitAlertRequest is the POST /api/v1/alerts body. Mode optionally
// overrides the configured operating mode for this incident.
type SubmitAlertRequest struct {
	ID          string         `json:"id"`
	Severity    string         `json:"severity"`
	Service     string         `json:"service"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata"`
	Mode        string         `json:"mode"`
}

// AlertResponse acknowledges an accepted alert.
type AlertResponse struct {
	IncidentID string `json:"incident_id"`
	Mode       string `json:"mode"`
	Status     string `json:"status"`
}

// submitAlertHandler handles POST /api/v1/alerts: validate, enqueue, and
// return 202 immediately. Processing is asynchronous; progress is observable
// on /stream and /ws.
func (s *Server) submitAlertHandler(c *echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxAlertSize)

	var req SubmitAlertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	alert := models.Alert{
		ID:          req.ID,
		Severity:    models.Severity(req.Severity),
		Service:     req.Service,
		Description: req.Description,
		Timestamp:   req.Timestamp,
		Metadata:    req.Metadata,
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	if err := alert.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	mode := s.opts.Mode
	if req.Mode != "" {
		parsed, err := models.ParseOperatingMode(req.Mode)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		mode = parsed
	}

	if err := s.opts.Dispatcher.Submit(alert, mode); err != nil {
		if err == dispatch.ErrQueueFull {
			return echo.NewHTTPError(http.StatusTooManyRequests, "alert queue is full, retry later")
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	return c.JSON(http.StatusAccepted, &AlertResponse{
		IncidentID: alert.ID,
		Mode:       string(mode),
		Status:     "accepted",
	})
}

// cancelIncidentHandler handles DELETE /api/v1/incidents/:id for live
// incidents.
func (s *Server) cancelIncidentHandler(c *echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "incident id is required")
	}
	if !s.opts.Dispatcher.Cancel(id) {
		return echo.NewHTTPError(http.StatusNotFound, "no live incident with that id")
	}
	return c.JSON(http.StatusOK, map[string]string{"incident_id": id, "status": "cancelling"})
}
