package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// heartbeatInterval keeps idle SSE/WS connections alive through proxies.
// Variable so tests can shrink it.
var heartbeatInterval = 30 * time.Second

type heartbeat struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// streamHandler handles GET /api/v1/stream: a Server-Sent Events feed of
// pipeline activity. ?incident_id= filters to one incident; recent history
// for the filter is replayed on attach.
func (s *Server) streamHandler(c *echo.Context) error {
	incidentID := c.QueryParam("incident_id")

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	rc := http.NewResponseController(c.Response())

	sub := s.opts.Bus.Subscribe(incidentID)
	defer s.opts.Bus.Unsubscribe(sub)

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
				return nil
			}
			_ = rc.Flush()

		case <-ticker.C:
			data, _ := json.Marshal(heartbeat{Type: "heartbeat", Timestamp: time.Now().UTC()})
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
				return nil
			}
			_ = rc.Flush()
		}
	}
}
