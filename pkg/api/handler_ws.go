package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

const wsWriteTimeout = 10 * time.Second

// wsHandler handles GET /api/v1/ws: the same event feed as /stream over
// WebSocket, for dashboard clients that need bidirectional framing.
// ?incident_id= filters to one incident.
func (s *Server) wsHandler(c *echo.Context) error {
	opts := &websocket.AcceptOptions{}
	if len(s.opts.AllowedWSOrigins) > 0 {
		opts.OriginPatterns = s.opts.AllowedWSOrigins
	} else {
		// No allowlist configured: local development only.
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), opts)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	incidentID := c.QueryParam("incident_id")
	sub := s.opts.Bus.Subscribe(incidentID)
	defer s.opts.Bus.Unsubscribe(sub)

	ctx := c.Request().Context()

	// Reads are only consumed to detect the close handshake.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return conn.Close(websocket.StatusGoingAway, "server shutting down")

		case evt, ok := <-sub.Events():
			if !ok {
				return conn.Close(websocket.StatusNormalClosure, "")
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := writeWS(ctx, conn, data); err != nil {
				return nil
			}

		case <-ticker.C:
			data, _ := json.Marshal(heartbeat{Type: "heartbeat", Timestamp: time.Now().UTC()})
			if err := writeWS(ctx, conn, data); err != nil {
				return nil
			}
		}
	}
}

func writeWS(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
