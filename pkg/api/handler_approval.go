package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/responder/pkg/approval"
)

// DecisionRequest carries an optional reviewer comment.
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// listApprovalsHandler handles GET /api/v1/approvals.
func (s *Server) listApprovalsHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"approvals": s.opts.Approvals.List(),
	})
}

// approveHandler handles POST /api/v1/approvals/:id/approve.
func (s *Server) approveHandler(c *echo.Context) error {
	return s.decide(c, s.opts.Approvals.Approve, "approved")
}

// rejectHandler handles POST /api/v1/approvals/:id/reject.
func (s *Server) rejectHandler(c *echo.Context) error {
	return s.decide(c, s.opts.Approvals.Reject, "rejected")
}

func (s *Server) decide(c *echo.Context, decide func(id, comment string) error, verdict string) error {
	id := c.Param("id")

	var req DecisionRequest
	// A body is optional on decision calls.
	_ = c.Bind(&req)

	err := decide(id, req.Comment)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "approval request not found")
	case errors.Is(err, approval.ErrAlreadyDecided):
		return echo.NewHTTPError(http.StatusConflict, "approval request already decided")
	case err != nil:
		s.logger.Error("Approval decision failed", "approval_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "approval decision failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"approval_id": id, "status": verdict})
}
