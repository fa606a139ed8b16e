package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/medeval/internal/domain"
)

// StartSession creates a session, or resumes the caller's open one.
// POST /v1/sessions
func (h *Handler) StartSession(c echo.Context) error {
	var req domain.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SubjectID == "" {
		return badRequest(c, "subject_id is required")
	}

	resp, err := h.service.StartSession(c.Request().Context(), principal(c), req.SubjectID)
	if err != nil {
		return respondError(c, err)
	}

	status := http.StatusCreated
	if resp.Resumed {
		status = http.StatusOK
	}
	return c.JSON(status, resp)
}

// GetOpenSession returns the caller's open session for a subject, if any.
// GET /v1/sessions/open?subject_id=
func (h *Handler) GetOpenSession(c echo.Context) error {
	subjectID := c.QueryParam("subject_id")
	if subjectID == "" {
		return badRequest(c, "subject_id is required")
	}

	sessionID, err := h.service.FindOpenSession(c.Request().Context(), principal(c), subjectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, domain.OpenSessionResponse{SessionID: sessionID})
}

// GetSessionMessages returns the ordered transcript of a session.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetSessionMessages(c echo.Context) error {
	messages, err := h.service.GetTranscript(c.Request().Context(), principal(c), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, domain.TranscriptResponse{Messages: messages})
}

// SubmitTurn executes one conversation turn. Any client-supplied history is ignored.
// POST /v1/sessions/:session_id/turns
func (h *Handler) SubmitTurn(c echo.Context) error {
	var req domain.TurnRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Message == "" {
		return badRequest(c, "message is required")
	}

	reply, err := h.service.SubmitTurn(c.Request().Context(), principal(c), c.Param("session_id"), req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, domain.TurnResponse{Response: reply})
}

// RetryTurn re-asks the model for the unanswered last message.
// POST /v1/sessions/:session_id/turns/retry
func (h *Handler) RetryTurn(c echo.Context) error {
	reply, err := h.service.RetryLastTurn(c.Request().Context(), principal(c), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, domain.TurnResponse{Response: reply})
}

// FinalizeSession summarizes and closes a session.
// POST /v1/sessions/:session_id/finalize
func (h *Handler) FinalizeSession(c echo.Context) error {
	resp, err := h.service.Finalize(c.Request().Context(), principal(c), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSubjectSessions lists a trainee's sessions with summaries.
// GET /v1/subjects/:subject_id/sessions
func (h *Handler) ListSubjectSessions(c echo.Context) error {
	return h.listSessions(c, c.Param("subject_id"))
}

// ListMySessions lists the calling trainee's own sessions.
// GET /v1/me/sessions
func (h *Handler) ListMySessions(c echo.Context) error {
	return h.listSessions(c, principal(c).ActorID)
}

func (h *Handler) listSessions(c echo.Context, subjectID string) error {
	sessions, err := h.service.ListSubjectSessions(c.Request().Context(), principal(c), subjectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}
