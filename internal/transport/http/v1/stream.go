package v1

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/medeval/internal/domain"
)

// StreamSession upgrades to a websocket that replays the transcript and then
// pushes new messages and the close event of the session.
// GET /v1/sessions/:session_id/stream
func (h *Handler) StreamSession(c echo.Context) error {
	if h.hub == nil {
		return c.JSON(http.StatusNotFound, domain.ErrorResponse{Error: "streaming is disabled", Code: string(domain.KindNotFound)})
	}

	sessionID := c.Param("session_id")
	messages, err := h.service.GetTranscript(c.Request().Context(), principal(c), sessionID)
	if err != nil {
		return respondError(c, err)
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return nil
	}

	conn := h.hub.NewConnection(ws, sessionID)
	for i := range messages {
		ev := domain.SessionEvent{
			Type:      domain.EventTypeMessage,
			SessionID: sessionID,
			Ts:        messages[i].CreatedAt.UnixMilli(),
			Message:   &messages[i],
		}
		_ = ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := ws.WriteJSON(ev); err != nil {
			_ = ws.Close()
			return nil
		}
	}

	// Messages appended between the replay and registration are not replayed;
	// clients reconcile by message_id against the transcript endpoint.
	h.hub.Serve(conn)
	return nil
}
