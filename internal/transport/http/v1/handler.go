// Package v1 provides the versioned HTTP API of the evaluation service.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/medeval/internal/auth"
	"github.com/xiaot623/medeval/internal/hub"
	"github.com/xiaot623/medeval/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	verifier *auth.Verifier
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a new handler. hub may be nil, which disables the stream endpoint.
func NewHandler(svc *service.Service, verifier *auth.Verifier, h *hub.Hub) *Handler {
	return &Handler{
		service:  svc,
		verifier: verifier,
		hub:      h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Access is gated by the bearer token, not the origin.
				return true
			},
		},
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1", h.Authenticate)

	// Evaluator API
	g.POST("/sessions", h.StartSession)
	g.GET("/sessions/open", h.GetOpenSession)
	g.GET("/sessions/:session_id/messages", h.GetSessionMessages)
	g.POST("/sessions/:session_id/turns", h.SubmitTurn)
	g.POST("/sessions/:session_id/turns/retry", h.RetryTurn)
	g.POST("/sessions/:session_id/finalize", h.FinalizeSession)
	g.GET("/sessions/:session_id/stream", h.StreamSession)

	// Trainee API
	g.GET("/subjects/:subject_id/sessions", h.ListSubjectSessions)
	g.GET("/me/sessions", h.ListMySessions)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
