package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/medeval/internal/domain"
)

var statusByKind = map[domain.ErrorKind]int{
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindValidation:      http.StatusBadRequest,
	domain.KindForbidden:       http.StatusForbidden,
	domain.KindUnauthenticated: http.StatusUnauthorized,
	domain.KindConflict:        http.StatusConflict,
	domain.KindUpstreamModel:   http.StatusBadGateway,
	domain.KindPersistence:     http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Server faults carry a generic
// message; details stay in the logs.
func respondError(c echo.Context, err error) error {
	status := StatusFor(err)
	kind := domain.KindOf(err)
	if kind == "" {
		kind = "internal"
	}

	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	if status >= http.StatusInternalServerError && kind != domain.KindUpstreamModel {
		message = "internal server error"
	}
	return c.JSON(status, domain.ErrorResponse{Error: message, Code: string(kind)})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: message, Code: string(domain.KindValidation)})
}
