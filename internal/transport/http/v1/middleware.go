package v1

import (
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/medeval/internal/domain"
)

const principalKey = "principal"

// Authenticate verifies the bearer token and stores the principal in the context.
// Browsers cannot set headers on websocket upgrades, so access_token is also
// accepted as a query parameter.
func (h *Handler) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var (
			p   domain.Principal
			err error
		)
		if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
			p, err = h.verifier.FromHeader(header)
		} else if token := c.QueryParam("access_token"); token != "" {
			p, err = h.verifier.Verify(token)
		} else {
			err = domain.Unauthenticated("missing Authorization header")
		}
		if err != nil {
			return respondError(c, err)
		}
		c.Set(principalKey, p)
		return next(c)
	}
}

// principal returns the authenticated principal of the request.
func principal(c echo.Context) domain.Principal {
	p, _ := c.Get(principalKey).(domain.Principal)
	return p
}
