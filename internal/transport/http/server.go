// Package http provides the HTTP server implementation for the evaluation service.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xiaot623/medeval/internal/auth"
	"github.com/xiaot623/medeval/internal/config"
	"github.com/xiaot623/medeval/internal/domain"
	"github.com/xiaot623/medeval/internal/hub"
	"github.com/xiaot623/medeval/internal/service"
	v1 "github.com/xiaot623/medeval/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server.
func NewServer(cfg *config.Config, svc *service.Service, verifier *auth.Verifier, h *hub.Hub, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(requestLoggerConfig(logger)))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit("1M"))
	if cfg.RateLimitPerMinute > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(cfg.RateLimitPerMinute) / 60),
			Burst:     cfg.RateLimitPerMinute,
			ExpiresIn: time.Minute,
		})))
	}

	// Handlers
	v1Handler := v1.NewHandler(svc, verifier, h)

	// Register Routes
	v1Handler.RegisterRoutes(e)

	return e
}

func requestLoggerConfig(logger *zap.Logger) middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			switch {
			case v.Status >= http.StatusInternalServerError:
				logger.Error("request", append(fields, zap.Error(v.Error))...)
			case v.Status >= http.StatusBadRequest:
				logger.Debug("request", fields...)
			default:
				logger.Info("request", fields...)
			}
			return nil
		},
	}
}

// errorHandler renders framework errors (unknown route, rate limit, body limit)
// with the same body as handler errors.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			message = http.StatusText(status)
			if m, ok := he.Message.(string); ok {
				message = m
			}
		} else {
			logger.Error("unhandled error", zap.Error(err))
		}

		if err := c.JSON(status, domain.ErrorResponse{Error: message, Code: codeFor(status)}); err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return string(domain.KindNotFound)
	case http.StatusUnauthorized:
		return string(domain.KindUnauthenticated)
	case http.StatusForbidden:
		return string(domain.KindForbidden)
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if status < http.StatusInternalServerError {
		return string(domain.KindValidation)
	}
	return "internal"
}
