// Package server provides the HTTP server and Echo setup for the relay.
package server

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server is the HTTP server (Echo) with shared-secret auth and registered handlers.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *slog.Logger
}

// Handler registers routes on the Echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

// NewServer builds the Echo server with recovery, request logging,
// shared-secret auth, and the given handlers.
func NewServer(log *slog.Logger, addr, sharedSecret string, handlers ...Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(SharedSecretMiddleware(sharedSecret, func(c echo.Context) bool {
		path := c.Request().URL.Path
		// Interactions carry their own ed25519 signature instead.
		return path == "/ping" || path == "/health" || path == "/api/interactions"
	}))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo:   e,
		addr:   addr,
		logger: log.With(slog.String("component", "server")),
	}
}

// SharedSecretMiddleware rejects requests whose X-Shared-Secret header does
// not match secret. An empty secret disables the check; skip exempts
// individual routes. Rejection happens before any handler logic runs.
func SharedSecretMiddleware(secret string, skip func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" || (skip != nil && skip(c)) {
				return next(c)
			}
			provided := c.Request().Header.Get("X-Shared-Secret")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			return next(c)
		}
	}
}

// Start starts the HTTP server (blocks until shutdown).
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop gracefully shuts down the server using the given context.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
