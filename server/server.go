// Package server exposes the relay's HTTP surface: the inbound tracker
// webhook and a health endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/itregistry/regrelay/internal/profile"
	"github.com/itregistry/regrelay/server/dispatcher"
	"github.com/itregistry/regrelay/server/middleware"
)

// Server hosts the webhook endpoint and forwards change events to the
// dispatcher, one goroutine per event.
type Server struct {
	echoServer *echo.Echo
	profile    *profile.Profile
	dispatcher *dispatcher.Dispatcher
	limiter    *middleware.RateLimiter
	logger     *slog.Logger
}

// New creates the HTTP server.
func New(profile *profile.Profile, d *dispatcher.Dispatcher) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			slog.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	s := &Server{
		echoServer: e,
		profile:    profile,
		dispatcher: d,
		limiter:    middleware.NewRateLimiter(10, 20),
		logger:     slog.Default(),
	}

	e.GET("/healthz", s.healthz)
	e.POST("/jira-webhook", s.handleWebhook, s.rateLimit)
	return s
}

// Start blocks serving HTTP until the context is canceled, then shuts the
// server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echoServer.Start(fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echoServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.limiter.Allow(c.RealIP()) {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		}
		return next(c)
	}
}
