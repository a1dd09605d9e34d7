// Package api exposes the report service and sync controls over HTTP and
// streams drain events over WebSocket.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/benbakir04-create/teachers-report/backend/internal/connectivity"
	"github.com/benbakir04-create/teachers-report/backend/internal/logging"
	"github.com/benbakir04-create/teachers-report/backend/internal/reports"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/scheduler"
)

// Deps are the collaborators the API serves.
type Deps struct {
	Reports   *reports.Service
	Queue     *queue.Queue
	Scheduler *scheduler.Scheduler
	Observer  *connectivity.Observer
	Hub       *WSHub
	// Degraded reports whether the store fell back to memory.
	Degraded func() bool
}

// Server is the HTTP API server.
type Server struct {
	router *echo.Echo
	deps   Deps
	logger *logging.Logger
}

// NewServer builds the router.
func NewServer(deps Deps, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Get()
	}
	if deps.Degraded == nil {
		deps.Degraded = func() bool { return false }
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(logger)

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP request",
				map[string]interface{}{
					"method":     v.Method,
					"path":       v.URIPath,
					"status":     v.Status,
					"latency_ms": v.Latency.Milliseconds(),
				})
			return nil
		},
	}))

	s := &Server{router: e, deps: deps, logger: logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/api/health", s.health)

	r := s.router.Group("/api/reports")
	r.POST("", s.createReport)
	r.GET("", s.listReports)
	r.GET("/:id", s.getReport)

	sg := s.router.Group("/api/sync")
	sg.GET("/status", s.syncStatus)
	sg.POST("/drain", s.drain)
	sg.GET("/dead-letters", s.deadLetters)
	sg.POST("/dead-letters/:id/requeue", s.requeue)

	s.router.PUT("/api/connectivity", s.setConnectivity)
	s.router.GET("/api/connectivity", s.getConnectivity)

	s.router.GET("/api/settings/:key", s.getSetting)
	s.router.PUT("/api/settings/:key", s.putSetting)

	if s.deps.Hub != nil {
		s.router.GET("/ws", echo.WrapHandler(s.deps.Hub))
	}
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", map[string]interface{}{"addr": addr})
		errCh <- s.router.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	if err := s.router.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
