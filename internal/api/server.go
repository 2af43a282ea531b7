// Package api exposes the analyzer over HTTP for dashboards and tooling.
package api

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/perfstack/nmon-insight/internal/config"
)

// Server wraps the HTTP server and its lifecycle helpers.
type Server struct {
	cfg  config.ServerConfig
	echo *echo.Echo
}

// NewServer constructs an HTTP server with all routes registered.
func NewServer(cfg config.ServerConfig, handler *Handler, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", handler.Health)
	e.GET("/api/files", handler.ListFiles)
	e.POST("/api/upload", handler.Upload)
	e.GET("/api/files/:id", handler.FileDetail)
	e.GET("/api/export/csv", handler.ExportCSV)
	e.GET("/api/config", handler.GetConfig)

	if logger != nil {
		e.HTTPErrorHandler = func(err error, c echo.Context) {
			logger.Debug("http error", slog.String("path", c.Path()), slog.Any("error", err))
			e.DefaultHTTPErrorHandler(err, c)
		}
	}

	return &Server{cfg: cfg, echo: e}
}

// Start serves requests until Shutdown is invoked.
func (s *Server) Start() error {
	return s.echo.Start(s.cfg.Address)
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying router (useful for tests).
func (s *Server) Echo() *echo.Echo { return s.echo }
