// Package server hosts the HTTP surface: the one-time-link event forms,
// static assets, health and metrics endpoints.
package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/herald/bot"
	"github.com/hrygo/herald/internal/profile"
	"github.com/hrygo/herald/linkbroker"
	"github.com/hrygo/herald/scheduler"
	"github.com/hrygo/herald/server/router/form"
	"github.com/hrygo/herald/store"
)

//go:embed assets
var embeddedAssets embed.FS

type Server struct {
	echoServer *echo.Echo

	Profile *profile.Profile
	Store   *store.Store
}

func NewServer(profile *profile.Profile, st *store.Store, broker *linkbroker.Broker, sched *scheduler.Scheduler, gateway *bot.Gateway) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = form.Renderer{}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
			)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.StaticFS("/assets", assetFS())

	formService := form.NewFormService(broker, sched, gateway)
	formService.Register(e.Group(""))

	return &Server{
		echoServer: e,
		Profile:    profile,
		Store:      st,
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *Server) Start(_ context.Context) error {
	return s.echoServer.Start(s.Profile.HTTPAddr())
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("herald stopped properly")
}

func assetFS() fs.FS {
	sub, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}
