package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shortlink/config"
	link "shortlink/handlers/link"
)

type Server struct {
	E        *echo.Echo
	Log      *zap.Logger
	BaseHost string
	app      *app
	jwt      string
}

func NewServer(a *app, log *zap.Logger, cfg *config.Config) *Server {
	e := echo.New()

	// essential middleware only
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())

	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		E:        e,
		Log:      log,
		BaseHost: cfg.BaseHost,
		app:      a,
		jwt:      cfg.JWTSecret,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.E.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	s.E.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	link := link.New(s.app.engine, s.app.limiter, s.app.stats, link.NewIdentifier(s.jwt), s.Log, s.BaseHost)

	s.E.POST("/api/v1/links", link.Create)
	s.E.GET("/:code", link.Redirect)
	s.E.HEAD("/:code", link.Redirect)
	s.E.GET("/api/v1/links/:code/stats", link.Stats)
}

func (s *Server) Start(addr string) error {
	s.Log.Info("server starting", zap.String("addr", addr))
	return s.E.Start(addr)
}
