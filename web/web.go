// Package web exposes the resolution and nearby-query HTTP API.
package web

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/geo"
	"github.com/lucasrcezimbra/missas/resolver"
	"github.com/lucasrcezimbra/missas/web/internal/server"
)

type Config struct {
	Addr     string
	Debug    bool
	Store    entities.Store
	Resolver *resolver.Service
	Geo      *geo.Service
	Queue    server.Queue
	Logger   *zap.Logger
}

func Start(ctx context.Context, cfg Config) error {
	e := echo.New()
	e.Debug = cfg.Debug
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := server.NewServer(cfg.Store, cfg.Resolver, cfg.Geo, cfg.Queue, cfg.Logger)

	server.RegisterHandlers(e, srv)

	go func() {
		<-ctx.Done()

		_ = e.Shutdown(context.Background())
	}()

	return e.Start(cfg.Addr)
}
