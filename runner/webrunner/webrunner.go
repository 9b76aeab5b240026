// Package webrunner serves the HTTP API.
package webrunner

import (
	"context"
	"errors"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/geo"
	"github.com/lucasrcezimbra/missas/redis"
	redisconfig "github.com/lucasrcezimbra/missas/redis/config"
	"github.com/lucasrcezimbra/missas/runner"
	"github.com/lucasrcezimbra/missas/tlmt"
	"github.com/lucasrcezimbra/missas/web"
)

type webRunner struct {
	cfg    *runner.Config
	logger *zap.Logger
	deps   *runner.Deps
	queue  *redis.Client
}

func New(cfg *runner.Config) (runner.Runner, error) {
	return &webRunner{
		cfg:    cfg,
		logger: runner.NewLogger(cfg.Debug),
	}, nil
}

func (r *webRunner) Run(ctx context.Context) error {
	deps, err := runner.NewDeps(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}

	r.deps = deps

	// With Redis configured, bulk resolution runs hand off to the worker
	// instead of blocking a request.
	if os.Getenv("REDIS_URL") != "" {
		redisCfg, err := redisconfig.NewRedisConfig()
		if err != nil {
			return err
		}

		r.queue, err = redis.NewClient(redisCfg)
		if err != nil {
			return err
		}
	}

	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("web_run", nil))

	webCfg := web.Config{
		Addr:     r.cfg.Addr,
		Debug:    r.cfg.Debug,
		Store:    deps.Store,
		Resolver: deps.Resolver,
		Geo:      geo.New(deps.Store, geo.WithDefaultRadius(deps.RadiusKM)),
		Logger:   r.logger,
	}

	if r.queue != nil {
		webCfg.Queue = r.queue
	}

	err = web.Start(ctx, webCfg)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (r *webRunner) Close(context.Context) error {
	_ = r.logger.Sync()

	if r.queue != nil {
		_ = r.queue.Close()
	}

	if r.deps != nil {
		return r.deps.Close()
	}

	return nil
}
