// Package redisrunner runs the Redis-backed task worker.
package redisrunner

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/redis"
	"github.com/lucasrcezimbra/missas/redis/config"
	"github.com/lucasrcezimbra/missas/redis/tasks"
	"github.com/lucasrcezimbra/missas/runner"
	"github.com/lucasrcezimbra/missas/tlmt"
)

type redisRunner struct {
	cfg    *runner.Config
	logger *zap.Logger
	deps   *runner.Deps
	client *redis.Client
	server *redis.Server
}

func New(cfg *runner.Config) (runner.Runner, error) {
	return &redisRunner{
		cfg:    cfg,
		logger: runner.NewLogger(cfg.Debug),
	}, nil
}

func (r *redisRunner) Run(ctx context.Context) error {
	deps, err := runner.NewDeps(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}

	r.deps = deps

	redisCfg, err := config.NewRedisConfig()
	if err != nil {
		return err
	}

	r.client, err = redis.NewClient(redisCfg)
	if err != nil {
		return err
	}

	handler := tasks.NewHandler(deps.Resolver, deps.Store, r.logger,
		tasks.WithConcurrency(deps.Concurrency),
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeResolveLocations, handler)
	mux.Handle(tasks.TypeApplySelection, handler)
	mux.Handle(tasks.TypeHealthCheck, handler)

	r.server = redis.NewServer(redisCfg, r.logger)

	if err := r.server.Start(mux); err != nil {
		return err
	}

	_ = runner.Telemetry().Send(ctx, tlmt.NewEvent("worker_run", nil))

	r.logger.Info("worker started",
		zap.String("redis", redisCfg.GetRedisAddr()),
		zap.Bool("healthy", r.client.IsHealthy(ctx)),
	)

	<-ctx.Done()

	return nil
}

func (r *redisRunner) Close(ctx context.Context) error {
	_ = r.logger.Sync()

	if r.server != nil {
		_ = r.server.Shutdown(ctx)
	}

	if r.client != nil {
		_ = r.client.Close()
	}

	if r.deps != nil {
		return r.deps.Close()
	}

	return nil
}
