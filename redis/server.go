package redis

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/redis/config"
)

type Server struct {
	server *asynq.Server
	cfg    *config.RedisConfig
	logger *zap.Logger
	mu     sync.Mutex
}

func NewServer(cfg *config.RedisConfig, logger *zap.Logger) *Server {
	redisOpt := asynq.RedisClientOpt{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Workers,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			if n >= cfg.MaxRetries {
				logger.Error("task exhausted retries", zap.String("type", task.Type()), zap.Error(err))

				return -1 * time.Second
			}

			delay := time.Duration(1<<uint(n)) * time.Second
			if delay > cfg.RetryInterval {
				delay = cfg.RetryInterval
			}

			logger.Warn("task failed, retry scheduled",
				zap.String("type", task.Type()),
				zap.Int("attempt", n),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			return delay
		},
		Queues:         cfg.QueuePriorities,
		StrictPriority: true,
	})

	return &Server{
		server: srv,
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Server) Start(mux *asynq.ServeMux) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.server.Start(mux)
}

func (s *Server) Shutdown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.server.Shutdown()

	return nil
}
