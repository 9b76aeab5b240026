// Package redis wraps the asynq client and server used by the worker run
// mode.
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lucasrcezimbra/missas/redis/config"
	"github.com/lucasrcezimbra/missas/redis/tasks"
)

type Client struct {
	client *asynq.Client
	ping   *goredis.Client
	cfg    *config.RedisConfig
	mu     sync.RWMutex
}

func NewClient(cfg *config.RedisConfig) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	ping := goredis.NewClient(&goredis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := ping.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client: asynq.NewClient(redisOpt),
		ping:   ping,
		cfg:    cfg,
	}, nil
}

// EnqueueTask enqueues a task. Options pass through to asynq, e.g.
// asynq.Queue(name), asynq.MaxRetry(n), asynq.Unique(ttl).
func (c *Client) EnqueueTask(ctx context.Context, taskType string, payload []byte, opts ...asynq.Option) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	task := asynq.NewTask(taskType, payload)

	if _, err := c.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	return nil
}

// EnqueueResolve queues a full resolution run in the default queue.
func (c *Client) EnqueueResolve(ctx context.Context, payload []byte) error {
	return c.EnqueueTask(ctx, tasks.TypeResolveLocations, payload, asynq.Queue(tasks.QueueDefault))
}

// EnqueueSelection queues an operator selection in the critical queue so it
// lands before bulk work.
func (c *Client) EnqueueSelection(ctx context.Context, payload []byte) error {
	return c.EnqueueTask(ctx, tasks.TypeApplySelection, payload, asynq.Queue(tasks.QueueCritical))
}

func (c *Client) IsHealthy(ctx context.Context) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.ping.Ping(ctx).Err() == nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	return c.ping.Close()
}
