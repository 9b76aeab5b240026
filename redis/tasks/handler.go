// Package tasks processes the queued resolution work.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/resolver"
)

// Handler dispatches asynq tasks to the resolution service.
type Handler struct {
	service     *resolver.Service
	store       entities.ScheduleStore
	logger      *zap.Logger
	taskTimeout time.Duration
	concurrency int
}

type HandlerOption func(*Handler)

func WithTaskTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.taskTimeout = timeout
	}
}

func WithConcurrency(n int) HandlerOption {
	return func(h *Handler) {
		h.concurrency = n
	}
}

func NewHandler(service *resolver.Service, store entities.ScheduleStore, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:     service,
		store:       store,
		logger:      logger,
		taskTimeout: 10 * time.Minute,
		concurrency: 4,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, h.taskTimeout)
	defer cancel()

	switch task.Type() {
	case TypeResolveLocations:
		return h.processResolve(ctx, task)
	case TypeApplySelection:
		return h.processSelection(ctx, task)
	case TypeHealthCheck:
		return nil
	default:
		return fmt.Errorf("unknown task type: %s", task.Type())
	}
}

func (h *Handler) processResolve(ctx context.Context, task *asynq.Task) error {
	var payload ResolvePayload

	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal resolve payload: %w", err)
		}
	}

	concurrency := payload.Concurrency
	if concurrency < 1 {
		concurrency = h.concurrency
	}

	results, err := h.service.ResolveAll(ctx, concurrency, nil)
	if err != nil {
		return err
	}

	counts := make(map[resolver.Outcome]int, len(results))
	for _, result := range results {
		counts[result.Outcome]++
	}

	h.logger.Info("resolve run finished",
		zap.Int("groups", len(results)),
		zap.Int("resolved", counts[resolver.OutcomeResolved]),
		zap.Int("pending", counts[resolver.OutcomePending]),
		zap.Int("reported", counts[resolver.OutcomeReported]),
		zap.Int("skipped", counts[resolver.OutcomeSkipped]),
		zap.Int("failed", counts[resolver.OutcomeFailed]),
	)

	return nil
}

func (h *Handler) processSelection(ctx context.Context, task *asynq.Task) error {
	var payload SelectionPayload

	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal selection payload: %w", err)
	}

	group, err := h.findGroup(ctx, entities.NewGroupKey(payload.ParishID, payload.LocationName))
	if err != nil {
		return err
	}

	result, err := h.service.ApplySelection(ctx, group, payload.Index)
	if err != nil {
		if errors.Is(err, entities.ErrSelectionExpired) {
			// Retrying cannot revive an expired selection.
			h.logger.Warn("selection expired", zap.String("group", group.Key.String()))

			return fmt.Errorf("%w: %s", asynq.SkipRetry, err)
		}

		return err
	}

	h.logger.Info("selection applied",
		zap.String("group", group.Key.String()),
		zap.String("location_id", result.Location.ID),
	)

	return nil
}

func (h *Handler) findGroup(ctx context.Context, key entities.GroupKey) (entities.Group, error) {
	groups, err := h.store.UnresolvedGroups(ctx)
	if err != nil {
		return entities.Group{}, fmt.Errorf("failed to select unresolved groups: %w", err)
	}

	for _, group := range groups {
		if group.Key == key {
			return group, nil
		}
	}

	return entities.Group{}, fmt.Errorf("%w: group %s has no unresolved schedules", asynq.SkipRetry, key)
}
