package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasrcezimbra/missas/deduper"
	"github.com/lucasrcezimbra/missas/entities"
)

// Service drives the per-group state machine: dedup check, pipeline run,
// auto-apply or disambiguation. Operations on the same group are serialized
// so the check-then-create sequence cannot race.
type Service struct {
	store    entities.Store
	resolver *Resolver
	pending  *PendingStore
	locks    *deduper.KeyedMutex
	logger   *zap.Logger
}

func NewService(store entities.Store, resolver *Resolver, pending *PendingStore, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		pending:  pending,
		locks:    deduper.NewKeyedMutex(),
		logger:   logger,
	}
}

func (s *Service) Pending() *PendingStore {
	return s.pending
}

// ResolveGroup resolves one descriptor group to a terminal outcome. It
// never returns a transport error; those degrade to OutcomeReported so a
// bulk run keeps going.
func (s *Service) ResolveGroup(ctx context.Context, group entities.Group) Result {
	unlock := s.locks.Lock(group.Key.String())
	defer unlock()

	ans := Result{Group: group}

	existing, err := s.store.FindExisting(ctx, group.Key)

	switch {
	case err == nil:
		// A sibling schedule already carries the canonical location; no
		// provider call for this group, ever again.
		attached, err := s.store.AttachGroup(ctx, group.Key, existing.ID)
		if err != nil {
			return s.failed(ans, fmt.Errorf("failed to attach group %s: %w", group.Key, err))
		}

		ans.Outcome = OutcomeResolved
		ans.Location = existing
		ans.Attached = attached

		return ans
	case !errors.Is(err, entities.ErrNotFound):
		return s.failed(ans, fmt.Errorf("failed to look up group %s: %w", group.Key, err))
	}

	candidates, err := s.resolver.Resolve(ctx, group)
	if err != nil {
		if errors.Is(err, entities.ErrNotConfigured) {
			ans.Outcome = OutcomeSkipped

			return ans
		}

		return s.failed(ans, err)
	}

	switch len(candidates) {
	case 0:
		s.logger.Warn("no candidates for group", zap.String("group", group.Key.String()))

		ans.Outcome = OutcomeReported

		return ans
	case 1:
		location, attached, err := s.apply(ctx, group, candidates[0])
		if err != nil {
			return s.failed(ans, err)
		}

		ans.Outcome = OutcomeResolved
		ans.Location = location
		ans.Attached = attached

		return ans
	default:
		// Never guess between plausible buildings; park the candidates
		// for an operator.
		s.pending.Put(group.Key, candidates)

		ans.Outcome = OutcomePending
		ans.Candidates = candidates

		return ans
	}
}

// ApplySelection finalizes an operator's choice for a group whose earlier
// resolution produced multiple candidates. An unknown or expired key yields
// entities.ErrSelectionExpired and mutates nothing.
func (s *Service) ApplySelection(ctx context.Context, group entities.Group, index int) (Result, error) {
	unlock := s.locks.Lock(group.Key.String())
	defer unlock()

	ans := Result{Group: group}

	candidates, ok := s.pending.Get(group.Key)
	if !ok {
		return ans, entities.ErrSelectionExpired
	}

	if index < 0 || index >= len(candidates) {
		return ans, fmt.Errorf("candidate index %d out of range [0,%d)", index, len(candidates))
	}

	location, attached, err := s.apply(ctx, group, candidates[index])
	if err != nil {
		return s.failed(ans, err), err
	}

	s.pending.Delete(group.Key)

	ans.Outcome = OutcomeResolved
	ans.Location = location
	ans.Attached = attached

	return ans, nil
}

// ResolveAll resolves every unresolved group, independent groups in
// parallel. The onResult callback (optional) observes each outcome as it
// lands.
func (s *Service) ResolveAll(ctx context.Context, concurrency int, onResult func(Result)) ([]Result, error) {
	groups, err := s.store.UnresolvedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select unresolved groups: %w", err)
	}

	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		results = make([]Result, 0, len(groups))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			result := s.ResolveGroup(ctx, group)

			mu.Lock()
			results = append(results, result)
			mu.Unlock()

			if onResult != nil {
				onResult(result)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	return results, nil
}

func (s *Service) apply(ctx context.Context, group entities.Group, candidate entities.Candidate) (entities.Location, int, error) {
	location := candidate.ToLocation()

	if location.Name == "" {
		// Reverse-geocoded candidates carry only an address.
		location.Name = group.LocationName
		if location.Name == "" {
			location.Name = group.Parish.Name
		}
	}

	stored, err := s.store.GetOrCreateLocation(ctx, &location)
	if err != nil {
		return entities.Location{}, 0, fmt.Errorf("failed to get or create location: %w", err)
	}

	attached, err := s.store.AttachGroup(ctx, group.Key, stored.ID)
	if err != nil {
		return entities.Location{}, 0, fmt.Errorf("failed to attach group %s: %w", group.Key, err)
	}

	s.logger.Info("group resolved",
		zap.String("group", group.Key.String()),
		zap.String("location_id", stored.ID),
		zap.String("source", candidate.Source),
		zap.Int("schedules", attached),
	)

	return stored, attached, nil
}

func (s *Service) failed(ans Result, err error) Result {
	s.logger.Error("resolution failed", zap.String("group", ans.Group.Key.String()), zap.Error(err))

	ans.Outcome = OutcomeFailed
	ans.Err = err

	return ans
}
