// Package resolverunner implements the one-shot CLI run mode: resolve every
// unresolved group, print the tally, exit.
package resolverunner

import (
	"context"

	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/exiter"
	"github.com/lucasrcezimbra/missas/resolver"
	"github.com/lucasrcezimbra/missas/runner"
	"github.com/lucasrcezimbra/missas/tlmt"
)

type resolveRunner struct {
	cfg    *runner.Config
	logger *zap.Logger
	deps   *runner.Deps
}

func New(cfg *runner.Config) (runner.Runner, error) {
	return &resolveRunner{
		cfg:    cfg,
		logger: runner.NewLogger(cfg.Debug),
	}, nil
}

func (r *resolveRunner) Run(ctx context.Context) error {
	deps, err := runner.NewDeps(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}

	r.deps = deps

	groups, err := deps.Store.UnresolvedGroups(ctx)
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		r.logger.Info("nothing to resolve")

		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tally := exiter.New()
	tally.SetGroupCount(len(groups))
	tally.SetCancelFunc(cancel)

	go tally.Run(runCtx)

	_, err = deps.Resolver.ResolveAll(runCtx, deps.Concurrency, func(result resolver.Result) {
		switch result.Outcome {
		case resolver.OutcomeResolved:
			tally.IncrResolved(1)
		case resolver.OutcomePending:
			tally.IncrPending(1)
		case resolver.OutcomeReported:
			tally.IncrReported(1)
		case resolver.OutcomeSkipped:
			tally.IncrSkipped(1)
		case resolver.OutcomeFailed:
			tally.IncrFailed(1)
		}
	})
	if err != nil {
		return err
	}

	counts := tally.Counts()

	r.logger.Info("resolution finished",
		zap.Int("groups", len(groups)),
		zap.Int("resolved", counts.Resolved),
		zap.Int("pending", counts.Pending),
		zap.Int("reported", counts.Reported),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)

	evt := tlmt.NewEvent("resolve_run", map[string]any{
		"groups":   len(groups),
		"resolved": counts.Resolved,
		"pending":  counts.Pending,
	})

	_ = runner.Telemetry().Send(ctx, evt)

	return nil
}

func (r *resolveRunner) Close(context.Context) error {
	_ = r.logger.Sync()

	if r.deps != nil {
		return r.deps.Close()
	}

	return nil
}
