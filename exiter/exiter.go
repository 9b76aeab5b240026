// Package exiter watches the progress of a bulk resolution run and cancels
// the run's context once every descriptor group has a final outcome.
package exiter

import (
	"context"
	"sync"
	"time"
)

type Counts struct {
	Resolved int
	Pending  int
	Reported int
	Skipped  int
	Failed   int
}

func (c Counts) Total() int {
	return c.Resolved + c.Pending + c.Reported + c.Skipped + c.Failed
}

type Exiter interface {
	SetGroupCount(int)
	SetCancelFunc(context.CancelFunc)
	IncrResolved(int)
	IncrPending(int)
	IncrReported(int)
	IncrSkipped(int)
	IncrFailed(int)
	Counts() Counts
	Run(context.Context)
}

type exiter struct {
	groupCount int
	counts     Counts

	mu         *sync.Mutex
	cancelFunc context.CancelFunc
}

func New() Exiter {
	return &exiter{mu: &sync.Mutex{}}
}

func (e *exiter) SetGroupCount(val int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.groupCount = val
}

func (e *exiter) SetCancelFunc(fn context.CancelFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelFunc = fn
}

func (e *exiter) IncrResolved(val int) { e.incr(func(c *Counts) { c.Resolved += val }) }
func (e *exiter) IncrPending(val int)  { e.incr(func(c *Counts) { c.Pending += val }) }
func (e *exiter) IncrReported(val int) { e.incr(func(c *Counts) { c.Reported += val }) }
func (e *exiter) IncrSkipped(val int)  { e.incr(func(c *Counts) { c.Skipped += val }) }
func (e *exiter) IncrFailed(val int)   { e.incr(func(c *Counts) { c.Failed += val }) }

func (e *exiter) incr(fn func(*Counts)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn(&e.counts)
}

func (e *exiter) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.counts
}

func (e *exiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.isDone() {
				e.mu.Lock()
				cancel := e.cancelFunc
				e.mu.Unlock()

				if cancel != nil {
					cancel()
				}

				return
			}
		}
	}
}

func (e *exiter) isDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.groupCount > 0 && e.counts.Total() >= e.groupCount
}
