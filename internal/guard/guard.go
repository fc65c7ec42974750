// Package guard implements a guarded session: a stack of teardown steps that
// is unwound on every exit path of a run.
//
// Steps run in reverse registration order. Each step gets a context that is
// detached from the caller's cancellation, so dropping triggers or releasing
// table locks still happens when the run itself was cancelled.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loykin/lhm/internal/common"
	"github.com/loykin/lhm/internal/constants"
)

// Step is a single teardown action.
type Step func(ctx context.Context) error

type entry struct {
	name string
	fn   Step
}

// Guard collects teardown steps.
type Guard struct {
	steps   []entry
	timeout time.Duration
	logger  *common.Logger
}

// New returns an empty guard. logger may be nil.
func New(logger *common.Logger) *Guard {
	if logger == nil {
		logger = common.GetLogger().WithComponent("guard")
	}
	return &Guard{timeout: constants.DefaultTeardownTimeout, logger: logger}
}

// Defer registers fn to run when the guard is released.
func (g *Guard) Defer(name string, fn Step) {
	g.steps = append(g.steps, entry{name: name, fn: fn})
}

// Len returns the number of pending steps.
func (g *Guard) Len() int { return len(g.steps) }

// Release unwinds all pending steps, last registered first, and returns cause
// joined with any teardown failures. cause is never replaced.
// A guard can be released once; later calls only return cause.
func (g *Guard) Release(ctx context.Context, cause error) error {
	steps := g.steps
	g.steps = nil
	if len(steps) == 0 {
		return cause
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	errs := []error{cause}
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		if err := s.fn(tctx); err != nil {
			g.logger.Error("teardown step failed", "step", s.name, "error", err)
			errs = append(errs, fmt.Errorf("teardown %s: %w", s.name, err))
			continue
		}
		g.logger.Debug("teardown step done", "step", s.name)
	}
	return errors.Join(errs...)
}

// Run executes fn inside a fresh guard and releases it afterwards, including
// when fn panics.
func Run(ctx context.Context, logger *common.Logger, fn func(ctx context.Context, g *Guard) error) (err error) {
	g := New(logger)
	defer func() {
		if r := recover(); r != nil {
			_ = g.Release(ctx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
		err = g.Release(ctx, err)
	}()
	return fn(ctx, g)
}
