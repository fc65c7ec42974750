// Package throttler defines the pacing contract the chunker consumes once per
// chunk, plus the built-in policies and a registry to build them by name.
package throttler

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/lhm/internal/constants"
)

var (
	ErrUnknownThrottler = errors.New("throttler: unknown throttler")
	ErrInvalidStride    = errors.New("throttler: stride must be positive")
)

// Throttler paces the backfill. Both methods are queried again for every chunk,
// so implementations may adapt between iterations.
type Throttler interface {
	// Stride is the number of order column values the next chunk spans.
	Stride() int64
	// Run blocks for the pacing interval, or until ctx is done.
	Run(ctx context.Context) error
}

// Time sleeps a fixed delay between chunks of a fixed stride.
type Time struct {
	StrideSize int64         `mapstructure:"stride"`
	Delay      time.Duration `mapstructure:"delay"`
}

// NewTime returns a time throttler; non-positive values fall back to the defaults.
func NewTime(stride int64, delay time.Duration) *Time {
	t := &Time{StrideSize: stride, Delay: delay}
	t.applyDefaults()
	return t
}

func (t *Time) applyDefaults() {
	if t.StrideSize <= 0 {
		t.StrideSize = constants.DefaultStride
	}
	if t.Delay < 0 {
		t.Delay = constants.DefaultThrottleDelay
	}
}

func (t *Time) Stride() int64 { return t.StrideSize }

func (t *Time) Run(ctx context.Context) error {
	if t.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(t.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// None never pauses.
type None struct {
	StrideSize int64 `mapstructure:"stride"`
}

func (n *None) Stride() int64 {
	if n.StrideSize <= 0 {
		return constants.DefaultStride
	}
	return n.StrideSize
}

func (n *None) Run(ctx context.Context) error { return ctx.Err() }

var defaultThrottler Throttler = NewTime(constants.DefaultStride, constants.DefaultThrottleDelay)

// Default returns the process wide throttler used when a run configures none.
func Default() Throttler { return defaultThrottler }

// SetDefault replaces the process wide throttler. It is meant to be called once
// at startup; nil is ignored.
func SetDefault(t Throttler) {
	if t == nil {
		return
	}
	defaultThrottler = t
}
