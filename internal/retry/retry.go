// Package retry runs bounded attempt/wait/re-check loops on an injected
// clock. Delays come from a backoff.BackOff schedule.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/vidasaude/telehealth-core/internal/clock"
)

// ErrNotSatisfied is returned by Poll when every check came back false.
var ErrNotSatisfied = errors.New("condition not satisfied")

// Policy bounds a retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// NewBackOff builds the delay schedule used between attempts.
	NewBackOff func() backoff.BackOff
	Clock      clock.Clock
}

// Steps returns a schedule that doubles from initial up to max with no
// jitter, so 5s/10s yields exactly 5s then 10s.
func Steps(initial, max time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := &backoff.ExponentialBackOff{
			InitialInterval:     initial,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         max,
		}
		b.Reset()
		return b
	}
}

// Constant returns a schedule with a fixed delay.
func Constant(d time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(d)
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) clock() clock.Clock {
	if p.Clock == nil {
		return clock.New()
	}
	return p.Clock
}

func (p Policy) schedule() backoff.BackOff {
	if p.NewBackOff == nil {
		return &backoff.ZeroBackOff{}
	}
	return p.NewBackOff()
}

// Do runs op until it succeeds, returns a permanent error, or the attempts
// are exhausted. The attempt index passed to op starts at zero. The last
// error is returned unwrapped from any backoff.PermanentError.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	b := p.schedule()
	clk := p.clock()

	var err error
	for attempt := 0; attempt < p.attempts(); attempt++ {
		if attempt > 0 {
			next := b.NextBackOff()
			if next == backoff.Stop {
				break
			}
			if serr := clk.Sleep(ctx, next); serr != nil {
				return serr
			}
		}

		err = op(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
	}
	return err
}

// Poll waits according to the schedule before each check and stops as
// soon as check reports true. It returns ErrNotSatisfied when every check
// came back false, or the first error raised by check.
func Poll(ctx context.Context, p Policy, check func(ctx context.Context) (bool, error)) error {
	b := p.schedule()
	clk := p.clock()

	for attempt := 0; attempt < p.attempts(); attempt++ {
		next := b.NextBackOff()
		if next == backoff.Stop {
			break
		}
		if err := clk.Sleep(ctx, next); err != nil {
			return err
		}
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrNotSatisfied
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
