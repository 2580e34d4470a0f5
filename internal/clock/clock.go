// Package clock abstracts time so that waits and expiries can be driven by
// tests without real sleeps.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock provides the current time and a context-aware sleep.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type clock struct {
	base clockwork.Clock
}

// New returns a Clock backed by the wall clock.
func New() Clock {
	return From(clockwork.NewRealClock())
}

// From adapts a clockwork clock, real or fake.
func From(base clockwork.Clock) Clock {
	return clock{base: base}
}

func (c clock) Now() time.Time {
	return c.base.Now()
}

func (c clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.base.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// Managed is a hand-driven clock for tests. Unlike a clockwork fake, Sleep
// does not block waiting for Advance: it moves time forward instantly and
// records the requested duration, so retry schedules run inline.
type Managed struct {
	mu     sync.Mutex
	start  time.Time
	offset time.Duration
	sleeps []time.Duration
}

// NewManaged returns a Managed clock starting at startTime.
func NewManaged(startTime time.Time) *Managed {
	return &Managed{start: startTime}
}

func (c *Managed) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start.Add(c.offset)
}

func (c *Managed) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.offset += d
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

// WarpForward moves time forward by offset and returns the new time.
func (c *Managed) WarpForward(offset time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += offset
	return c.start.Add(c.offset)
}

// Sleeps returns every duration passed to Sleep, in order.
func (c *Managed) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
