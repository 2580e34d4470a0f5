package clock

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSleepWaitsForClock(t *testing.T) {
	fake := clockwork.NewFakeClock()
	clk := From(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- clk.Sleep(ctx, 5*time.Second) }()

	if err := fake.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("sleeper never started: %v", err)
	}
	select {
	case err := <-done:
		t.Fatalf("Sleep returned early: %v", err)
	default:
	}

	fake.Advance(5 * time.Second)
	if err := <-done; err != nil {
		t.Fatalf("Sleep: %v", err)
	}
}

func TestSleepHonoursCancel(t *testing.T) {
	clk := From(clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := clk.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if err := clk.Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("zero sleep err = %v, want context.Canceled", err)
	}
}

func TestManagedSleepAdvancesInstantly(t *testing.T) {
	start := time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC)
	clk := NewManaged(start)

	if err := clk.Sleep(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if err := clk.Sleep(context.Background(), 10*time.Second); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if got := clk.Now(); !got.Equal(start.Add(15 * time.Second)) {
		t.Fatalf("now = %v", got)
	}
	if !reflect.DeepEqual(clk.Sleeps(), []time.Duration{5 * time.Second, 10 * time.Second}) {
		t.Fatalf("sleeps = %v", clk.Sleeps())
	}
	if got := clk.WarpForward(time.Minute); !got.Equal(start.Add(75 * time.Second)) {
		t.Fatalf("warp = %v", got)
	}
}
