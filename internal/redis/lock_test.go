package redisclient

import (
	"context"
	"errors"
	"testing"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	err := l.WithLock(ctx, "worker:complete-overdue", func(ctx context.Context) error {
		inner := l.WithLock(ctx, "worker:complete-overdue", func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		if !errors.Is(inner, ErrLockNotAcquired) {
			t.Fatalf("inner err = %v, want ErrLockNotAcquired", inner)
		}
		return l.WithLock(ctx, "other", func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}

	ran := false
	if err := l.WithLock(ctx, "worker:complete-overdue", func(context.Context) error {
		ran = true
		return nil
	}); err != nil || !ran {
		t.Fatalf("lock not released: ran=%v err=%v", ran, err)
	}
}

func TestLocalLockerReturnsFnError(t *testing.T) {
	l := NewLocalLocker()
	want := errors.New("sweep failed")
	if err := l.WithLock(context.Background(), "k", func(context.Context) error { return want }); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}
