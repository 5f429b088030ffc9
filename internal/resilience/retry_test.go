package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sam-kirby/taskinator/internal/platform"
	"github.com/sam-kirby/taskinator/internal/resilience"
)

func newFastRetryer(attempts int) *resilience.Retryer {
	return resilience.NewRetryer(resilience.RetryConfig{
		MaxAttempts: attempts,
		Backoff:     time.Millisecond,
		MaxBackoff:  4 * time.Millisecond,
	})
}

func TestRetryerSucceedsImmediately(t *testing.T) {
	t.Parallel()

	calls := 0
	err := newFastRetryer(4).Do(context.Background(), "mute", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryerRetriesTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	err := newFastRetryer(4).Do(context.Background(), "mute", func(context.Context) error {
		calls++
		if calls < 3 {
			return platform.Transient("mute", errors.New("rate limited"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryerExhaustsBudget(t *testing.T) {
	t.Parallel()

	transient := platform.Transient("move", errors.New("gateway timeout"))
	calls := 0
	err := newFastRetryer(3).Do(context.Background(), "move", func(context.Context) error {
		calls++
		return transient
	})
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errors.Is(err, transient) {
		t.Errorf("exhaustion error must wrap the last failure, got %v", err)
	}
}

func TestRetryerStopsOnPermanent(t *testing.T) {
	t.Parallel()

	permanent := platform.Permanent("mute", errors.New("missing permissions"))
	calls := 0
	err := newFastRetryer(4).Do(context.Background(), "mute", func(context.Context) error {
		calls++
		return permanent
	})
	if calls != 1 {
		t.Errorf("permanent failure retried: %d calls", calls)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("expected the permanent error back, got %v", err)
	}
}

func TestRetryerHonoursContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := resilience.NewRetryer(resilience.RetryConfig{
		MaxAttempts: 10,
		Backoff:     time.Hour, // never waited out
		MaxBackoff:  time.Hour,
	})

	calls := 0
	err := r.Do(ctx, "mute", func(context.Context) error {
		calls++
		cancel()
		return platform.Transient("mute", errors.New("rate limited"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected backoff to abort before a second call, got %d", calls)
	}
}
