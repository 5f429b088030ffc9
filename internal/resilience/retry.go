// Package resilience provides the retry and circuit-breaker primitives
// protecting the voice-platform REST client.
//
// [Retryer] runs a single platform call with bounded exponential backoff,
// retrying only failures classified as transient. [Breaker] is a
// three-state circuit breaker (closed → open → half-open) that fails fast
// when the platform API is down, so a dispatch cycle reports and moves on
// instead of burning its whole retry budget per participant.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sam-kirby/taskinator/internal/platform"
)

// Default retry parameters.
const (
	defaultMaxAttempts = 4
	defaultBackoff     = 250 * time.Millisecond
	defaultMaxBackoff  = 2 * time.Second
)

// RetryConfig holds tuning knobs for a [Retryer].
type RetryConfig struct {
	// MaxAttempts is the total number of tries (first call included)
	// for a transient failure. Default: 4.
	MaxAttempts int

	// Backoff is the initial delay between attempts. Doubles each
	// attempt up to MaxBackoff. Default: 250ms.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the per-attempt delay. Default: 2s.
	MaxBackoff time.Duration
}

// Retryer executes platform calls with classified bounded retry.
type Retryer struct {
	maxAttempts int
	backoff     time.Duration
	maxBackoff  time.Duration
}

// NewRetryer creates a [Retryer]. Zero-value config fields are replaced
// with defaults.
func NewRetryer(cfg RetryConfig) *Retryer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Retryer{
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		maxBackoff:  cfg.MaxBackoff,
	}
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempt
// budget, or ctx is cancelled. Permanent platform errors are returned
// immediately without further attempts. The returned error is the last
// failure observed.
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := r.backoff

	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if platform.IsPermanent(err) {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}

		slog.Debug("transient platform failure, backing off",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"backoff", backoff,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("resilience: %s aborted: %w", op, ctx.Err())
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}

	return fmt.Errorf("resilience: %s failed after %d attempts: %w", op, r.maxAttempts, err)
}
