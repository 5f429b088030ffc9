package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sam-kirby/taskinator/internal/platform"
)

// ErrBreakerOpen is returned by [Breaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("platform circuit breaker is open")

// State represents the current operating mode of a [Breaker].
type State int

const (
	// StateClosed is the normal operating state: calls are forwarded.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped; calls are rejected with
	// [ErrBreakerOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive transient failures before
	// the breaker opens. Default: 8.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing the
	// platform again. Default: 15s.
	ResetTimeout time.Duration
}

// Breaker guards the platform client against a fully unavailable API.
// Permanent failures (participant gone, forbidden) do not trip the
// breaker: they say nothing about platform health. Only transient
// failures count.
type Breaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	state           State
	consecutiveFail int
	lastFailure     time.Time
}

// NewBreaker creates a [Breaker]. Zero-value config fields are replaced
// with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 8
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 15 * time.Second
	}
	return &Breaker{
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		state:        StateClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrBreakerOpen] (wrapped as transient, so callers classify it like a
// rate limit) without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) < b.resetTimeout {
			b.mu.Unlock()
			return platform.Transient("breaker", ErrBreakerOpen)
		}
		b.state = StateHalfOpen
		slog.Info("platform breaker transitioning to half-open")
	case StateHalfOpen, StateClosed:
	}
	inHalfOpen := b.state == StateHalfOpen
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil || platform.IsPermanent(err):
		// Permanent errors prove the API answered; treat as health.
		if inHalfOpen {
			slog.Info("platform breaker closed after successful probe")
		}
		b.state = StateClosed
		b.consecutiveFail = 0

	default:
		b.lastFailure = time.Now()
		if inHalfOpen {
			b.state = StateOpen
			slog.Warn("platform breaker re-opened from half-open")
			return err
		}
		b.consecutiveFail++
		if b.consecutiveFail >= b.maxFailures {
			b.state = StateOpen
			slog.Warn("platform breaker opened",
				"consecutive_failures", b.consecutiveFail)
		}
	}
	return err
}

// State returns the current [State] of the breaker. If the breaker is
// open and the reset timeout has elapsed, the returned state is
// [StateHalfOpen] (the actual transition happens on the next Execute).
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.lastFailure) >= b.resetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset manually forces the breaker back to [StateClosed].
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFail = 0
}
