package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy decides how long to wait between download attempts.
type BackoffStrategy interface {
	// NextDelay returns the wait before the given attempt, 1-based
	NextDelay(attempt int) time.Duration
	// Reset clears any per-sequence state
	Reset()
}

// ExponentialBackoff doubles (or multiplies) the wait per attempt, with
// jitter so parallel download workers do not hammer the hub in lockstep.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Multiplier scales the delay between consecutive attempts
	Multiplier float64
	// JitterFactor randomizes the delay by up to this fraction, 0.0 to 1.0
	JitterFactor float64

	attempts int
}

// DefaultExponentialBackoff is the baseline for retryable hub errors that
// carry no more specific type, 1s doubling up to a minute.
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay returns BaseDelay scaled by Multiplier^(attempt-1), capped at
// MaxDelay, with jitter applied.
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset clears the attempt counter.
func (eb *ExponentialBackoff) Reset() {
	eb.attempts = 0
}

// LinearBackoff grows the wait by a fixed increment per attempt. Gentler
// than exponential, useful when the hub is merely slow rather than failing.
type LinearBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Increment is added to the delay on every further attempt
	Increment time.Duration
	// JitterFactor randomizes the delay by up to this fraction, 0.0 to 1.0
	JitterFactor float64
}

// DefaultLinearBackoff waits 1s, 2s, 3s and so on, capped at 30s.
func DefaultLinearBackoff() *LinearBackoff {
	return &LinearBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Increment:    1 * time.Second,
		JitterFactor: 0.1,
	}
}

// NextDelay returns BaseDelay plus attempt-1 increments, capped at MaxDelay,
// with jitter applied.
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	if delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}

	if lb.JitterFactor > 0 {
		jitter := delay * lb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset is a no-op, linear backoff keeps no state.
func (lb *LinearBackoff) Reset() {}

// ConstantBackoff waits the same duration every time. Tests use it to keep
// retry loops fast.
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns the fixed delay.
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset is a no-op.
func (cb *ConstantBackoff) Reset() {}

// Wait sleeps for the delay or returns early when the context is cancelled.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorTypeBackoff holds one strategy per class of hub failure. A dropped
// connection is worth retrying almost immediately, a 429 means the hub wants
// the client to go away for a while, a 5xx sits in between.
type ErrorTypeBackoff struct {
	NetworkErrorBackoff BackoffStrategy
	RateLimitBackoff    BackoffStrategy
	ServerErrorBackoff  BackoffStrategy
	DefaultBackoff      BackoffStrategy
}

// NewErrorTypeBackoff returns the strategies the hub retrier starts with.
func NewErrorTypeBackoff() *ErrorTypeBackoff {
	return &ErrorTypeBackoff{
		NetworkErrorBackoff: &ExponentialBackoff{
			BaseDelay:    1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.2,
		},
		// the hub's 429 responses come with long cool-downs, start high
		RateLimitBackoff: &ExponentialBackoff{
			BaseDelay:    30 * time.Second,
			MaxDelay:     5 * time.Minute,
			Multiplier:   1.5,
			JitterFactor: 0.3,
		},
		ServerErrorBackoff: &ExponentialBackoff{
			BaseDelay:    5 * time.Second,
			MaxDelay:     60 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		DefaultBackoff: DefaultExponentialBackoff(),
	}
}

// GetBackoffForError maps an error type string to its strategy.
func (etb *ErrorTypeBackoff) GetBackoffForError(errorType string) BackoffStrategy {
	switch errorType {
	case "network":
		return etb.NetworkErrorBackoff
	case "rate_limit":
		return etb.RateLimitBackoff
	case "server_error":
		return etb.ServerErrorBackoff
	default:
		return etb.DefaultBackoff
	}
}
