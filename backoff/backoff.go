// Package backoff provides retry delay strategies shared by the job
// scheduler (job re-runs) and the transfer client (re-invocations of a
// failed download or upload). All strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// None retries immediately.
var None Strategy = Func(func(int) time.Duration { return 0 })

// Wait blocks for s.Delay(attempt) or until ctx is done, whichever comes
// first. It returns ctx.Err() when interrupted.
func Wait(ctx context.Context, s Strategy, attempt int) error {
	d := time.Duration(0)
	if s != nil {
		d = s.Delay(attempt)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear grows by Initial per attempt, capped at Max (0 = no cap).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return capped(l.Initial*time.Duration(attempt), l.Max)
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles per attempt, capped at Max (0 = no cap).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return exponential(e.Initial, e.Max, attempt)
}

// ExponentialWithJitter draws a uniform delay in
// [0, min(Initial * 2^(attempt-1), Max)] so retries of many jobs that
// failed together do not line up.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration bounded by the exponential ceiling.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceil := exponential(e.Initial, e.Max, attempt)
	if ceil <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceil) + 1)) //nolint:gosec // jitter does not need crypto rand
}

// exponential computes Initial << (attempt-1) without overflowing.
func exponential(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		if maxDelay > 0 && d >= maxDelay {
			return maxDelay
		}
		if d > (1<<62)/2 {
			break
		}
		d *= 2
	}
	return capped(d, maxDelay)
}

func capped(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// ──────────────────────────────────────────────────
// Defaults
// ──────────────────────────────────────────────────

// DefaultStrategy is the job retry backoff: jittered exponential, 1s
// initial, 1m cap.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}

// TransferStrategy is the transfer re-invocation backoff: exponential,
// 2s initial, 30s cap.
func TransferStrategy() Strategy {
	return NewExponential(2*time.Second, 30*time.Second)
}
