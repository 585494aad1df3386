// Package retry runs a fallible operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/abdul-hamid-achik/scene.cheap/internal/apperror"
)

// JitterFactor is the symmetric randomization applied to every delay.
const JitterFactor = 0.2

// Attempt describes one failed attempt that is about to be retried.
type Attempt struct {
	Number int
	Err    error
	Delay  time.Duration
}

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable replaces the default transient-error matcher when set.
	Retryable func(error) bool
	// RetryableErrors extends the matcher with case-insensitive message signatures.
	RetryableErrors []string
	// OnRetry is called once per retry, before waiting.
	OnRetry func(Attempt)

	// Timer overrides the wait implementation; tests use it to avoid sleeping.
	Timer backoff.Timer
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or MaxAttempts is
// reached. The returned error is the last error op returned, unwrapped, or ctx.Err()
// when ctx ends while waiting.
func Do(ctx context.Context, p Policy, op func(context.Context) error) error {
	p = p.normalized()

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.matches(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Number: attempt, Err: err, Delay: delay})
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.MaxAttempts-1)), ctx)
	return backoff.RetryNotifyWithTimer(operation, b, notify, p.Timer)
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Delay returns the un-jittered wait before retry n (1-based).
func (p Policy) Delay(n int) time.Duration {
	p = p.normalized()
	d := float64(p.InitialDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// IsTransient is the default matcher: timeouts, rate limits, quota and overload.
func IsTransient(err error) bool {
	switch apperror.Classify(err).Code {
	case apperror.CodeTimeout, apperror.CodeRateLimit, apperror.CodeQuota, apperror.CodeOverloaded:
		return true
	}
	return false
}

func (p Policy) matches(err error) bool {
	if p.Retryable != nil {
		if p.Retryable(err) {
			return true
		}
	} else if IsTransient(err) {
		return true
	}
	if len(p.RetryableErrors) == 0 {
		return false
	}
	msg := strings.ToLower(err.Error())
	code := apperror.Classify(err).Code
	for _, sig := range p.RetryableErrors {
		if sig == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(sig)) || strings.EqualFold(code, sig) {
			return true
		}
	}
	return false
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(p.InitialDelay, p.MaxDelay)
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = JitterFactor
	b.MaxElapsedTime = 0
	return b
}
