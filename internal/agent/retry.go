package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy controls backoff for model calls. Only rate-limit
// failures are retried: transient quota refusals resolve themselves,
// while everything else either cannot succeed on retry (bad
// credentials, malformed request) or needs a human to look at it.
type RetryPolicy struct {
	MaxAttempts int           // total invocations, not retries after the first
	BaseDelay   time.Duration // backoff seed, doubled per attempt
	MaxDelay    time.Duration // backoff ceiling
}

// DefaultRetryPolicy matches the limits of the free Gemini tier.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("MaxAttempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("BaseDelay must be positive, got %v", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("MaxDelay %v is below BaseDelay %v", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// delay returns the backoff before the next attempt. attempt counts
// from 1, so the first retry already waits twice the base delay.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for range attempt {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// withRetry runs fn up to MaxAttempts times. The limiter, when set,
// gates every attempt so retries cannot worsen the quota pressure that
// caused them. Auth failures abort immediately with ErrAuthFailed;
// non-quota failures abort immediately unwrapped; exhausting the
// attempts yields ErrRateLimited with the last provider error joined
// in.
func withRetry[T any](
	ctx context.Context,
	policy RetryPolicy,
	limiter *rate.Limiter,
	logger *slog.Logger,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, fmt.Errorf("%s: waiting for rate limiter: %w", op, err)
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("recovered after retry",
					"op", op, "attempts", attempt, "elapsed", time.Since(start))
			}
			return result, nil
		}
		lastErr = err

		if isAuthFailure(err) {
			return zero, fmt.Errorf("%s: %w", op, errors.Join(ErrAuthFailed, err))
		}
		if !isRateLimited(err) {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.delay(attempt)
		logger.Warn("rate limited, backing off",
			"op", op, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: canceled during backoff: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s: %d attempts exhausted after %v: %w",
		op, policy.MaxAttempts, time.Since(start), errors.Join(ErrRateLimited, lastErr))
}
