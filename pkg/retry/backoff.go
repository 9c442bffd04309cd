package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff builds the exponential schedule for policy. MaxAttempts counts
// the first call, so the schedule allows MaxAttempts-1 retries.
func newBackOff(ctx context.Context, policy Policy) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.Multiplier = policy.Multiplier
	exp.MaxElapsedTime = policy.MaxElapsedTime // zero disables the elapsed cap

	return backoff.WithMaxRetries(backoff.WithContext(exp, ctx), uint64(policy.MaxAttempts-1))
}

// CalculateBackoffDuration is the nominal delay before retry number attempt,
// without jitter. It is only used for logging.
func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
