package shared

import (
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy wraps a fallible operation with bounded retries and exponential
// backoff. The retryable predicate decides which errors are worth another
// attempt; Sleep is injectable so tests can run with a fake clock.
type RetryPolicy struct {
	MaxAttempts    int                 // Total attempts, including the first one
	InitialBackoff time.Duration       // Delay before the second attempt
	BackoffFactor  float64             // Multiplier applied to the delay after each failure
	Retryable      func(error) bool    // Which failures to retry
	Sleep          func(time.Duration) // Injectable for tests; defaults to time.Sleep
}

// NewDefaultRetryPolicy returns the production retry policy used for page
// fetching: exponential backoff doubling from one second.
func NewDefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		Retryable:      IsRetryableError,
		Sleep:          time.Sleep,
	}
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is exhausted. The last error is returned unwrapped so callers
// can classify it.
func (p RetryPolicy) Execute(operation string, fn func() error) error {
	logger := logrus.WithFields(logrus.Fields{
		"component": "RetryPolicy",
		"operation": operation,
	})

	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}

	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.WithField("attempt", attempt).Debug("Operation succeeded after retry")
			}
			return nil
		}

		if !retryable(lastErr) {
			logger.WithError(lastErr).WithField("attempt", attempt).Debug("Non-retryable error, giving up immediately")
			return lastErr
		}

		if attempt < p.MaxAttempts {
			logger.WithFields(logrus.Fields{
				"attempt":          attempt,
				"max_attempts":     p.MaxAttempts,
				"backoff_duration": backoff,
			}).Debug("Retrying after backoff")

			sleep(backoff)
			backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		}
	}

	logger.WithFields(logrus.Fields{
		"total_attempts": p.MaxAttempts,
		"final_error":    lastErr,
	}).Error("Operation failed after all retry attempts")

	return lastErr
}
