package supervisor

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy owns the reconnect delay schedule: exponential from a fixed
// base, doubling per consecutive unplanned disconnect, capped at a fixed
// maximum, reset to base whenever the connection reaches Ready. Never
// persisted; a fresh process starts at attempt zero.
type retryPolicy struct {
	bo       *backoff.ExponentialBackOff
	attempts int
}

func newRetryPolicy(base, max time.Duration) *retryPolicy {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = max
	bo.Multiplier = 2
	// No jitter: the delay sequence must be predictable and bounded.
	bo.RandomizationFactor = 0
	// Retry forever; giving up is the init-failure escalation's job.
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &retryPolicy{bo: bo}
}

// Next returns the delay before the next reconnect attempt and counts it.
func (r *retryPolicy) Next() time.Duration {
	r.attempts++
	return r.bo.NextBackOff()
}

// Reset returns the schedule to the base delay.
func (r *retryPolicy) Reset() {
	r.attempts = 0
	r.bo.Reset()
}

// Attempts reports consecutive reconnect attempts since the last reset.
func (r *retryPolicy) Attempts() int {
	return r.attempts
}
