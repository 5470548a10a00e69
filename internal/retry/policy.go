// Package retry defines the replay retry policy as pure data, independently
// testable without exercising real I/O.
package retry

import "time"

// Policy bounds how often a failed action is replayed and how long to wait
// between attempts. The zero value is not usable; use DefaultPolicy.
type Policy struct {
	// MaxAttempts is the retry ceiling. An action whose retry count has
	// reached this value is dropped instead of replayed.
	MaxAttempts int

	// BaseDelay is the backoff for the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the backoff schedule.
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used by the sync orchestrator: three
// attempts with exponential backoff from one minute, capped at one hour.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Minute,
		MaxDelay:    time.Hour,
	}
}

// Exhausted reports whether an action with the given retry count has hit
// the ceiling and must be dropped without another replay attempt.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}

// Backoff returns the delay before the attempt following retryCount
// failures: BaseDelay * 2^retryCount, capped at MaxDelay.
func (p Policy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
