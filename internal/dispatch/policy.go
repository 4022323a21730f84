package dispatch

import "time"

// Policy holds the retry budget and backoff schedule for delivery attempts
type Policy struct {
	// MaxAttempts is the total number of delivery attempts allowed per item
	MaxAttempts int
	// BaseDelay is the delay before the first retry; attempt n waits base * 2^(n-1)
	BaseDelay time.Duration
}

// DefaultPolicy matches the standard delivery budget: 8 attempts,
// 2s/4s/8s/... between them.
var DefaultPolicy = Policy{
	MaxAttempts: 8,
	BaseDelay:   2 * time.Second,
}

// Delay returns the backoff delay scheduled after the given attempt number
// (1-based). The schedule is exponential and therefore monotonically
// non-decreasing in the attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << uint(attempt-1)
}

// Exhausted reports whether the given attempt number was the last one allowed
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// RetryDelays returns the full backoff schedule, one delay per retryable
// attempt. Used to size the broker's retry queue tiers at declaration time.
func (p Policy) RetryDelays() []time.Duration {
	if p.MaxAttempts <= 1 {
		return nil
	}
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		delays = append(delays, p.Delay(attempt))
	}
	return delays
}
