package session

import "time"

// ReconnectPolicy decides whether and when a dropped session is redialed.
type ReconnectPolicy interface {
	// ShouldRetry returns false for closures that make a retry pointless
	// (deliberate logout, stream takeover).
	ShouldRetry(reason CloseReason) bool
	// NextDelay returns the wait before retry number attempt (0-based).
	// Must be monotonically non-decreasing in attempt.
	NextDelay(attempt int) time.Duration
}

// BackoffPolicy doubles the delay per attempt between Min and Max.
type BackoffPolicy struct {
	Min time.Duration
	Max time.Duration
}

func NewBackoffPolicy(min, max time.Duration) BackoffPolicy {
	if min <= 0 {
		min = 2 * time.Second
	}
	if max < min {
		max = min
	}
	return BackoffPolicy{Min: min, Max: max}
}

func (p BackoffPolicy) ShouldRetry(reason CloseReason) bool {
	return reason.Code == CloseNetwork
}

func (p BackoffPolicy) NextDelay(attempt int) time.Duration {
	d := p.Min
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
