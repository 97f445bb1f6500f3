package session

import "time"

// Backoff computes reconnect delays that double from Base up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Base: time.Second,
		Max:  30 * time.Second,
	}
}

// Next returns the delay before reconnect attempt n (1-based). The result is
// non-decreasing in n and never exceeds Max.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	max := b.Max
	if max < base {
		max = base
	}

	wait := base
	for i := 1; i < attempt; i++ {
		if wait >= max/2 {
			return max
		}
		wait *= 2
	}
	return wait
}
