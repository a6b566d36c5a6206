// Package backoff is a small exponential backoff helper used by the
// Terminal Bridge's reconnect loop, per section 4.7. The Connector Router
// does not use it and does not retry failed starts or sends.
package backoff

import "time"

// Backoff doubles its delay on every failure, capped at max, and resets
// to the initial delay on success.
type Backoff struct {
	initial time.Duration
	max time.Duration
	current time.Duration
}

// New builds a Backoff starting at initial and capped at max.
func New(initial, max time.Duration) *Backoff {
	return &Backoff{initial: initial, max: max, current: initial}
}

// Default() returns the 1s→30s cap named throughout.
func Default() *Backoff {
	return New(1*time.Second, 30*time.Second)
}

// Next() returns the current delay and doubles it for the following call,
// capped at max.
func (b *Backoff) Next() time.Duration {
	d:= b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset() returns the delay to its initial value, called after a successful
// reconnect.
func (b *Backoff) Reset() {
	b.current = b.initial
}
