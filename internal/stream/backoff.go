package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMaxRetries     = 5
)

// Backoff yields reconnect delays min(initial*2^n, max) with no jitter.
// It is not safe for concurrent use.
type Backoff struct {
	b *backoff.ExponentialBackOff
}

// NewBackoff creates a policy starting at initial and capped at max.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max < initial {
		max = initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return &Backoff{b: b}
}

// Next returns the delay before the next attempt and escalates the policy.
func (b *Backoff) Next() time.Duration {
	return b.b.NextBackOff()
}

// Reset returns the policy to its initial delay.
func (b *Backoff) Reset() {
	b.b.Reset()
}
