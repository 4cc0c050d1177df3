package consumer

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mbtatracker-data/internal/common/config"
)

var _ backoff.BackOff = (*Backoff)(nil)

// Backoff is the reconnect policy: min(Base*2^attempt, Max) multiplied by a
// jitter factor drawn uniformly from [JitterMin, JitterMax]. It implements
// backoff.BackOff so the retry loop can be driven by backoff.RetryNotify.
type Backoff struct {
	Base      time.Duration
	Max       time.Duration
	JitterMin float64
	JitterMax float64
	// Rand returns values in [0, 1); defaults to math/rand
	Rand func() float64

	attempt int
}

func NewBackoff(cfg config.BackoffConfig) *Backoff {
	return &Backoff{
		Base:      cfg.Base,
		Max:       cfg.Max,
		JitterMin: cfg.JitterMin,
		JitterMax: cfg.JitterMax,
	}
}

// Delay is the pre-jitter delay for a zero-based consecutive failure count
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// NextBackOff returns the jittered delay for the current attempt and
// advances the attempt counter.
func (b *Backoff) NextBackOff() time.Duration {
	d := b.Delay(b.attempt)
	b.attempt++
	return time.Duration(float64(d) * b.jitter())
}

// Reset zeroes the attempt counter; called once a stream is established
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt is the number of consecutive failures since the last Reset
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) jitter() float64 {
	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	return b.JitterMin + (b.JitterMax-b.JitterMin)*r()
}
