// Package backoff implements the exponential redial schedule used when
// re-establishing a dropped connection.
package backoff

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultBase is the base delay multiplied by the growth factor.
	DefaultBase = time.Second

	// DefaultFactor is the exponential growth factor per attempt.
	DefaultFactor = 1.6

	// DefaultMax caps the delay between attempts.
	DefaultMax = time.Minute
)

// Backoff computes redial delays. The first attempt is immediate; attempt n
// waits min(Base * Factor^n, Max). Safe for concurrent use.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration

	mu      sync.Mutex
	attempt int
}

// New returns a Backoff with the default schedule.
func New() *Backoff {
	return &Backoff{
		Base:   DefaultBase,
		Factor: DefaultFactor,
		Max:    DefaultMax,
	}
}

// Next returns the delay before the next attempt and increments the counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	attempt := b.attempt
	b.attempt++
	if attempt == 0 {
		return 0
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Factor, float64(attempt)))
	if d > b.Max || d < 0 {
		d = b.Max
	}
	return d
}

// Reset clears the attempt counter so the next redial is immediate again.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
