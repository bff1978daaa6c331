package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff is a capped exponential backoff policy. The operation queue
// consults it before attempting a queued operation: an operation whose
// next-eligible time has not arrived is skipped for that drain pass, so a
// flapping connection cannot hot-loop against a down backend.
type Backoff struct {
	// InitialDelay is the wait after the first failure. Default: 30s.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay. Default: 15m.
	MaxDelay time.Duration

	// Multiplier scales the delay per additional failure. Default: 2.0.
	Multiplier float64

	// JitterFraction randomizes the delay by ±fraction so a fleet of devices
	// reconnecting together doesn't drain in lockstep. Default: 0.2.
	JitterFraction float64
}

// DefaultBackoff returns the drain retry policy used in production.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay:   30 * time.Second,
		MaxDelay:       15 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.2,
	}
}

func (b Backoff) withDefaults() Backoff {
	if b.InitialDelay <= 0 {
		b.InitialDelay = 30 * time.Second
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = 15 * time.Minute
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2.0
	}
	if b.JitterFraction < 0 {
		b.JitterFraction = 0
	}
	return b
}

// Delay returns the wait after retryCount failures. retryCount 0 means the
// operation has never been attempted and the delay is zero.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	b = b.withDefaults()

	d := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(retryCount-1))
	if d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}

	if b.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * b.JitterFraction
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Eligible reports whether an operation with the given retry history may be
// attempted at now. Never-attempted operations are always eligible.
func (b Backoff) Eligible(retryCount int, lastAttemptAt *time.Time, now time.Time) bool {
	if retryCount <= 0 || lastAttemptAt == nil {
		return true
	}
	return !now.Before(lastAttemptAt.Add(b.Delay(retryCount)))
}
