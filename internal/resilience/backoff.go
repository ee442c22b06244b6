package resilience

import (
	"math/rand"
	"time"
)

// Backoff computes exponential-backoff delays with full jitter, the same
// doubling shape used by internal/database's connection retry loop but with
// a random component so a fleet of retrying consumers doesn't retry in lockstep.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

// DefaultBackoff returns the backoff the signal ingest bridge uses between
// upstream reconnect attempts: base 200ms, capped at 30s, doubling each
// attempt.
func DefaultBackoff() Backoff {
	return Backoff{Base: 200 * time.Millisecond, Max: 30 * time.Second, Factor: 2}
}

// Delay returns the delay to use before retry attempt n (0-indexed), with
// full jitter: a uniformly random duration in [0, min(max, base*factor^n)].
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Factor <= 1 {
		b.Factor = 2
	}
	d := float64(b.Base)
	for i := 0; i < attempt; i++ {
		d *= b.Factor
		if time.Duration(d) > b.Max {
			d = float64(b.Max)
			break
		}
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}
