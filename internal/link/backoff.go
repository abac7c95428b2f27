package link

import (
	"math/rand"
	"time"
)

// BackoffConfig shapes the wait between reconnect attempts of a dropped link.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Delay returns the wait before reconnect attempt n (1-based). The delay grows by
// Multiplier per attempt from InitialDelay and is capped at MaxDelay. With Jitter the
// capped delay is scaled by a factor in [0.5, 1.5) drawn from factor, or by 1 when
// factor is nil.
func (b BackoffConfig) Delay(n int, factor func() float64) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	growth := b.Multiplier
	if growth < 1 {
		growth = 1
	}
	d := b.InitialDelay
	for i := 1; i < n; i++ {
		next := time.Duration(float64(d) * growth)
		if b.MaxDelay > 0 && next >= b.MaxDelay {
			d = b.MaxDelay
			break
		}
		d = next
	}
	if b.Jitter && factor != nil {
		d = time.Duration(float64(d) * (0.5 + factor()))
	}
	return d
}

// jitter is the random source for dial-loop backoff.
func jitter() float64 {
	return rand.Float64()
}
