package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay grows base by Multiplier per failed attempt (1-based) and caps the
// result at MaxDelay. Jitter spreads it over [0.5, 1.5) of its value.
func (b BackoffConfig) Delay(base time.Duration, attempt int, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := float64(base)
	if attempt > 1 && b.Multiplier > 1.0 {
		delay *= math.Pow(b.Multiplier, float64(attempt-1))
	}
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	return time.Duration(delay)
}

// RetryDelay is the reconnect sleep after a failed connect. The base is the
// display-dependent delay; a host with its screen on retries sooner.
func (c Config) RetryDelay(displayActive bool, attempt int, rng *rand.Rand) time.Duration {
	base := c.RetryDisplayIdle
	if displayActive {
		base = c.RetryDisplayActive
	}
	return c.Backoff.Delay(base, attempt, rng)
}
