package session

import "time"

// BackoffConfig shapes the reconnect delay. With Multiplier 1 every attempt
// waits the display-dependent base.
type BackoffConfig struct {
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     bool
}

// Config defines link timing defaults. The values were tuned against
// device firmware and are kept configurable.
type Config struct {
	// PacketWait is the sender pacing tick.
	PacketWait time.Duration
	// RetryDisplayActive is the reconnect delay while the host display is on.
	RetryDisplayActive time.Duration
	// RetryDisplayIdle is the reconnect delay while the host display is off.
	RetryDisplayIdle time.Duration
	// PollInterval is the housekeeping telemetry period.
	PollInterval time.Duration
	// DoublePressWindow classifies two presses as one double press.
	DoublePressWindow time.Duration
	// SimulatedReadDelay is the per-cycle sleep of the null transport.
	SimulatedReadDelay time.Duration
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		PacketWait:         30 * time.Millisecond,
		RetryDisplayActive: 1000 * time.Millisecond,
		RetryDisplayIdle:   5000 * time.Millisecond,
		PollInterval:       6 * time.Minute,
		DoublePressWindow:  5 * time.Second,
		SimulatedReadDelay: 10 * time.Second,
		Backoff: BackoffConfig{
			Multiplier: 1.0,
			MaxDelay:   30 * time.Second,
		},
	}
}

// WithDefaults fills unset (non-positive) fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PacketWait <= 0 {
		c.PacketWait = d.PacketWait
	}
	if c.RetryDisplayActive <= 0 {
		c.RetryDisplayActive = d.RetryDisplayActive
	}
	if c.RetryDisplayIdle <= 0 {
		c.RetryDisplayIdle = d.RetryDisplayIdle
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DoublePressWindow <= 0 {
		c.DoublePressWindow = d.DoublePressWindow
	}
	if c.SimulatedReadDelay <= 0 {
		c.SimulatedReadDelay = d.SimulatedReadDelay
	}
	if c.Backoff.Multiplier <= 0 {
		c.Backoff.Multiplier = d.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = d.Backoff.MaxDelay
	}
	return c
}
