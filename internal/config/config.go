// Package config loads the link daemon's TOML file over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/wristlink/internal/watch"
)

var ErrInvalidConfig = errors.New("config: invalid value")

// fileConfig mirrors the TOML keys. Only keys present in the file override
// watch.DefaultServiceConfig.
type fileConfig struct {
	Device             string `toml:"device"`
	PacketWait         string `toml:"packet_wait"`
	RetryDisplayActive string `toml:"retry_display_active"`
	RetryDisplayIdle   string `toml:"retry_display_idle"`
	PollInterval       string `toml:"poll_interval"`
	DoublePressWindow  string `toml:"double_press_window"`
	SimulatedReadDelay string `toml:"simulated_read_delay"`
	DialTimeout        string `toml:"dial_timeout"`
	Heartbeat          string `toml:"heartbeat"`
	StatePath          string `toml:"state_path"`
	VoltageLog         string `toml:"voltage_log"`
	ControlAddr        string `toml:"control_addr"`
	ControlToken       string `toml:"control_token"`
	MetricsAddr        string `toml:"metrics_addr"`
	QuickButtonLeft    string `toml:"quick_button_left"`
	QuickButtonRight   string `toml:"quick_button_right"`
	HapticFeedback     bool   `toml:"haptic_feedback"`
	InvertLCD          bool   `toml:"invert_lcd"`
	NotifyOnConnect    bool   `toml:"notify_on_connect"`

	QuickActions map[string]string `toml:"quick_actions"`
}

// Load decodes path and applies every defined key over the defaults.
func Load(path string) (watch.ServiceConfig, error) {
	cfg := watch.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return watch.ServiceConfig{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return watch.ServiceConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("device") {
		cfg.DeviceID = strings.TrimSpace(raw.Device)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"packet_wait", raw.PacketWait, &cfg.Session.PacketWait},
		{"retry_display_active", raw.RetryDisplayActive, &cfg.Session.RetryDisplayActive},
		{"retry_display_idle", raw.RetryDisplayIdle, &cfg.Session.RetryDisplayIdle},
		{"poll_interval", raw.PollInterval, &cfg.Session.PollInterval},
		{"double_press_window", raw.DoublePressWindow, &cfg.Session.DoublePressWindow},
		{"simulated_read_delay", raw.SimulatedReadDelay, &cfg.Session.SimulatedReadDelay},
		{"dial_timeout", raw.DialTimeout, &cfg.DialTimeout},
		{"heartbeat", raw.Heartbeat, &cfg.HeartbeatInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := parseDuration(d.key, d.raw)
		if err != nil {
			return watch.ServiceConfig{}, err
		}
		*d.dst = v
	}

	if meta.IsDefined("state_path") {
		cfg.StatePath = strings.TrimSpace(raw.StatePath)
	}
	if meta.IsDefined("voltage_log") {
		cfg.VoltageLog = strings.TrimSpace(raw.VoltageLog)
	}
	if meta.IsDefined("control_addr") {
		cfg.ControlAddr = strings.TrimSpace(raw.ControlAddr)
	}
	if meta.IsDefined("control_token") {
		cfg.ControlToken = strings.TrimSpace(raw.ControlToken)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("quick_button_left") {
		cfg.QuickButtonLeft = strings.TrimSpace(raw.QuickButtonLeft)
	}
	if meta.IsDefined("quick_button_right") {
		cfg.QuickButtonRight = strings.TrimSpace(raw.QuickButtonRight)
	}
	if meta.IsDefined("quick_actions") {
		cfg.QuickActions = raw.QuickActions
	}
	if meta.IsDefined("haptic_feedback") {
		cfg.HapticFeedback = raw.HapticFeedback
	}
	if meta.IsDefined("invert_lcd") {
		cfg.InvertLCD = raw.InvertLCD
	}
	if meta.IsDefined("notify_on_connect") {
		cfg.NotifyOnConnect = raw.NotifyOnConnect
	}

	if err := Validate(cfg); err != nil {
		return watch.ServiceConfig{}, err
	}
	return cfg, nil
}

func Validate(cfg watch.ServiceConfig) error {
	if strings.TrimSpace(cfg.DeviceID) == "" {
		return fmt.Errorf("%w: device is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.StatePath) == "" {
		return fmt.Errorf("%w: state_path is required", ErrInvalidConfig)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat must be positive", ErrInvalidConfig)
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
	}
	return d, nil
}
