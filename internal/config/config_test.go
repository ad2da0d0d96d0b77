package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/wristlink/internal/testutil/testlog"
	"github.com/danmuck/wristlink/internal/watch"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTemplateMatchesDefaultsWhereUnset(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := watch.DefaultServiceConfig()
	if cfg.DeviceID != "DIGITAL" {
		t.Fatalf("unexpected device: %q", cfg.DeviceID)
	}
	if cfg.Session.PacketWait != def.Session.PacketWait || cfg.Session.PollInterval != 6*time.Minute {
		t.Fatalf("unexpected timings: %+v", cfg.Session)
	}
	if cfg.ControlAddr != "127.0.0.1:7420" || cfg.MetricsAddr != "" {
		t.Fatalf("unexpected addrs: %q %q", cfg.ControlAddr, cfg.MetricsAddr)
	}
	if !cfg.HapticFeedback || cfg.InvertLCD {
		t.Fatalf("unexpected flags: %+v", cfg)
	}
	if cfg.ControlToken != "" {
		t.Fatalf("unexpected control token: %q", cfg.ControlToken)
	}
	if cfg.QuickActions["media_toggle"] != "playerctl play-pause" || cfg.QuickActions[cfg.QuickButtonRight] != "playerctl next" {
		t.Fatalf("unexpected quick actions: %v", cfg.QuickActions)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)

	cfg, err := Load(writeConfig(t, `
device = "tcp://127.0.0.1:9000"
retry_display_idle = "8s"
haptic_feedback = false
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := watch.DefaultServiceConfig()
	if cfg.DeviceID != "tcp://127.0.0.1:9000" {
		t.Fatalf("unexpected device: %q", cfg.DeviceID)
	}
	if cfg.Session.RetryDisplayIdle != 8*time.Second {
		t.Fatalf("unexpected idle retry: %v", cfg.Session.RetryDisplayIdle)
	}
	if cfg.Session.RetryDisplayActive != def.Session.RetryDisplayActive {
		t.Fatalf("undefined key must keep default: %v", cfg.Session.RetryDisplayActive)
	}
	if cfg.HapticFeedback {
		t.Fatalf("expected haptic feedback disabled")
	}
	if cfg.StatePath != def.StatePath {
		t.Fatalf("unexpected state path: %q", cfg.StatePath)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	testlog.Start(t)

	cases := []string{
		`packet_wait = "soon"`,
		`packet_wait = "-1s"`,
		`device = ""`,
		`unknown_key = 1`,
	}
	for _, body := range cases {
		if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", body, err)
		}
	}
}
