package config

import (
	"fmt"
	"os"
)

func Template() string {
	return watchTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(watchTemplate), 0o600)
}

const watchTemplate = `# Device identifier: "null", "DIGITAL" or "ANALOG" for a simulated watch,
# tcp://host:port, ws://host/path, or a serial/rfcomm device path.
device = "DIGITAL"

packet_wait = "30ms"
retry_display_active = "1s"
retry_display_idle = "5s"
poll_interval = "6m"
double_press_window = "5s"
simulated_read_delay = "10s"
dial_timeout = "5s"
heartbeat = "30s"

state_path = "wristlink.db"
voltage_log = "wristlink_voltage.csv"
control_addr = "127.0.0.1:7420"
# When set, every control request must carry this token.
control_token = ""
metrics_addr = ""

quick_button_left = "media_toggle"
quick_button_right = "next_track"
haptic_feedback = true
invert_lcd = false
notify_on_connect = false

# Quick-button action name -> command line run on the host.
[quick_actions]
media_toggle = "playerctl play-pause"
next_track = "playerctl next"
`
