package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/protocol"
)

// pollLoop requests battery telemetry every PollInterval while voltage
// collection is enabled.
func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce()
		}
	}
}

func (m *Manager) pollOnce() {
	if m.voltageFrequency() <= 0 {
		return
	}
	log.Debug().Msg("watch.Manager.pollOnce battery voltage")
	m.Enqueue(protocol.BuildReadBatteryVoltage())
}
