package watch

import (
	"context"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/protocol"
	"github.com/danmuck/wristlink/internal/store"
)

// preferenceLoop applies preference writes made by anyone, the link
// included, until ctx ends.
func (m *Manager) preferenceLoop(ctx context.Context, changes <-chan store.Change, unsubscribe func()) {
	defer m.wg.Done()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			m.applyPreference(c)
		}
	}
}

func (m *Manager) applyPreference(c store.Change) {
	switch c.Key {
	case store.KeySilentMode:
		v, err := strconv.ParseBool(c.Value)
		if err != nil {
			log.Warn().Str("value", c.Value).Msg("watch.Manager.applyPreference invalid silent_mode")
			return
		}
		// SetSilentMode already refreshed for its own write.
		if m.silent.Swap(v) != v {
			m.display.Refresh()
			log.Info().Bool("silent", v).Msg("watch.Manager.applyPreference silent_mode")
		}
	case store.KeyInvertLCD:
		v, err := strconv.ParseBool(c.Value)
		if err != nil {
			log.Warn().Str("value", c.Value).Msg("watch.Manager.applyPreference invalid invert_lcd")
			return
		}
		if m.State() != StateConnected {
			return
		}
		m.Enqueue(protocol.BuildNvalLcdInvert(v))
		log.Info().Bool("invert", v).Msg("watch.Manager.applyPreference invert_lcd")
	}
}

// invertLCD is the stored inversion, defaulting to the configured one.
func (m *Manager) invertLCD() bool {
	return m.prefs.Bool(store.KeyInvertLCD, m.opts.InvertLCD)
}
