package watch

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/observability"
	"github.com/danmuck/wristlink/internal/protocol"
	"github.com/danmuck/wristlink/internal/protocol/frame"
	"github.com/danmuck/wristlink/internal/store"
)

const (
	modeTimeoutSeconds = 10
	connectTitle       = "wristlink"
	connectBody        = "connected"
)

func (m *Manager) registerHandlers(d *Dispatcher) {
	d.Register(protocol.StatusChangeEvent, m.handleStatusChange)
	d.Register(protocol.ButtonEvent, m.handleButton)
	d.Register(protocol.GetDeviceTypeResponse, m.handleDeviceType)
	d.Register(protocol.ReadBatteryVoltageResponse, m.handleBattery)
	d.Register(protocol.ReadLightSensorResponse, m.handleLight)
	d.Register(protocol.GetRealTimeClockResponse, m.handleClock)
	d.Register(protocol.NvalOperationResponse, m.handleNval)
	d.OnUnknown(func(f frame.Frame) {
		log.Warn().
			Str("type", protocol.MessageType(f.Type).String()).
			Hex("payload", f.Payload).
			Msg("watch.Manager.dispatch unknown message dropped")
	})
}

func (m *Manager) handleStatusChange(f frame.Frame) error {
	sc, err := protocol.DecodeStatusChange(f)
	if err != nil {
		return err
	}
	log.Debug().Str("code", sc.Code.String()).Uint8("buffer", uint8(sc.Buffer)).Msg("watch.Manager.handleStatusChange")
	switch sc.Code {
	case protocol.StatusModeChanged:
		pulse(m.modeChanged)
	case protocol.StatusScrollRequest:
		pulse(m.scrollRequest)
	case protocol.StatusScrollComplete:
	case protocol.StatusModeTimeout:
		// The device fell back to its idle screen; follow it to page 0.
		m.display.ToPage(0)
		m.display.ToIdle()
		m.modes.Reset()
		m.display.Refresh()
	}
	return nil
}

func (m *Manager) handleButton(f frame.Frame) error {
	code, err := protocol.DecodeButton(f)
	if err != nil {
		return err
	}
	if code > 0 && m.opts.HapticFeedback {
		m.Vibrate(50, 5, 3)
	}
	mode, action := m.router.Route(code)
	log.Debug().Uint8("code", code).Str("mode", mode.String()).Str("action", string(action)).Msg("watch.Manager.handleButton")
	return nil
}

func (m *Manager) handleDeviceType(f frame.Frame) error {
	code, err := protocol.DecodeDeviceType(f)
	if err != nil {
		return err
	}
	id := ClassifyDeviceType(code)
	m.identity.Store(id)
	log.Info().Uint8("device_type", code).Str("identity", id.String()).Msg("watch.Manager.handleDeviceType")

	if id.Type == WatchTypeDigital {
		invert := m.invertLCD()
		mode, err := protocol.BuildConfigureMode(protocol.BufferIdle, modeTimeoutSeconds, invert)
		if err != nil {
			return err
		}
		m.Enqueue(mode)
		m.Enqueue(protocol.BuildNvalLcdInvert(invert))
		m.Enqueue(protocol.BuildConfigureIdleBufferSize(true))
		for _, buf := range []protocol.Buffer{protocol.BufferIdle, protocol.BufferApplication, protocol.BufferNotification} {
			m.Enqueue(protocol.BuildDisableButton(buf, protocol.ButtonA, protocol.PressImmediate))
		}
	}

	m.SetClock()
	if m.opts.NotifyOnConnect {
		m.notifier.Notify(connectTitle, connectBody, 1)
	}
	m.activateButtons()
	return nil
}

func (m *Manager) activateButtons() {
	for _, b := range idleBindings {
		m.Enqueue(protocol.BuildEnableButton(b.buffer, b.button, b.press, b.code))
	}
}

func (m *Manager) handleBattery(f frame.Frame) error {
	b, err := protocol.DecodeBattery(f)
	if err != nil {
		return err
	}
	log.Info().
		Bool("power_good", b.PowerGood).
		Bool("charging", b.Charging).
		Float64("sense", b.SenseVolts()).
		Float64("average", b.AverageVolts()).
		Msg("watch.Manager.handleBattery")
	if m.voltageFrequency() > 0 && m.voltage != nil {
		if err := m.voltage.Append(b.SenseVolts(), b.AverageVolts()); err != nil {
			log.Warn().Err(err).Msg("watch.Manager.handleBattery voltage log append failed")
		}
	}
	return nil
}

func (m *Manager) handleLight(f frame.Frame) error {
	l, err := protocol.DecodeLight(f)
	if err != nil {
		return err
	}
	log.Info().Float64("sense", l.SenseValue()).Float64("average", l.AverageValue()).Msg("watch.Manager.handleLight")
	return nil
}

func (m *Manager) handleClock(_ frame.Frame) error {
	now := m.now()
	var roundTrip time.Duration
	if sent := m.clockRequestedAt.Load(); sent > 0 {
		roundTrip = now.Sub(time.Unix(0, sent))
	}
	offset := roundTrip / 2
	m.clockOffset.Store(int64(offset))
	observability.ObserveRTCRoundTrip(roundTrip.Seconds())
	log.Info().Dur("round_trip", roundTrip).Dur("offset", offset).Msg("watch.Manager.handleClock")
	m.SetClock()
	return nil
}

func (m *Manager) handleNval(f frame.Frame) error {
	log.Debug().Hex("payload", f.Payload).Msg("watch.Manager.handleNval ack")
	return nil
}

// voltageFrequency reads collect_watch_voltage, keeping the last good
// value when the stored setting is malformed.
func (m *Manager) voltageFrequency() int {
	last := int(m.lastVoltageFreq.Load())
	v, err := m.prefs.Int(store.KeyCollectWatchVoltage, last)
	if err != nil {
		log.Warn().Err(err).Int("fallback", last).Msg("watch.Manager.voltageFrequency")
		return last
	}
	m.lastVoltageFreq.Store(int64(v))
	return v
}

// pulse wakes at most one waiting consumer without blocking.
func pulse(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
