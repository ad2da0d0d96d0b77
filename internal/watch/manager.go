package watch

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/observability"
	"github.com/danmuck/wristlink/internal/protocol"
	"github.com/danmuck/wristlink/internal/protocol/frame"
	"github.com/danmuck/wristlink/internal/protocol/session"
	"github.com/danmuck/wristlink/internal/store"
	"github.com/danmuck/wristlink/internal/transport"
)

var (
	ErrAlreadyStarted = errors.New("watch: manager already started")
	ErrTeardown       = errors.New("watch: teardown requested")
	ErrNoOpener       = errors.New("watch: transport opener required")
)

// Options wires a Manager to its transport and collaborators. Nil
// collaborators are replaced with no-ops.
type Options struct {
	DeviceID string
	Session  session.Config
	Opener   transport.Opener

	Display    Display
	Extensions ExtensionHost
	Quick      QuickActions
	Calls      CallControl
	Notifier   Notifier
	Prefs      Preferences
	Voltage    VoltageSink
	Journal    Journal

	QuickButtonLeft  string
	QuickButtonRight string
	HapticFeedback   bool
	InvertLCD        bool
	NotifyOnConnect  bool

	Now func() time.Time
}

// Manager owns the device link: state, identity, transport, and the loops
// that drive them.
type Manager struct {
	opts Options
	cfg  session.Config
	now  func() time.Time

	state    stateCell
	identity identityCell
	queue    *session.OutboundQueue
	gate     *session.Gate
	modes    *ModeStack
	router   *ButtonRouter
	dispatch *Dispatcher

	display  Display
	notifier Notifier
	prefs    Preferences
	voltage  VoltageSink
	journal  Journal

	connMu    sync.Mutex
	conn      transport.Transport
	reader    *frame.Reader
	sessionID string

	commands chan Command
	silent   atomic.Bool

	clockRequestedAt atomic.Int64
	clockOffset      atomic.Int64
	lastVoltageFreq  atomic.Int64

	modeChanged   chan struct{}
	scrollRequest chan struct{}

	indicatorMu   sync.Mutex
	lastIndicator Indicator
	watchers      map[int]chan Indicator
	nextWatcher   int

	// lifeMu orders Start against Shutdown so a published start always has
	// its cancel funcs and wait group in place.
	lifeMu       sync.Mutex
	started      atomic.Bool
	stopOnce     sync.Once
	cancel       context.CancelFunc
	senderCancel context.CancelFunc
	wg           sync.WaitGroup
	rng          *rand.Rand
}

func NewManager(opts Options) *Manager {
	if opts.Display == nil {
		opts.Display = nopDisplay{}
	}
	if opts.Extensions == nil {
		opts.Extensions = nopExtensions{}
	}
	if opts.Quick == nil {
		opts.Quick = nopQuick{}
	}
	if opts.Calls == nil {
		opts.Calls = nopCalls{}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Prefs == nil {
		opts.Prefs = newMemPreferences()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := opts.Session.WithDefaults()

	m := &Manager{
		opts:          opts,
		cfg:           cfg,
		now:           opts.Now,
		queue:         session.NewOutboundQueue(),
		gate:          session.NewGate(),
		modes:         NewModeStack(),
		dispatch:      NewDispatcher(),
		display:       opts.Display,
		notifier:      opts.Notifier,
		prefs:         opts.Prefs,
		voltage:       opts.Voltage,
		journal:       opts.Journal,
		commands:      make(chan Command, 64),
		modeChanged:   make(chan struct{}, 1),
		scrollRequest: make(chan struct{}, 1),
		lastIndicator: IndicatorDisconnected,
		watchers:      make(map[int]chan Indicator),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.silent.Store(opts.Prefs.Bool(store.KeySilentMode, false))

	m.router = newButtonRouter(m.modes, RouterConfig{
		QuickLeft:         opts.QuickButtonLeft,
		QuickRight:        opts.QuickButtonRight,
		DoublePressWindow: cfg.DoublePressWindow,
		Now:               opts.Now,
	})
	m.router.display = opts.Display
	m.router.extensions = opts.Extensions
	m.router.quick = opts.Quick
	m.router.calls = opts.Calls
	m.router.identity = m.Identity
	m.router.toggleSilent = m.toggleSilentFromButton

	m.registerHandlers(m.dispatch)
	return m
}

// Start launches the receive loop, paced sender, poll timer, command loop
// and preference watcher. The manager cannot be restarted after Shutdown.
func (m *Manager) Start(ctx context.Context) error {
	if m.opts.Opener == nil {
		return ErrNoOpener
	}
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.started.Load() {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	senderCtx, senderCancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.senderCancel = senderCancel
	changes, unsubscribe := m.prefs.Subscribe()

	m.setState(StateConnecting)
	log.Info().Str("device", m.opts.DeviceID).Msg("watch.Manager.Start")

	m.wg.Add(5)
	go m.receiveLoop(ctx)
	go m.senderLoop(senderCtx)
	go m.pollLoop(ctx)
	go m.commandLoop(ctx)
	go m.preferenceLoop(ctx, changes, unsubscribe)
	m.started.Store(true)
	return nil
}

// receiveLoop drives the state machine; each pass runs one state step and
// sleeps for the delay it returns.
func (m *Manager) receiveLoop(ctx context.Context) {
	defer m.wg.Done()
	attempt := 0
	for {
		delay, done := m.step(ctx, &attempt)
		if done {
			m.state.Store(StateDisconnected)
			log.Info().Msg("watch.Manager.receiveLoop stopped")
			return
		}
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (m *Manager) step(ctx context.Context, attempt *int) (time.Duration, bool) {
	switch m.State() {
	case StateConnecting:
		if ctx.Err() != nil {
			return 0, true
		}
		if m.connect(ctx) {
			*attempt = 0
			return 0, false
		}
		*attempt++
		delay := m.cfg.RetryDelay(m.display.Active(), *attempt, m.rng)
		log.Debug().Int("attempt", *attempt).Dur("retry_in", delay).Msg("watch.Manager.step connect retry")
		return delay, false
	case StateConnected:
		m.readOnce()
		return 0, false
	default:
		return 0, true
	}
}

// connect opens the transport. Every failure is absorbed into a false
// result.
func (m *Manager) connect(ctx context.Context) bool {
	id := strings.TrimSpace(m.opts.DeviceID)
	m.presetSimulatedIdentity(id)

	t, err := m.opts.Opener.Open(ctx, id)
	observability.RecordConnectAttempt(err == nil)
	if err != nil {
		log.Warn().Err(err).Str("device", id).Msg("watch.Manager.connect failed")
		return false
	}

	m.connMu.Lock()
	m.conn = t
	m.reader = frame.NewReader(t)
	m.sessionID = uuid.NewString()
	sessionID := m.sessionID
	m.connMu.Unlock()

	if !m.state.CompareAndSwap(StateConnecting, StateConnected) {
		m.closeTransport()
		return false
	}
	observability.SetConnectionState(int(StateConnected))
	m.persistConnection(true)
	m.Enqueue(protocol.BuildGetDeviceType())
	m.gate.Open()
	m.broadcastIndicator()
	log.Info().Str("device", id).Str("session", sessionID).Msg("watch.Manager.connect connected")
	return true
}

func (m *Manager) presetSimulatedIdentity(id string) {
	switch id {
	case transport.DigitalID:
		m.identity.Store(Identity{Type: WatchTypeDigital})
	case transport.AnalogID:
		m.identity.Store(Identity{Type: WatchTypeAnalog})
	}
}

// readOnce blocks for one frame and dispatches it.
func (m *Manager) readOnce() {
	m.connMu.Lock()
	conn, reader := m.conn, m.reader
	m.connMu.Unlock()
	if reader == nil {
		m.ResetConnection()
		return
	}

	f, err := reader.Next()
	if err != nil {
		if errors.Is(err, frame.ErrShortFrame) {
			observability.RecordProtocolError("malformed")
			log.Warn().Err(err).Msg("watch.Manager.readOnce malformed frame dropped")
			return
		}
		if m.State() == StateConnected {
			log.Warn().Err(err).Msg("watch.Manager.readOnce transport read failed")
		}
		m.resetConnection(conn)
		return
	}

	msgType := protocol.MessageType(f.Type)
	observability.RecordFrameReceived(msgType.String())
	log.Debug().Str("type", msgType.String()).Int("length", int(f.Length)).Msg("watch.Manager.readOnce")
	if err := m.dispatch.Dispatch(f); err != nil {
		reason := "handler"
		if errors.Is(err, protocol.ErrUnknownType) {
			reason = "unknown_type"
		}
		observability.RecordProtocolError(reason)
		log.Warn().Err(err).Msg("watch.Manager.readOnce frame dropped")
	}
}

// ResetConnection closes the gate, releases the transport and re-enters
// Connecting. It is idempotent and safe from any loop.
func (m *Manager) ResetConnection() {
	m.resetConnection(nil)
}

// resetConnection resets only while from is still the live transport, so a
// late failure on a replaced transport cannot drop its successor.
func (m *Manager) resetConnection(from transport.Transport) {
	m.connMu.Lock()
	if from != nil && m.conn != from {
		m.connMu.Unlock()
		return
	}
	if !m.state.CompareAndSwap(StateConnected, StateConnecting) {
		m.connMu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	m.reader = nil
	m.connMu.Unlock()

	m.gate.Close()
	if conn != nil {
		_ = conn.Close()
	}
	m.identity.Store(Identity{})
	observability.SetConnectionState(int(StateConnecting))
	m.broadcastIndicator()
	log.Info().Msg("watch.Manager.ResetConnection")
}

func (m *Manager) closeTransport() {
	m.connMu.Lock()
	conn := m.conn
	m.conn = nil
	m.reader = nil
	m.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Shutdown tears the link down: Disconnecting, stop the sender, clear the
// queue, open the gate, close the transport, then wait for the loops.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifeMu.Lock()
	started := m.started.Load()
	m.lifeMu.Unlock()
	if !started {
		return nil
	}
	var err error
	m.stopOnce.Do(func() {
		m.setState(StateDisconnecting)
		m.senderCancel()
		dropped := m.queue.Clear()
		m.gate.Open()
		m.closeTransport()
		m.cancel()

		done := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}

		m.setState(StateDisconnected)
		m.identity.Store(Identity{})
		observability.SetQueueDepth(0)
		m.persistConnection(false)
		log.Info().Int("dropped", dropped).Msg("watch.Manager.Shutdown")
	})
	return err
}

func (m *Manager) setState(s ConnectionState) {
	m.state.Store(s)
	observability.SetConnectionState(int(s))
	m.broadcastIndicator()
}

func (m *Manager) persistConnection(connected bool) {
	if err := m.prefs.SetBool(store.KeyPreviousConnectionState, connected); err != nil {
		log.Warn().Err(err).Msg("watch.Manager.persistConnection")
	}
}

func (m *Manager) State() ConnectionState { return m.state.Load() }

func (m *Manager) Identity() Identity { return m.identity.Load() }

func (m *Manager) Modes() *ModeStack { return m.modes }

func (m *Manager) Router() *ButtonRouter { return m.router }

func (m *Manager) QueueDepth() int { return m.queue.Len() }

func (m *Manager) SessionID() string {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	return m.sessionID
}

// Enqueue queues one raw outbound frame without blocking.
func (m *Manager) Enqueue(raw []byte) {
	m.queue.Enqueue(raw)
	observability.SetQueueDepth(m.queue.Len())
}

// ModeChanged is signalled when the device reports a mode change.
func (m *Manager) ModeChanged() <-chan struct{} { return m.modeChanged }

// ScrollRequested is signalled when the device asks for more scroll data.
func (m *Manager) ScrollRequested() <-chan struct{} { return m.scrollRequest }

// Vibrate queues a vibration pattern.
func (m *Manager) Vibrate(onMS, offMS uint16, cycles uint8) {
	m.Enqueue(protocol.BuildVibrate(onMS, offMS, cycles))
}

// SetClock queues the host time corrected by the measured one-way delay.
func (m *Manager) SetClock() {
	offset := time.Duration(m.clockOffset.Load())
	m.Enqueue(protocol.BuildSetRealTimeClock(m.now().Add(offset)))
}

// RequestClock queues a clock read and records the send time for the
// round-trip measurement.
func (m *Manager) RequestClock() {
	m.clockRequestedAt.Store(m.now().UnixNano())
	m.Enqueue(protocol.BuildGetRealTimeClock())
}

// RequestSensors queues one battery voltage read and one light sensor read.
func (m *Manager) RequestSensors() {
	m.Enqueue(protocol.BuildReadBatteryVoltage())
	m.Enqueue(protocol.BuildReadLightSensor())
}

func (m *Manager) ClockOffset() time.Duration {
	return time.Duration(m.clockOffset.Load())
}

func (m *Manager) Silent() bool { return m.silent.Load() }

// SetSilentMode stores the flag, persists it and refreshes the display.
func (m *Manager) SetSilentMode(enabled bool) {
	m.silent.Store(enabled)
	if err := m.prefs.SetBool(store.KeySilentMode, enabled); err != nil {
		log.Warn().Err(err).Msg("watch.Manager.SetSilentMode persist failed")
	}
	m.display.Refresh()
	log.Info().Bool("silent", enabled).Msg("watch.Manager.SetSilentMode")
}

func (m *Manager) toggleSilentFromButton() {
	m.SetSilentMode(!m.Silent())
	m.Vibrate(500, 500, 2)
}

// WatchIndicator returns a feed of indicator changes, starting with the
// current value, and a func that ends it.
func (m *Manager) WatchIndicator() (<-chan Indicator, func()) {
	ch := make(chan Indicator, 8)
	m.indicatorMu.Lock()
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.lastIndicator
	m.indicatorMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.indicatorMu.Lock()
			delete(m.watchers, id)
			m.indicatorMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) Indicator() Indicator {
	m.indicatorMu.Lock()
	defer m.indicatorMu.Unlock()
	return m.lastIndicator
}

// broadcastIndicator publishes the indicator only when it changed.
func (m *Manager) broadcastIndicator() {
	next := indicatorFor(m.State())
	m.indicatorMu.Lock()
	defer m.indicatorMu.Unlock()
	if next == m.lastIndicator {
		return
	}
	m.lastIndicator = next
	for _, ch := range m.watchers {
		select {
		case ch <- next:
		default:
		}
	}
	log.Debug().Str("indicator", string(next)).Msg("watch.Manager.broadcastIndicator")
}
