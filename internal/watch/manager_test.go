package watch

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danmuck/wristlink/internal/observability"
	"github.com/danmuck/wristlink/internal/protocol"
	"github.com/danmuck/wristlink/internal/protocol/frame"
	"github.com/danmuck/wristlink/internal/store"
	"github.com/danmuck/wristlink/internal/testutil/testlog"
	"github.com/danmuck/wristlink/internal/transport"
)

func inbound(t *testing.T, mt protocol.MessageType, options byte, data ...byte) []byte {
	t.Helper()
	raw, err := frame.Build(byte(mt), options, data)
	if err != nil {
		t.Fatalf("build inbound %s: %v", mt, err)
	}
	return raw
}

func TestSenderPreservesEnqueueOrderAndPacing(t *testing.T) {
	testlog.Start(t)

	opener := newFakeOpener(0)
	cfg := testSessionConfig()
	m := NewManager(Options{DeviceID: "tcp://watch", Session: cfg, Opener: opener})
	startManager(t, m)

	conn := opener.next(t)
	waitFor(t, "device type request", func() bool { return conn.writeCount() == 1 })

	seqs := [][]byte{{0x01, 0x02}, {0x03}, {0x04, 0x05, 0x06}}
	for _, s := range seqs {
		m.Enqueue(s)
	}
	waitFor(t, "three paced writes", func() bool { return conn.writeCount() == 4 })

	writes, times := conn.snapshot()
	if writes[0][2] != byte(protocol.GetDeviceType) {
		t.Fatalf("first write must request device type, got % x", writes[0])
	}
	for i, want := range seqs {
		if !bytes.Equal(writes[i+1], want) {
			t.Fatalf("write %d mismatch: got % x want % x", i+1, writes[i+1], want)
		}
	}
	for i := 2; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < cfg.PacketWait {
			t.Fatalf("writes %d and %d only %v apart", i-1, i, gap)
		}
	}

	time.Sleep(5 * cfg.PacketWait)
	if got := conn.writeCount(); got != 4 {
		t.Fatalf("expected no duplicate writes, got %d", got)
	}
}

func TestFragmentedDeviceTypeResponseConfiguresDigitalWatch(t *testing.T) {
	testlog.Start(t)

	opener := newFakeOpener(0)
	notifier := &fakeNotifier{}
	m := NewManager(Options{
		DeviceID:        "tcp://watch",
		Session:         testSessionConfig(),
		Opener:          opener,
		Notifier:        notifier,
		NotifyOnConnect: true,
	})
	startManager(t, m)

	conn := opener.next(t)
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })

	raw := inbound(t, protocol.GetDeviceTypeResponse, 0, 6)
	conn.deliver(raw[:1], raw[1:4], raw[4:])

	waitFor(t, "identity", func() bool { return m.Identity() == Identity{Type: WatchTypeDigital, Gen: Gen2} })
	// device type + 6 digital setup frames + clock + idle button bindings
	want := 1 + 6 + 1 + len(idleBindings)
	waitFor(t, "follow-up frames", func() bool { return conn.writeCount() == want })

	writes, _ := conn.snapshot()
	types := []protocol.MessageType{
		protocol.GetDeviceType,
		protocol.ConfigureMode,
		protocol.NvalOperation,
		protocol.ConfigureIdleBufferSize,
		protocol.DisableButton,
		protocol.DisableButton,
		protocol.DisableButton,
		protocol.SetRealTimeClock,
		protocol.EnableButton,
	}
	for i, mt := range types {
		if got := protocol.MessageType(writes[i][2]); got != mt {
			t.Fatalf("write %d: got %s want %s", i, got, mt)
		}
	}
	if notifier.count() != 1 {
		t.Fatalf("expected one connect notification, got %d", notifier.count())
	}
}

func TestAnalogDeviceSkipsDigitalSetup(t *testing.T) {
	testlog.Start(t)

	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0)})
	f, err := frame.Parse(inbound(t, protocol.GetDeviceTypeResponse, 0, 4))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := m.dispatch.Dispatch(f); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := m.Identity(); got != (Identity{Type: WatchTypeAnalog, Gen: Gen1}) {
		t.Fatalf("unexpected identity: %s", got)
	}
	queued := m.queue.Snapshot()
	if protocol.MessageType(queued[0][2]) != protocol.SetRealTimeClock {
		t.Fatalf("analog setup must start with clock set, got % x", queued[0])
	}
	if len(queued) != 1+len(idleBindings) {
		t.Fatalf("unexpected queued count: %d", len(queued))
	}
}

func queueDepthGauge(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "wristlink_link_outbound_queue_depth" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("outbound_queue_depth not registered")
	return 0
}

func TestSetupFramesUpdateQueueDepthGauge(t *testing.T) {
	testlog.Start(t)
	observability.RegisterMetrics()
	observability.SetQueueDepth(0)

	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0)})
	f, err := frame.Parse(inbound(t, protocol.GetDeviceTypeResponse, 0, 6))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := m.dispatch.Dispatch(f); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	depth := m.QueueDepth()
	if depth <= len(idleBindings) {
		t.Fatalf("expected digital setup and bindings queued, got %d", depth)
	}
	if got := queueDepthGauge(t); got != float64(depth) {
		t.Fatalf("gauge %v does not match queue depth %d", got, depth)
	}
}

func TestMalformedAndUnknownFramesAreDropped(t *testing.T) {
	testlog.Start(t)

	opener := newFakeOpener(0)
	m := NewManager(Options{DeviceID: "tcp://watch", Session: testSessionConfig(), Opener: opener})
	startManager(t, m)

	conn := opener.next(t)
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })

	conn.deliver([]byte{0x01, 0x02})
	conn.deliver(inbound(t, protocol.MessageType(0x7e), 0))
	conn.deliver(inbound(t, protocol.StatusChangeEvent, 0, byte(protocol.StatusModeChanged)))

	select {
	case <-m.ModeChanged():
	case <-time.After(2 * time.Second):
		t.Fatalf("mode change not signalled after dropped frames")
	}
	if m.State() != StateConnected {
		t.Fatalf("protocol errors must not drop the link: %s", m.State())
	}
	if opener.Attempts() != 1 {
		t.Fatalf("unexpected reconnect: attempts=%d", opener.Attempts())
	}
}

func TestReconnectsAfterRepeatedTransportFailures(t *testing.T) {
	testlog.Start(t)

	opener := newFakeOpener(2)
	m := NewManager(Options{DeviceID: "tcp://watch", Session: testSessionConfig(), Opener: opener})
	startManager(t, m)

	for i := 0; i < 3; i++ {
		conn := opener.next(t)
		waitFor(t, "connected", func() bool { return m.State() == StateConnected })
		_ = conn.Close()
	}
	opener.next(t)
	waitFor(t, "final reconnect", func() bool { return m.State() == StateConnected })
	if got := opener.Attempts(); got != 6 {
		t.Fatalf("expected 2 failures + 4 opens, got %d attempts", got)
	}
}

func TestWriteFailureDropsFrameAndReconnects(t *testing.T) {
	testlog.Start(t)

	opener := newFakeOpener(0)
	opener.configure = func(n int, c *fakeConn) {
		c.failWrites = n == 1
	}
	m := NewManager(Options{DeviceID: "tcp://watch", Session: testSessionConfig(), Opener: opener})
	startManager(t, m)

	first := opener.next(t)
	second := opener.next(t)
	waitFor(t, "first conn released", first.isClosed)
	waitFor(t, "device type on second conn", func() bool { return second.writeCount() == 1 })

	writes, _ := second.snapshot()
	if protocol.MessageType(writes[0][2]) != protocol.GetDeviceType {
		t.Fatalf("unexpected first write after reconnect: % x", writes[0])
	}
	if m.QueueDepth() != 0 {
		t.Fatalf("failed frame must not be re-enqueued, depth=%d", m.QueueDepth())
	}
}

func TestRetryDelayFollowsDisplay(t *testing.T) {
	testlog.Start(t)

	display := &fakeDisplay{active: true}
	cfg := testSessionConfig()
	m := NewManager(Options{Session: cfg, Opener: newFakeOpener(10), Display: display})
	m.state.Store(StateConnecting)

	attempt := 0
	delay, done := m.step(context.Background(), &attempt)
	if done || delay != cfg.RetryDisplayActive {
		t.Fatalf("display active: delay=%v done=%v", delay, done)
	}
	display.mu.Lock()
	display.active = false
	display.mu.Unlock()
	delay, _ = m.step(context.Background(), &attempt)
	if delay != cfg.RetryDisplayIdle {
		t.Fatalf("display idle: delay=%v", delay)
	}
}

func TestShutdownClearsQueueAndIsTerminal(t *testing.T) {
	testlog.Start(t)

	prefs := store.NewPreferences(openTestStore(t))
	opener := newFakeOpener(0)
	cfg := testSessionConfig()
	cfg.PacketWait = time.Hour
	m := NewManager(Options{DeviceID: "tcp://watch", Session: cfg, Opener: opener, Prefs: prefs})
	startManager(t, m)

	conn := opener.next(t)
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	waitFor(t, "previous connection persisted", func() bool {
		return prefs.Bool(store.KeyPreviousConnectionState, false)
	})
	for i := 0; i < 5; i++ {
		m.Enqueue([]byte{byte(i)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("unexpected state: %s", m.State())
	}
	if m.QueueDepth() != 0 {
		t.Fatalf("queue not cleared: %d", m.QueueDepth())
	}
	if !conn.isClosed() {
		t.Fatalf("transport not closed")
	}
	if prefs.Bool(store.KeyPreviousConnectionState, true) {
		t.Fatalf("expected previous connection cleared on teardown")
	}
	if err := m.Submit(NewCommand(CommandSilentEnable, nil)); !errors.Is(err, ErrNotRunning) || !errors.Is(err, ErrTeardown) {
		t.Fatalf("expected ErrNotRunning wrapping ErrTeardown after teardown, got %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected teardown to be terminal, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if opener.Attempts() != 1 {
		t.Fatalf("no retry may follow teardown, attempts=%d", opener.Attempts())
	}
}

func TestConcurrentStartAndShutdown(t *testing.T) {
	testlog.Start(t)

	for i := 0; i < 20; i++ {
		m := NewManager(Options{DeviceID: "tcp://watch", Session: testSessionConfig(), Opener: newFakeOpener(0)})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs := make(chan error, 2)
		go func() { errs <- m.Start(context.Background()) }()
		go func() { errs <- m.Shutdown(ctx) }()
		for j := 0; j < 2; j++ {
			if err := <-errs; err != nil {
				cancel()
				t.Fatalf("iteration %d: %v", i, err)
			}
		}
		// A Shutdown that ran before Start was a no-op.
		if err := m.Shutdown(ctx); err != nil {
			cancel()
			t.Fatalf("iteration %d final shutdown: %v", i, err)
		}
		cancel()
		if m.State() != StateDisconnected {
			t.Fatalf("iteration %d: unexpected state %s", i, m.State())
		}
	}
}

func TestIndicatorBroadcastsOnlyChanges(t *testing.T) {
	testlog.Start(t)

	opener := newFakeOpener(1)
	m := NewManager(Options{DeviceID: "tcp://watch", Session: testSessionConfig(), Opener: opener})
	feed, stop := m.WatchIndicator()
	defer stop()

	startManager(t, m)
	opener.next(t)
	waitFor(t, "connected", func() bool { return m.State() == StateConnected })

	want := []Indicator{IndicatorDisconnected, IndicatorConnecting, IndicatorConnected}
	for i, w := range want {
		select {
		case got := <-feed:
			if got != w {
				t.Fatalf("indicator %d: got %s want %s", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("indicator %d not delivered", i)
		}
	}
	select {
	case got := <-feed:
		t.Fatalf("unexpected extra indicator %s", got)
	default:
	}
}

func TestSimulatedDeviceConnectsAndTearsDown(t *testing.T) {
	testlog.Start(t)

	cfg := testSessionConfig()
	cfg.SimulatedReadDelay = time.Hour
	opener := transport.NewOpener(transport.Options{SimulatedReadDelay: cfg.SimulatedReadDelay})
	m := NewManager(Options{DeviceID: transport.AnalogID, Session: cfg, Opener: opener})
	startManager(t, m)

	waitFor(t, "connected", func() bool { return m.State() == StateConnected })
	if m.Identity().Type != WatchTypeAnalog {
		t.Fatalf("simulated analog id must preset identity, got %s", m.Identity())
	}
	waitFor(t, "queue drained", func() bool { return m.QueueDepth() == 0 })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("blocked read must be released by closing the transport: %v", err)
	}
}

func TestBatteryResponseAppendsVoltageLog(t *testing.T) {
	testlog.Start(t)

	prefs := store.NewPreferences(openTestStore(t))
	path := filepath.Join(t.TempDir(), "voltage.csv")
	vl := store.NewVoltageLog(path)
	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0), Prefs: prefs, Voltage: vl})

	battery := inbound(t, protocol.ReadBatteryVoltageResponse, 0, 1, 0, 0x3c, 0x0f, 0x28, 0x0f)
	f, err := frame.Parse(battery)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := m.dispatch.Dispatch(f); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if rows, _ := vl.Rows(); len(rows) != 0 {
		t.Fatalf("collection disabled must not log, got %d rows", len(rows))
	}

	if err := prefs.SetInt(store.KeyCollectWatchVoltage, 5); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.dispatch.Dispatch(f); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	rows, err := vl.Rows()
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 1 || rows[0][1] != "3.900" || rows[0][2] != "3.880" {
		t.Fatalf("unexpected rows: %q", rows)
	}
}

func TestMalformedVoltageSettingKeepsLastValue(t *testing.T) {
	testlog.Start(t)

	prefs := store.NewPreferences(openTestStore(t))
	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0), Prefs: prefs})

	if err := prefs.SetInt(store.KeyCollectWatchVoltage, 3); err != nil {
		t.Fatalf("set: %v", err)
	}
	m.pollOnce()
	if m.QueueDepth() != 1 {
		t.Fatalf("expected battery request queued, depth=%d", m.QueueDepth())
	}
	if err := prefs.SetString(store.KeyCollectWatchVoltage, "often"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := m.voltageFrequency(); got != 3 {
		t.Fatalf("expected last good value 3, got %d", got)
	}
	if err := prefs.SetInt(store.KeyCollectWatchVoltage, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	m.pollOnce()
	if m.QueueDepth() != 1 {
		t.Fatalf("disabled collection must not poll, depth=%d", m.QueueDepth())
	}
}

func TestClockResponseDerivesOffsetAndResends(t *testing.T) {
	testlog.Start(t)

	clock := newFakeClock()
	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0), Now: clock.Now})

	m.RequestClock()
	clock.Advance(40 * time.Millisecond)
	f, err := frame.Parse(inbound(t, protocol.GetRealTimeClockResponse, 0, 0, 0))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := m.dispatch.Dispatch(f); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := m.ClockOffset(); got != 20*time.Millisecond {
		t.Fatalf("unexpected offset: %v", got)
	}
	queued := m.queue.Snapshot()
	if len(queued) != 2 || protocol.MessageType(queued[1][2]) != protocol.SetRealTimeClock {
		t.Fatalf("expected clock set queued after response, got %d frames", len(queued))
	}
}

func TestModeTimeoutReturnsToIdleFirstPage(t *testing.T) {
	testlog.Start(t)

	display := &fakeDisplay{}
	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0), Display: display})
	m.Modes().Enter(ModeApplication)

	f, err := frame.Parse(inbound(t, protocol.StatusChangeEvent, 0, byte(protocol.StatusModeTimeout)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := m.dispatch.Dispatch(f); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if m.Modes().Top() != ModeIdle || len(m.Modes().Snapshot()) != 1 {
		t.Fatalf("expected [idle], got %v", m.Modes().Snapshot())
	}
	refresh, _, _, toIdle := display.counts()
	if refresh != 1 || toIdle != 1 || len(display.pages) != 1 || display.pages[0] != 0 {
		t.Fatalf("unexpected display calls refresh=%d to_idle=%d pages=%v", refresh, toIdle, display.pages)
	}
}

func TestDispatcherUnknownArm(t *testing.T) {
	testlog.Start(t)

	d := NewDispatcher()
	seen := 0
	d.Register(protocol.NvalOperationResponse, func(frame.Frame) error { return nil })
	d.OnUnknown(func(frame.Frame) { seen++ })

	err := d.Dispatch(frame.Frame{Type: 0x7f})
	if !errors.Is(err, protocol.ErrUnknownType) || seen != 1 {
		t.Fatalf("unknown arm not taken: err=%v seen=%d", err, seen)
	}
	if err := d.Dispatch(frame.Frame{Type: byte(protocol.NvalOperationResponse)}); err != nil {
		t.Fatalf("registered type: %v", err)
	}
	if types := d.Types(); len(types) != 1 || types[0] != protocol.NvalOperationResponse {
		t.Fatalf("unexpected types: %v", types)
	}
}
