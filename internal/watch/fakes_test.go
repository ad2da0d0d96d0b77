package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/wristlink/internal/protocol/session"
	"github.com/danmuck/wristlink/internal/store"
	"github.com/danmuck/wristlink/internal/transport"
)

// fakeConn is a scripted transport: tests push inbound chunks and inspect
// outbound writes.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu         sync.Mutex
	pending    []byte
	writes     [][]byte
	writeTimes []time.Time
	failWrites bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if len(c.pending) > 0 {
		n := copy(p, c.pending)
		c.pending = c.pending[n:]
		c.mu.Unlock()
		return n, nil
	}
	c.mu.Unlock()
	select {
	case chunk := <-c.in:
		n := copy(p, chunk)
		if n < len(chunk) {
			c.mu.Lock()
			c.pending = append(c.pending, chunk[n:]...)
			c.mu.Unlock()
		}
		return n, nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, transport.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return 0, errors.New("broken pipe")
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	c.writeTimes = append(c.writeTimes, time.Now())
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) deliver(chunks ...[]byte) {
	for _, chunk := range chunks {
		c.in <- append([]byte(nil), chunk...)
	}
}

func (c *fakeConn) snapshot() ([][]byte, []time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...), append([]time.Time(nil), c.writeTimes...)
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

// fakeOpener fails the first failFirst attempts, then hands out fresh
// fakeConns and publishes them on conns.
type fakeOpener struct {
	mu        sync.Mutex
	attempts  int
	failFirst int
	configure func(n int, c *fakeConn)
	conns     chan *fakeConn
}

func newFakeOpener(failFirst int) *fakeOpener {
	return &fakeOpener{failFirst: failFirst, conns: make(chan *fakeConn, 16)}
}

func (o *fakeOpener) Open(_ context.Context, id string) (transport.Transport, error) {
	o.mu.Lock()
	o.attempts++
	n := o.attempts
	configure := o.configure
	o.mu.Unlock()
	if n <= o.failFirst {
		return nil, fmt.Errorf("%w: scripted failure %d for %s", transport.ErrConnect, n, id)
	}
	c := newFakeConn()
	if configure != nil {
		configure(n, c)
	}
	o.conns <- c
	return c, nil
}

func (o *fakeOpener) Attempts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempts
}

func (o *fakeOpener) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-o.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no connection opened")
		return nil
	}
}

type fakeDisplay struct {
	mu       sync.Mutex
	active   bool
	refresh  int
	nextPage int
	oled     int
	toIdle   int
	pages    []int
}

func (d *fakeDisplay) Refresh()     { d.mu.Lock(); d.refresh++; d.mu.Unlock() }
func (d *fakeDisplay) Active() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.active }
func (d *fakeDisplay) ToPage(p int) { d.mu.Lock(); d.pages = append(d.pages, p); d.mu.Unlock() }
func (d *fakeDisplay) NextPage()    { d.mu.Lock(); d.nextPage++; d.mu.Unlock() }
func (d *fakeDisplay) ToIdle()      { d.mu.Lock(); d.toIdle++; d.mu.Unlock() }
func (d *fakeDisplay) SendOledIdle() {
	d.mu.Lock()
	d.oled++
	d.mu.Unlock()
}

func (d *fakeDisplay) counts() (refresh, nextPage, oled, toIdle int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refresh, d.nextPage, d.oled, d.toIdle
}

type fakeCalls struct {
	answered, dismissed int
}

func (c *fakeCalls) Answer()  { c.answered++ }
func (c *fakeCalls) Dismiss() { c.dismissed++ }

type fakeExtension struct {
	result ExtensionResult
	codes  []uint8
}

func (e *fakeExtension) HandleButton(code uint8) ExtensionResult {
	e.codes = append(e.codes, code)
	return e.result
}

type fakeExtensions struct{ ext Extension }

func (h fakeExtensions) Foreground() Extension { return h.ext }

type fakeQuick struct{ ran []string }

func (q *fakeQuick) Run(action string) { q.ran = append(q.ran, action) }

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *fakeNotifier) Notify(title, _ string, _ int) {
	n.mu.Lock()
	n.titles = append(n.titles, title)
	n.mu.Unlock()
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.titles)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 9, 13, 45, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testSessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.PacketWait = 5 * time.Millisecond
	cfg.RetryDisplayActive = 10 * time.Millisecond
	cfg.RetryDisplayIdle = 20 * time.Millisecond
	cfg.PollInterval = time.Hour
	return cfg
}

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "watch.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
