package watch

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/wristlink/internal/store"
)

// Display is the display-composition service.
type Display interface {
	// Refresh recomposes the current idle screen.
	Refresh()
	// Active reports whether the host display is on.
	Active() bool
	ToPage(page int)
	NextPage()
	ToIdle()
	// SendOledIdle pushes the idle screen to analog OLED panels.
	SendOledIdle()
}

// ExtensionResult is a foreground extension's answer to a button press.
type ExtensionResult uint8

const (
	ButtonNotUsed ExtensionResult = iota
	ButtonUsed
	ButtonUsedNoRefresh
)

// Extension is a capability-based handler running in the foreground.
type Extension interface {
	HandleButton(code uint8) ExtensionResult
}

// ExtensionHost returns the foreground extension, or nil.
type ExtensionHost interface {
	Foreground() Extension
}

// QuickActions runs a configured quick-button action by name.
type QuickActions interface {
	Run(action string)
}

type CallControl interface {
	Answer()
	Dismiss()
}

// Notifier forwards a host notification to the device.
type Notifier interface {
	Notify(title, body string, priority int)
}

// Preferences is the typed key/value store the link reads and writes.
// Subscribe delivers every later write until the returned func is called.
type Preferences interface {
	Bool(key string, def bool) bool
	SetBool(key string, value bool) error
	Int(key string, def int) (int, error)
	Subscribe() (<-chan store.Change, func())
}

// VoltageSink records battery samples in volts.
type VoltageSink interface {
	Append(sense, average float64) error
}

// Journal records encoded host commands for replay.
type Journal interface {
	Append(commandID string, encoded []byte, at time.Time) (int64, error)
	Get(seq int64) (store.JournalEntry, bool, error)
	Recent(limit int) ([]store.JournalEntry, error)
}

type nopDisplay struct{}

func (nopDisplay) Refresh()      {}
func (nopDisplay) Active() bool  { return false }
func (nopDisplay) ToPage(int)    {}
func (nopDisplay) NextPage()     {}
func (nopDisplay) ToIdle()       {}
func (nopDisplay) SendOledIdle() {}

type nopExtensions struct{}

func (nopExtensions) Foreground() Extension { return nil }

type nopQuick struct{}

func (nopQuick) Run(string) {}

type nopCalls struct{}

func (nopCalls) Answer()  {}
func (nopCalls) Dismiss() {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, int) {}

// memPreferences backs a Manager that was given no store.
type memPreferences struct {
	mu    sync.Mutex
	bools map[string]bool
	subs  map[int]chan store.Change
	next  int
}

func newMemPreferences() *memPreferences {
	return &memPreferences{bools: make(map[string]bool), subs: make(map[int]chan store.Change)}
}

func (p *memPreferences) Bool(key string, def bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.bools[key]; ok {
		return v
	}
	return def
}

func (p *memPreferences) SetBool(key string, value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bools[key] = value
	c := store.Change{Key: key, Value: strconv.FormatBool(value)}
	for _, ch := range p.subs {
		select {
		case ch <- c:
		default:
		}
	}
	return nil
}

func (p *memPreferences) Int(string, int) (int, error) { return 0, nil }

func (p *memPreferences) Subscribe() (<-chan store.Change, func()) {
	ch := make(chan store.Change, 16)
	p.mu.Lock()
	id := p.next
	p.next++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}
