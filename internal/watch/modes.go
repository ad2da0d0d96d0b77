package watch

import "sync"

// Mode is one UI context of the device.
type Mode uint8

const (
	ModeOff Mode = iota
	ModeIdle
	ModeApplication
	ModeNotification
	ModeCall
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeIdle:
		return "idle"
	case ModeApplication:
		return "application"
	case ModeNotification:
		return "notification"
	case ModeCall:
		return "call"
	default:
		return "unknown"
	}
}

// ModeStack is a push-down stack of modes. It is never observable as
// empty: the bottom is re-seeded with ModeIdle.
type ModeStack struct {
	mu    sync.Mutex
	modes []Mode
}

func NewModeStack() *ModeStack {
	return &ModeStack{modes: []Mode{ModeIdle}}
}

func (s *ModeStack) Enter(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = append(s.modes, m)
}

// Leave pops one level and returns the new top.
func (s *ModeStack) Leave() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = s.modes[:len(s.modes)-1]
	if len(s.modes) == 0 {
		s.modes = append(s.modes, ModeIdle)
	}
	return s.modes[len(s.modes)-1]
}

func (s *ModeStack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modes = []Mode{ModeIdle}
}

func (s *ModeStack) Top() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modes[len(s.modes)-1]
}

// Snapshot copies the stack bottom-first.
func (s *ModeStack) Snapshot() []Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Mode(nil), s.modes...)
}
