package watch

import (
	"sync"
	"time"

	"github.com/danmuck/wristlink/internal/protocol"
)

// Callback codes the device reports in ButtonEvent frames. They are
// registered with EnableButton when idle buttons are activated.
const (
	CodeIdleNextPage    uint8 = 60
	CodeToggleSilent    uint8 = 61
	CodeIdleOledDisplay uint8 = 62
	CodeLeftQuick       uint8 = 63
	CodeRightQuick      uint8 = 64
	CodeCallAnswer      uint8 = 70
	CodeCallDismiss     uint8 = 71
)

// buttonBinding maps one physical button press to a callback code.
type buttonBinding struct {
	buffer protocol.Buffer
	button uint8
	press  protocol.PressType
	code   uint8
}

var idleBindings = []buttonBinding{
	{protocol.BufferIdle, protocol.ButtonA, protocol.PressImmediate, CodeIdleNextPage},
	{protocol.BufferIdle, protocol.ButtonB, protocol.PressImmediate, CodeRightQuick},
	{protocol.BufferIdle, protocol.ButtonE, protocol.PressImmediate, CodeLeftQuick},
	{protocol.BufferIdle, protocol.ButtonC, protocol.PressHold, CodeToggleSilent},
	{protocol.BufferIdle, protocol.ButtonF, protocol.PressImmediate, CodeIdleOledDisplay},
	{protocol.BufferNotification, protocol.ButtonA, protocol.PressImmediate, CodeCallAnswer},
	{protocol.BufferNotification, protocol.ButtonC, protocol.PressImmediate, CodeCallDismiss},
}

// Action names what a routed press did.
type Action string

const (
	ActionNone         Action = "none"
	ActionExtension    Action = "extension"
	ActionQuickLeft    Action = "quick_left"
	ActionQuickRight   Action = "quick_right"
	ActionNextPage     Action = "next_page"
	ActionToggleSilent Action = "toggle_silent"
	ActionOledRefresh  Action = "oled_refresh"
	ActionOledNextPage Action = "oled_next_page"
	ActionAnswer       Action = "answer"
	ActionDismiss      Action = "dismiss"
)

type PressKind uint8

const (
	PressSingle PressKind = iota
	PressDouble
)

func (k PressKind) String() string {
	if k == PressDouble {
		return "double"
	}
	return "single"
}

type RouterConfig struct {
	QuickLeft         string
	QuickRight        string
	DoublePressWindow time.Duration
	Now               func() time.Time
}

// ButtonRouter resolves (top of mode stack, callback code) to an action and
// runs it against the collaborators.
type ButtonRouter struct {
	modes        *ModeStack
	display      Display
	extensions   ExtensionHost
	quick        QuickActions
	calls        CallControl
	toggleSilent func()
	identity     func() Identity
	cfg          RouterConfig

	mu        sync.Mutex
	lastPress map[uint8]time.Time
}

func newButtonRouter(modes *ModeStack, cfg RouterConfig) *ButtonRouter {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DoublePressWindow <= 0 {
		cfg.DoublePressWindow = 5 * time.Second
	}
	return &ButtonRouter{
		modes:        modes,
		display:      nopDisplay{},
		extensions:   nopExtensions{},
		quick:        nopQuick{},
		calls:        nopCalls{},
		toggleSilent: func() {},
		identity:     func() Identity { return Identity{} },
		cfg:          cfg,
		lastPress:    make(map[uint8]time.Time),
	}
}

// Classify records a press of code and reports whether it follows the
// previous press of the same code within the double-press window.
func (r *ButtonRouter) Classify(code uint8) PressKind {
	now := r.cfg.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastPress[code]
	r.lastPress[code] = now
	if ok && now.Sub(last) < r.cfg.DoublePressWindow {
		return PressDouble
	}
	return PressSingle
}

// Route resolves code against the mode on top of the stack and returns that
// mode with the action taken.
func (r *ButtonRouter) Route(code uint8) (Mode, Action) {
	top := r.modes.Top()
	return top, r.routeIn(top, code)
}

func (r *ButtonRouter) routeIn(top Mode, code uint8) Action {
	switch top {
	case ModeIdle:
		return r.routeIdle(code)
	case ModeApplication:
		if ext := r.extensions.Foreground(); ext != nil {
			ext.HandleButton(code)
			return ActionExtension
		}
		return ActionNone
	case ModeNotification:
		switch code {
		case CodeCallAnswer:
			r.calls.Answer()
			return ActionAnswer
		case CodeCallDismiss:
			r.calls.Dismiss()
			return ActionDismiss
		}
		return ActionNone
	default:
		// Call and Off have no bound actions.
		return ActionNone
	}
}

func (r *ButtonRouter) routeIdle(code uint8) Action {
	if ext := r.extensions.Foreground(); ext != nil {
		switch ext.HandleButton(code) {
		case ButtonUsed:
			if r.identity().Type == WatchTypeAnalog {
				r.display.SendOledIdle()
			} else {
				r.display.Refresh()
			}
			return ActionExtension
		case ButtonUsedNoRefresh:
			return ActionExtension
		}
	}

	switch code {
	case CodeLeftQuick:
		r.quick.Run(r.cfg.QuickLeft)
		return ActionQuickLeft
	case CodeRightQuick:
		r.quick.Run(r.cfg.QuickRight)
		return ActionQuickRight
	case CodeIdleNextPage:
		r.display.NextPage()
		r.display.Refresh()
		return ActionNextPage
	case CodeToggleSilent:
		r.toggleSilent()
		return ActionToggleSilent
	case CodeIdleOledDisplay:
		action := ActionOledRefresh
		if r.Classify(code) == PressDouble {
			r.display.NextPage()
			r.display.Refresh()
			action = ActionOledNextPage
		}
		r.display.SendOledIdle()
		return action
	}
	return ActionNone
}
