package watch

import (
	"fmt"
	"sort"

	"github.com/danmuck/wristlink/internal/protocol"
	"github.com/danmuck/wristlink/internal/protocol/frame"
)

// Handler consumes one assembled frame of a registered type.
type Handler func(f frame.Frame) error

// Dispatcher routes frames to handlers by message type. Types without a
// handler take the unknown arm.
type Dispatcher struct {
	handlers map[protocol.MessageType]Handler
	unknown  func(f frame.Frame)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[protocol.MessageType]Handler)}
}

func (d *Dispatcher) Register(t protocol.MessageType, h Handler) {
	d.handlers[t] = h
}

func (d *Dispatcher) OnUnknown(fn func(f frame.Frame)) {
	d.unknown = fn
}

// Dispatch runs the handler for f. An unregistered type returns
// protocol.ErrUnknownType after the unknown arm runs.
func (d *Dispatcher) Dispatch(f frame.Frame) error {
	t := protocol.MessageType(f.Type)
	h, ok := d.handlers[t]
	if !ok {
		if d.unknown != nil {
			d.unknown(f)
		}
		return fmt.Errorf("%w: %s", protocol.ErrUnknownType, t)
	}
	if err := h(f); err != nil {
		return fmt.Errorf("watch: handle %s: %w", t, err)
	}
	return nil
}

// Types lists registered message types in code order.
func (d *Dispatcher) Types() []protocol.MessageType {
	out := make([]protocol.MessageType, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
