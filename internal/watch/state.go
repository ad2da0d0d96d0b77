package watch

import (
	"fmt"
	"sync/atomic"
)

// ConnectionState is the link state. Only Manager writes it.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// stateCell is the atomically visible ConnectionState.
type stateCell struct {
	v atomic.Int32
}

func (c *stateCell) Load() ConnectionState { return ConnectionState(c.v.Load()) }

func (c *stateCell) Store(s ConnectionState) { c.v.Store(int32(s)) }

func (c *stateCell) CompareAndSwap(from, to ConnectionState) bool {
	return c.v.CompareAndSwap(int32(from), int32(to))
}

type WatchType uint8

const (
	WatchTypeUnknown WatchType = iota
	WatchTypeDigital
	WatchTypeAnalog
)

func (t WatchType) String() string {
	switch t {
	case WatchTypeDigital:
		return "digital"
	case WatchTypeAnalog:
		return "analog"
	default:
		return "unknown"
	}
}

func (t WatchType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *WatchType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "digital":
		*t = WatchTypeDigital
	case "analog":
		*t = WatchTypeAnalog
	default:
		*t = WatchTypeUnknown
	}
	return nil
}

type WatchGen uint8

const (
	GenUnknown WatchGen = iota
	Gen1
	Gen2
)

func (g WatchGen) String() string {
	switch g {
	case Gen1:
		return "gen1"
	case Gen2:
		return "gen2"
	default:
		return "unknown"
	}
}

func (g WatchGen) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *WatchGen) UnmarshalText(b []byte) error {
	switch string(b) {
	case "gen1":
		*g = Gen1
	case "gen2":
		*g = Gen2
	default:
		*g = GenUnknown
	}
	return nil
}

// Identity is the connected hardware, learned once per connection.
type Identity struct {
	Type WatchType `json:"type"`
	Gen  WatchGen  `json:"gen"`
}

func (i Identity) String() string {
	return i.Type.String() + "/" + i.Gen.String()
}

// ClassifyDeviceType maps the device type byte of a GetDeviceTypeResponse.
func ClassifyDeviceType(code uint8) Identity {
	switch code {
	case 1, 4:
		return Identity{Type: WatchTypeAnalog, Gen: Gen1}
	case 5, 6:
		return Identity{Type: WatchTypeDigital, Gen: Gen2}
	default:
		return Identity{Type: WatchTypeDigital, Gen: Gen1}
	}
}

type identityCell struct {
	v atomic.Uint32
}

func (c *identityCell) Load() Identity {
	raw := c.v.Load()
	return Identity{Type: WatchType(raw >> 8), Gen: WatchGen(raw & 0xff)}
}

func (c *identityCell) Store(id Identity) {
	c.v.Store(uint32(id.Type)<<8 | uint32(id.Gen))
}

// Indicator is the coarse connection status shown to collaborators.
type Indicator string

const (
	IndicatorDisconnected Indicator = "disconnected"
	IndicatorConnecting   Indicator = "connecting"
	IndicatorConnected    Indicator = "connected"
)

func indicatorFor(s ConnectionState) Indicator {
	switch s {
	case StateConnected:
		return IndicatorConnected
	case StateConnecting:
		return IndicatorConnecting
	default:
		return IndicatorDisconnected
	}
}
