// Package transport opens the byte stream to the companion device.
//
// Identifier scheme:
//
//	null, DIGITAL, ANALOG   simulated link, no I/O
//	tcp://host:port         RFCOMM/serial bridge over TCP
//	ws://... wss://...      websocket bridge, one binary message per write
//	anything else           character device path opened read-write
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	NullID    = "null"
	DigitalID = "DIGITAL"
	AnalogID  = "ANALOG"
)

var (
	ErrEmptyID = errors.New("transport: empty device identifier")
	ErrConnect = errors.New("transport: connect failed")
	ErrClosed  = errors.New("transport: closed")
)

// Transport is one bidirectional byte stream to the device. Close must
// unblock an in-flight Read.
type Transport interface {
	io.ReadWriteCloser
}

// Opener acquires a transport for a device identifier.
type Opener interface {
	Open(ctx context.Context, id string) (Transport, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, id string) (Transport, error)

func (f OpenerFunc) Open(ctx context.Context, id string) (Transport, error) {
	return f(ctx, id)
}

// Options tunes the default opener.
type Options struct {
	DialTimeout        time.Duration
	SimulatedReadDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		DialTimeout:        5 * time.Second,
		SimulatedReadDelay: 10 * time.Second,
	}
}

// IsSimulated reports whether id selects the null transport.
func IsSimulated(id string) bool {
	switch strings.TrimSpace(id) {
	case NullID, DigitalID, AnalogID:
		return true
	default:
		return false
	}
}

// NewOpener returns the default identifier-dispatching opener.
func NewOpener(opts Options) Opener {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultOptions().DialTimeout
	}
	if opts.SimulatedReadDelay <= 0 {
		opts.SimulatedReadDelay = DefaultOptions().SimulatedReadDelay
	}
	return OpenerFunc(func(ctx context.Context, id string) (Transport, error) {
		return open(ctx, id, opts)
	})
}

func open(ctx context.Context, id string, opts Options) (Transport, error) {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return nil, ErrEmptyID
	case IsSimulated(id):
		return NewNull(opts.SimulatedReadDelay), nil
	case strings.HasPrefix(id, "tcp://"):
		return dialTCP(ctx, strings.TrimPrefix(id, "tcp://"), opts.DialTimeout)
	case strings.HasPrefix(id, "ws://"), strings.HasPrefix(id, "wss://"):
		return dialWebSocket(ctx, id, opts.DialTimeout)
	default:
		return openDevice(id)
	}
}

func openDevice(path string) (Transport, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnect, path, err)
	}
	return f, nil
}
