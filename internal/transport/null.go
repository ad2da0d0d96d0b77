package transport

import (
	"sync"
	"sync/atomic"
	"time"
)

// Null is the simulated transport: reads idle for a fixed delay per cycle
// and never yield bytes, writes are counted and discarded.
type Null struct {
	delay     time.Duration
	done      chan struct{}
	closeOnce sync.Once
	written   atomic.Int64
}

func NewNull(delay time.Duration) *Null {
	return &Null{delay: delay, done: make(chan struct{})}
}

func (n *Null) Read(p []byte) (int, error) {
	timer := time.NewTimer(n.delay)
	defer timer.Stop()
	select {
	case <-n.done:
		return 0, ErrClosed
	case <-timer.C:
		return 0, nil
	}
}

func (n *Null) Write(p []byte) (int, error) {
	select {
	case <-n.done:
		return 0, ErrClosed
	default:
	}
	n.written.Add(int64(len(p)))
	return len(p), nil
}

func (n *Null) Close() error {
	n.closeOnce.Do(func() { close(n.done) })
	return nil
}

// Written returns the number of bytes discarded so far.
func (n *Null) Written() int64 {
	return n.written.Load()
}
