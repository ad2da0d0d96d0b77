package session

import "sync"

// OutboundQueue is an unbounded FIFO of raw outbound frames. Producers never
// block; one sender at a time peeks, writes and removes.
type OutboundQueue struct {
	mu    sync.Mutex
	items [][]byte
}

func NewOutboundQueue() *OutboundQueue {
	return &OutboundQueue{}
}

// Enqueue appends a copy of msg. Empty messages are ignored.
func (q *OutboundQueue) Enqueue(msg []byte) {
	if len(msg) == 0 {
		return
	}
	item := append([]byte(nil), msg...)
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// Peek returns the head without removing it.
func (q *OutboundQueue) Peek() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Remove drops the head. It is a no-op on an empty queue.
func (q *OutboundQueue) Remove() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
}

func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued frame and returns how many were dropped.
func (q *OutboundQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Snapshot copies the queued frames in order.
func (q *OutboundQueue) Snapshot() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.items))
	for i, item := range q.items {
		out[i] = append([]byte(nil), item...)
	}
	return out
}
