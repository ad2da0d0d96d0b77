package watch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/observability"
)

// senderLoop writes at most one queued frame per PacketWait tick and waits
// on the gate before every tick.
func (m *Manager) senderLoop(ctx context.Context) {
	defer m.wg.Done()
	timer := time.NewTimer(m.cfg.PacketWait)
	defer timer.Stop()
	for {
		if err := m.gate.Wait(ctx); err != nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.cfg.PacketWait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		m.sendOne()
	}
}

// sendOne writes the head of the queue. The head is removed after the
// write whether it succeeded or not; a failed write resets the connection.
func (m *Manager) sendOne() {
	msg, ok := m.queue.Peek()
	if !ok {
		return
	}
	m.connMu.Lock()
	conn := m.conn
	m.connMu.Unlock()
	if conn == nil {
		return
	}

	_, err := conn.Write(msg)
	m.queue.Remove()
	if err != nil {
		observability.RecordSendFailure()
		log.Warn().Err(err).Int("len", len(msg)).Msg("watch.Manager.sendOne write failed")
		m.resetConnection(conn)
		return
	}
	observability.RecordFrameSent(m.queue.Len())
	log.Trace().Hex("frame", msg).Msg("watch.Manager.sendOne")
}
