package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/protocol/tlv"
)

var (
	ErrInvalidCommand   = errors.New("watch: invalid command")
	ErrCommandQueueFull = errors.New("watch: command queue full")
	ErrNotRunning       = errors.New("watch: manager not running")
	ErrJournalDisabled  = errors.New("watch: command journal not configured")
	ErrJournalNotFound  = errors.New("watch: journal entry not found")
)

// CommandKind is one host-side request.
type CommandKind uint8

const (
	CommandSilentEnable CommandKind = iota + 1
	CommandSilentDisable
	CommandSilentInvert
	CommandSendBytes
)

func (k CommandKind) String() string {
	switch k {
	case CommandSilentEnable:
		return "silent_enable"
	case CommandSilentDisable:
		return "silent_disable"
	case CommandSilentInvert:
		return "silent_invert"
	case CommandSendBytes:
		return "send_bytes"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// Command is a serializable host request. Payload is only used by
// CommandSendBytes.
type Command struct {
	ID          string
	Kind        CommandKind
	Payload     []byte
	SubmittedAt time.Time
}

const (
	fieldCommandID   uint8 = 1
	fieldCommandKind uint8 = 2
	fieldPayload     uint8 = 3
	fieldSubmittedAt uint8 = 4
)

func NewCommand(kind CommandKind, payload []byte) Command {
	return Command{
		ID:          uuid.NewString(),
		Kind:        kind,
		Payload:     append([]byte(nil), payload...),
		SubmittedAt: time.Now(),
	}
}

func (c Command) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidCommand)
	}
	switch c.Kind {
	case CommandSilentEnable, CommandSilentDisable, CommandSilentInvert:
		return nil
	case CommandSendBytes:
		if len(c.Payload) == 0 {
			return fmt.Errorf("%w: send_bytes without payload", ErrInvalidCommand)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidCommand, c.Kind)
	}
}

func (c Command) MarshalBinary() ([]byte, error) {
	return tlv.EncodeFields([]tlv.Field{
		tlv.String(fieldCommandID, c.ID),
		tlv.U8(fieldCommandKind, uint8(c.Kind)),
		tlv.Bytes(fieldPayload, c.Payload),
		tlv.I64(fieldSubmittedAt, c.SubmittedAt.UnixMilli()),
	})
}

func (c *Command) UnmarshalBinary(data []byte) error {
	fields, err := tlv.DecodeFields(data)
	if err != nil {
		return err
	}
	id, ok := tlv.GetField(fields, fieldCommandID)
	if !ok {
		return fmt.Errorf("%w: id", tlv.ErrMissingField)
	}
	if err := tlv.MustType(id, tlv.TypeString); err != nil {
		return err
	}
	kind, err := tlv.U8Value(fields, fieldCommandKind)
	if err != nil {
		return err
	}
	at, err := tlv.I64Value(fields, fieldSubmittedAt)
	if err != nil {
		return err
	}
	out := Command{
		ID:          string(id.Value),
		Kind:        CommandKind(kind),
		SubmittedAt: time.UnixMilli(at),
	}
	if p, ok := tlv.GetField(fields, fieldPayload); ok {
		if err := tlv.MustType(p, tlv.TypeBytes); err != nil {
			return err
		}
		out.Payload = append([]byte(nil), p.Value...)
	}
	*c = out
	return nil
}

// Submit hands cmd to the command loop without blocking.
func (m *Manager) Submit(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if !m.started.Load() {
		return ErrNotRunning
	}
	if st := m.State(); st == StateDisconnecting || st == StateDisconnected {
		return fmt.Errorf("%w: %w", ErrNotRunning, ErrTeardown)
	}
	select {
	case m.commands <- cmd:
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// Replay re-submits the journalled command with sequence seq.
func (m *Manager) Replay(seq int64) (Command, error) {
	if m.journal == nil {
		return Command{}, ErrJournalDisabled
	}
	entry, ok, err := m.journal.Get(seq)
	if err != nil {
		return Command{}, err
	}
	if !ok {
		return Command{}, fmt.Errorf("%w: seq=%d", ErrJournalNotFound, seq)
	}
	var cmd Command
	if err := cmd.UnmarshalBinary(entry.Encoded); err != nil {
		return Command{}, err
	}
	if err := m.Submit(cmd); err != nil {
		return Command{}, err
	}
	log.Info().Int64("seq", seq).Str("command_id", cmd.ID).Msg("watch.Manager.Replay")
	return cmd, nil
}

func (m *Manager) commandLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.commands:
			m.record(cmd)
			m.apply(cmd)
		}
	}
}

func (m *Manager) record(cmd Command) {
	if m.journal == nil {
		return
	}
	encoded, err := cmd.MarshalBinary()
	if err != nil {
		log.Warn().Err(err).Str("command_id", cmd.ID).Msg("watch.Manager.record encode failed")
		return
	}
	if _, err := m.journal.Append(cmd.ID, encoded, m.now()); err != nil {
		log.Warn().Err(err).Str("command_id", cmd.ID).Msg("watch.Manager.record append failed")
	}
}

func (m *Manager) apply(cmd Command) {
	log.Debug().Str("command_id", cmd.ID).Str("kind", cmd.Kind.String()).Msg("watch.Manager.apply")
	switch cmd.Kind {
	case CommandSilentEnable:
		m.SetSilentMode(true)
	case CommandSilentDisable:
		m.SetSilentMode(false)
	case CommandSilentInvert:
		m.SetSilentMode(!m.Silent())
	case CommandSendBytes:
		m.Enqueue(cmd.Payload)
	}
}
