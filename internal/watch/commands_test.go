package watch

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/wristlink/internal/protocol/tlv"
	"github.com/danmuck/wristlink/internal/store"
	"github.com/danmuck/wristlink/internal/testutil/testlog"
)

func TestCommandBinaryRoundTrip(t *testing.T) {
	testlog.Start(t)

	cmd := NewCommand(CommandSendBytes, []byte{0x01, 0x06, 0x56, 0x00, 0xaa, 0xbb})
	raw, err := cmd.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Command
	if err := got.UnmarshalBinary(raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != cmd.ID || got.Kind != cmd.Kind || !bytes.Equal(got.Payload, cmd.Payload) {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, cmd)
	}
	if got.SubmittedAt.UnixMilli() != cmd.SubmittedAt.UnixMilli() {
		t.Fatalf("timestamp mismatch")
	}
}

func TestCommandUnmarshalMissingID(t *testing.T) {
	testlog.Start(t)

	raw, err := tlv.EncodeFields([]tlv.Field{tlv.U8(fieldCommandKind, uint8(CommandSilentEnable))})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var cmd Command
	if err := cmd.UnmarshalBinary(raw); !errors.Is(err, tlv.ErrMissingField) {
		t.Fatalf("expected missing field, got %v", err)
	}
}

func TestCommandValidate(t *testing.T) {
	testlog.Start(t)

	if err := NewCommand(CommandSendBytes, nil).Validate(); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("send_bytes without payload must be invalid, got %v", err)
	}
	if err := (Command{ID: "x", Kind: 99}).Validate(); !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("unknown kind must be invalid, got %v", err)
	}
	if err := NewCommand(CommandSilentInvert, nil).Validate(); err != nil {
		t.Fatalf("silent invert: %v", err)
	}
}

func TestSubmitBeforeStartIsRejected(t *testing.T) {
	testlog.Start(t)

	m := NewManager(Options{Session: testSessionConfig(), Opener: newFakeOpener(0)})
	if err := m.Submit(NewCommand(CommandSilentEnable, nil)); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

func TestSubmittedCommandsAreJournalledAndReplayable(t *testing.T) {
	testlog.Start(t)

	db := openTestStore(t)
	prefs := store.NewPreferences(db)
	journal := store.NewCommandJournal(db)
	opener := newFakeOpener(0)
	m := NewManager(Options{
		DeviceID: "tcp://watch",
		Session:  testSessionConfig(),
		Opener:   opener,
		Prefs:    prefs,
		Journal:  journal,
	})
	startManager(t, m)
	conn := opener.next(t)
	waitFor(t, "device type request", func() bool { return conn.writeCount() == 1 })

	if err := m.Submit(NewCommand(CommandSilentEnable, nil)); err != nil {
		t.Fatalf("submit silent: %v", err)
	}
	waitFor(t, "silent enabled", m.Silent)
	if !prefs.Bool(store.KeySilentMode, false) {
		t.Fatalf("silent mode not persisted")
	}

	raw := []byte{0x01, 0x05, 0x58, 0x00, 0x00}
	if err := m.Submit(NewCommand(CommandSendBytes, raw)); err != nil {
		t.Fatalf("submit bytes: %v", err)
	}
	waitFor(t, "raw frame written", func() bool { return conn.writeCount() == 2 })

	entries, err := journal.Recent(10)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 journal entries, got %d", len(entries))
	}

	if _, err := m.Replay(entries[1].Seq); err != nil {
		t.Fatalf("replay: %v", err)
	}
	waitFor(t, "replayed frame written", func() bool { return conn.writeCount() == 3 })
	writes, _ := conn.snapshot()
	if !bytes.Equal(writes[1], raw) || !bytes.Equal(writes[2], raw) {
		t.Fatalf("unexpected raw writes: % x / % x", writes[1], writes[2])
	}

	if _, err := m.Replay(999); !errors.Is(err, ErrJournalNotFound) {
		t.Fatalf("expected ErrJournalNotFound, got %v", err)
	}
}

func TestSilentInvertFlipsState(t *testing.T) {
	testlog.Start(t)

	m := NewManager(Options{DeviceID: "tcp://watch", Session: testSessionConfig(), Opener: newFakeOpener(0)})
	startManager(t, m)

	if err := m.Submit(NewCommand(CommandSilentInvert, nil)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "silent on", m.Silent)
	if err := m.Submit(NewCommand(CommandSilentInvert, nil)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "silent off", func() bool { return !m.Silent() })
	if err := m.Submit(NewCommand(CommandSilentDisable, nil)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if m.Silent() {
		t.Fatalf("disable must leave silent off")
	}
}
