package watch

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/wristlink/internal/auth"
)

// controlRequest is one action envelope read from a control client.
type controlRequest struct {
	Action string `json:"action"`
	Token  string `json:"token,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Seq    int64  `json:"seq,omitempty"`
	// Hex carries the raw frame for send_bytes.
	Hex string `json:"hex,omitempty"`
}

// controlResponse is one result envelope written back per request.
type controlResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// StatusView is the control-surface snapshot of the link.
type StatusView struct {
	Indicator  Indicator `json:"indicator"`
	State      string    `json:"state"`
	Identity   Identity  `json:"identity"`
	Session    string    `json:"session,omitempty"`
	QueueDepth int       `json:"queue_depth"`
	Modes      []string  `json:"modes"`
	Silent     bool      `json:"silent"`
}

type journalView struct {
	Seq         int64  `json:"seq"`
	CommandID   string `json:"command_id"`
	Kind        string `json:"kind"`
	SubmittedAt string `json:"submitted_at"`
}

func (m *Manager) Status() StatusView {
	modes := m.modes.Snapshot()
	names := make([]string, len(modes))
	for i, mode := range modes {
		names[i] = mode.String()
	}
	return StatusView{
		Indicator:  m.Indicator(),
		State:      m.State().String(),
		Identity:   m.Identity(),
		Session:    m.SessionID(),
		QueueDepth: m.QueueDepth(),
		Modes:      names,
		Silent:     m.Silent(),
	}
}

// serveControl exposes a TCP JSON-lines endpoint for host commands.
func (s *Service) serveControl(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return err
	}
	return s.serveControlListener(ctx, ln)
}

func (s *Service) serveControlListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	log.Info().Str("addr", ln.Addr().String()).Msg("watch.control listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleControlConn(conn)
	}
}

// handleControlConn decodes one request per line and writes one response
// per line.
func (s *Service) handleControlConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()
	active := s.controlClients.Add(1)
	log.Info().Str("remote", remote).Int64("active_clients", active).Msg("watch.control client connected")
	defer func() {
		remaining := s.controlClients.Add(-1)
		log.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("watch.control client disconnected")
	}()

	reader := bufio.NewReader(conn)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Msg("watch.control read")
			}
			return
		}
		var req controlRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = writeControlResponse(conn, controlResponse{OK: false, Error: err.Error()})
			continue
		}
		resp := controlResponse{OK: false, Error: auth.ErrUnauthorized.Error()}
		if err := s.guard.Validate(req.Token); err == nil {
			resp = s.handleControlRequest(req)
		} else {
			log.Warn().Str("remote", remote).Str("action", req.Action).Msg("watch.control unauthorized")
		}
		if err := writeControlResponse(conn, resp); err != nil {
			log.Warn().Err(err).Msg("watch.control write")
			return
		}
	}
}

// handleControlRequest maps actions onto Manager calls. Host commands go
// through Submit so they are journalled and replayable.
func (s *Service) handleControlRequest(req controlRequest) controlResponse {
	m := s.manager
	switch req.Action {
	case "status":
		return controlResponse{OK: true, Data: m.Status()}
	case "silent_enable":
		return submitResponse(m, NewCommand(CommandSilentEnable, nil))
	case "silent_disable":
		return submitResponse(m, NewCommand(CommandSilentDisable, nil))
	case "silent_invert":
		return submitResponse(m, NewCommand(CommandSilentInvert, nil))
	case "send_bytes":
		raw, err := hex.DecodeString(strings.TrimSpace(req.Hex))
		if err != nil {
			return controlResponse{OK: false, Error: fmt.Sprintf("decode hex: %v", err)}
		}
		return submitResponse(m, NewCommand(CommandSendBytes, raw))
	case "sync_clock":
		m.RequestClock()
		return controlResponse{OK: true}
	case "read_sensors":
		m.RequestSensors()
		return controlResponse{OK: true}
	case "journal":
		if s.journal == nil {
			return controlResponse{OK: false, Error: ErrJournalDisabled.Error()}
		}
		entries, err := s.journal.Recent(req.Limit)
		if err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		out := make([]journalView, 0, len(entries))
		for _, e := range entries {
			v := journalView{Seq: e.Seq, CommandID: e.CommandID, SubmittedAt: e.SubmittedAt.UTC().Format(time.RFC3339)}
			var cmd Command
			if err := cmd.UnmarshalBinary(e.Encoded); err == nil {
				v.Kind = cmd.Kind.String()
			}
			out = append(out, v)
		}
		return controlResponse{OK: true, Data: out}
	case "replay":
		cmd, err := m.Replay(req.Seq)
		if err != nil {
			return controlResponse{OK: false, Error: err.Error()}
		}
		return controlResponse{OK: true, Data: map[string]any{"command_id": cmd.ID, "kind": cmd.Kind.String()}}
	default:
		return controlResponse{OK: false, Error: fmt.Sprintf("unknown action: %q", req.Action)}
	}
}

func submitResponse(m *Manager, cmd Command) controlResponse {
	if err := m.Submit(cmd); err != nil {
		return controlResponse{OK: false, Error: err.Error()}
	}
	return controlResponse{OK: true, Data: map[string]any{"command_id": cmd.ID, "kind": cmd.Kind.String()}}
}

func writeControlResponse(w io.Writer, resp controlResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = w.Write(raw)
	return err
}
