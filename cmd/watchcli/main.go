package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/wristlink/internal/logging"
	"github.com/danmuck/wristlink/internal/watch"
	"github.com/rs/zerolog/log"
)

var ErrUsage = errors.New("usage: watchcli [-addr host:port] status|silent on|off|toggle|send <hex>|sync-clock|sensors|journal [n]|replay <seq>")

type controlRequest struct {
	Action string `json:"action"`
	Token  string `json:"token,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Seq    int64  `json:"seq,omitempty"`
	Hex    string `json:"hex,omitempty"`
}

type controlResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	addr := flag.String("addr", "127.0.0.1:7420", "watchctl control endpoint")
	token := flag.String("token", os.Getenv("WRISTLINK_CONTROL_TOKEN"), "control token")
	flag.Parse()

	logging.ConfigureRuntime()

	admin := NewRemoteAdmin(*addr)
	admin.token = *token
	defer admin.Close()
	if err := run(admin, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "watchcli: %v\n", err)
		os.Exit(1)
	}
}

// buildRequest maps command-line words to one control action.
func buildRequest(args []string) (controlRequest, error) {
	if len(args) == 0 {
		return controlRequest{}, ErrUsage
	}
	switch strings.ToLower(args[0]) {
	case "status":
		return controlRequest{Action: "status"}, nil
	case "silent":
		if len(args) != 2 {
			return controlRequest{}, ErrUsage
		}
		switch strings.ToLower(args[1]) {
		case "on":
			return controlRequest{Action: "silent_enable"}, nil
		case "off":
			return controlRequest{Action: "silent_disable"}, nil
		case "toggle":
			return controlRequest{Action: "silent_invert"}, nil
		}
		return controlRequest{}, ErrUsage
	case "send":
		if len(args) != 2 {
			return controlRequest{}, ErrUsage
		}
		return controlRequest{Action: "send_bytes", Hex: args[1]}, nil
	case "sync-clock":
		return controlRequest{Action: "sync_clock"}, nil
	case "sensors":
		return controlRequest{Action: "read_sensors"}, nil
	case "journal":
		req := controlRequest{Action: "journal"}
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return controlRequest{}, ErrUsage
			}
			req.Limit = n
		}
		return req, nil
	case "replay":
		if len(args) != 2 {
			return controlRequest{}, ErrUsage
		}
		seq, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || seq <= 0 {
			return controlRequest{}, ErrUsage
		}
		return controlRequest{Action: "replay", Seq: seq}, nil
	}
	return controlRequest{}, ErrUsage
}

func run(admin *RemoteAdmin, args []string, out io.Writer) error {
	req, err := buildRequest(args)
	if err != nil {
		return err
	}
	if req.Action == "status" {
		status, err := admin.Status()
		if err != nil {
			return err
		}
		printStatus(out, status)
		return nil
	}
	var data json.RawMessage
	if err := admin.call(req, &data); err != nil {
		return err
	}
	if len(data) > 0 {
		fmt.Fprintln(out, string(data))
	} else {
		fmt.Fprintln(out, "ok")
	}
	return nil
}

func printStatus(out io.Writer, s watch.StatusView) {
	fmt.Fprintf(out, "indicator: %s\n", s.Indicator)
	fmt.Fprintf(out, "state:     %s\n", s.State)
	fmt.Fprintf(out, "watch:     %s\n", s.Identity)
	fmt.Fprintf(out, "queue:     %d\n", s.QueueDepth)
	fmt.Fprintf(out, "modes:     %s\n", strings.Join(s.Modes, " > "))
	fmt.Fprintf(out, "silent:    %t\n", s.Silent)
}

// RemoteAdmin holds one persistent connection to a watchctl control endpoint.
type RemoteAdmin struct {
	addr  string
	token string
	conn  net.Conn
	r     *bufio.Reader
}

func NewRemoteAdmin(addr string) *RemoteAdmin {
	return &RemoteAdmin{addr: strings.TrimSpace(addr)}
}

func (c *RemoteAdmin) Status() (watch.StatusView, error) {
	var status watch.StatusView
	if err := c.call(controlRequest{Action: "status"}, &status); err != nil {
		return watch.StatusView{}, err
	}
	return status, nil
}

// call sends one request and decodes the response payload into out.
func (c *RemoteAdmin) call(req controlRequest, out any) error {
	if err := c.ensureConn(); err != nil {
		return err
	}
	req.Token = c.token
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	payload = append(payload, '\n')
	if _, err := c.conn.Write(payload); err != nil {
		c.resetConn()
		return err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.resetConn()
		return err
	}
	var resp controlResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return errors.New(resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *RemoteAdmin) ensureConn() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, 3*time.Second)
	if err != nil {
		return err
	}
	log.Debug().Str("addr", c.addr).Msg("watchcli connected")
	c.conn = conn
	c.r = bufio.NewReader(conn)
	return nil
}

func (c *RemoteAdmin) resetConn() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.r = nil
}

func (c *RemoteAdmin) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}
