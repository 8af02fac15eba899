package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"

	"labdash/internal/wire"
	"labdash/util"
)

// AttachMode connects the local terminal to a remote labdash bridge:
// the same protocol a browser speaks, driven from a shell.
type AttachMode struct {
	URL         string
	Host        string
	Port        int
	User        string
	AskPassword bool

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.  Raw mode
	// and window-size tracking only apply when Stdin is a terminal.
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger

	wmu sync.Mutex
	ws  *websocket.Conn
}

func (m *AttachMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *AttachMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// terminalFd returns the descriptor of Stdin if it is a terminal.
func (m *AttachMode) terminalFd() (int, bool) {
	f, ok := m.stdin().(*os.File)
	if !ok {
		return -1, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// Run opens the session and relays until the remote side disconnects
// or ctx is cancelled.
func (m *AttachMode) Run(ctx context.Context) error {
	req := wire.ClientMessage{
		Action:   wire.ActionConnect,
		Host:     m.Host,
		Port:     wire.Port(m.Port),
		Username: m.User,
	}

	fd, isTerm := m.terminalFd()
	if m.AskPassword {
		if !isTerm {
			return fmt.Errorf("attach: --password needs an interactive terminal")
		}
		fmt.Fprintf(os.Stderr, "Password for %s: ", m.Host)
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		req.Password = string(pw)
	}
	if isTerm {
		if cols, rows, err := term.GetSize(fd); err == nil {
			req.Cols, req.Rows = cols, rows
		}
	}

	m.Logger.Verbose("dialing %s", m.URL)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, m.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.URL, err)
	}
	defer ws.Close()
	m.ws = ws

	if err := m.send(req); err != nil {
		return err
	}

	if isTerm {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw mode: %w", err)
		}
		defer term.Restore(fd, state) //nolint:errcheck
		go m.watchResize(ctx, fd)
	}

	result := make(chan error, 1)
	go func() { result <- m.receive() }()
	go m.forwardInput()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		m.send(wire.ClientMessage{Action: wire.ActionDisconnect}) //nolint:errcheck
		select {
		case err := <-result:
			return err
		case <-time.After(5 * time.Second):
			return ctx.Err()
		}
	}
}

// receive prints server events until the session ends.
func (m *AttachMode) receive() error {
	connected := false
	out := m.stdout()
	for {
		var msg wire.ServerMessage
		if err := m.ws.ReadJSON(&msg); err != nil {
			if connected {
				return fmt.Errorf("connection lost: %w", err)
			}
			return fmt.Errorf("read: %w", err)
		}

		switch msg.Type {
		case wire.TypeConnected:
			connected = true
			m.Logger.Info("%s", msg.Message)
		case wire.TypeOutput:
			io.WriteString(out, msg.Data) //nolint:errcheck
		case wire.TypeError:
			if !connected {
				return fmt.Errorf("%s", msg.Message)
			}
			m.Logger.Warn("%s", msg.Message)
		case wire.TypeDisconnected:
			m.Logger.Info("%s", msg.Message)
			return nil
		}
	}
}

// forwardInput sends local keystrokes as input frames.  At end of
// input it stops sending and leaves the session to end on its own.
func (m *AttachMode) forwardInput() {
	buf := make([]byte, 4096)
	in := m.stdin()
	for {
		n, err := in.Read(buf)
		if n > 0 {
			if m.send(wire.ClientMessage{Action: wire.ActionInput, Data: string(buf[:n])}) != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (m *AttachMode) watchResize(ctx context.Context, fd int) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-winch:
			cols, rows, err := term.GetSize(fd)
			if err != nil {
				continue
			}
			m.send(wire.ClientMessage{Action: wire.ActionResize, Cols: cols, Rows: rows}) //nolint:errcheck
		}
	}
}

// send serialises writes; the socket allows one writer at a time.
func (m *AttachMode) send(msg wire.ClientMessage) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()
	m.ws.SetWriteDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck
	return m.ws.WriteJSON(msg)
}
