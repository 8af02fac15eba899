package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	ncerr "labdash/internal/errors"
	"labdash/internal/launcher"
	"labdash/internal/pty"
	"labdash/internal/session"
	"labdash/internal/wire"
	"labdash/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 1 << 20
)

// conn serves one WebSocket.  Its serve goroutine is the event loop:
// the only writer to the socket and the only caller of session
// methods.
type conn struct {
	srv    *Server
	ws     *websocket.Conn
	id     string
	outbox *Outbox
	sess   *session.Session
	logger *util.Logger
	cancel context.CancelFunc
}

// inbound is one decoded client frame or the reason it was rejected.
type inbound struct {
	msg *wire.ClientMessage
	err error
}

func newConn(srv *Server, ws *websocket.Conn, remote string) *conn {
	id := uuid.NewString()
	return &conn{
		srv:    srv,
		ws:     ws,
		id:     id,
		outbox: NewOutbox(),
		logger: srv.logger.With(fmt.Sprintf("conn %s (%s):", id[:8], remote)),
	}
}

func (c *conn) serve(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	defer c.cancel()

	c.srv.metrics.ConnectionOpened()
	c.logger.Verbose("opened")

	defer c.finish()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic: %v\n%s", r, debug.Stack())
			c.srv.metrics.RecordError(fmt.Sprintf("panic: %v", r))
		}
	}()

	in := make(chan inbound)
	go c.readLoop(ctx, in)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case m, ok := <-in:
			if !ok {
				return
			}
			c.handle(ctx, m)
			c.outbox.Drain()
		case <-c.outbox.Wake():
			c.outbox.Drain()
		case <-ping.C:
			deadline := time.Now().Add(writeWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Verbose("ping: %v", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// finish tears the session down, flushes what it posted on the way out
// and closes the socket.
func (c *conn) finish() {
	c.cancel()
	if c.sess != nil {
		c.sess.Close("client disconnected")
		c.srv.registry.Remove(c.sess)
	}
	c.outbox.Close()
	c.outbox.Drain()

	c.ws.Close()
	c.srv.metrics.ConnectionClosed()
	c.logger.Verbose("closed")
}

// readLoop decodes client frames and hands them to the event loop.
// It closes in when the socket fails.
func (c *conn) readLoop(ctx context.Context, in chan<- inbound) {
	defer close(in)
	defer c.cancel()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Verbose("read: %v", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck

		msg, err := wire.Decode(frame)
		select {
		case in <- inbound{msg: msg, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// ── Event loop handlers ──────────────────────────────────────────────

func (c *conn) handle(ctx context.Context, m inbound) {
	if m.err != nil {
		c.fail(m.err)
		return
	}

	switch m.msg.Action {
	case wire.ActionConnect:
		c.connect(ctx, m.msg)
	case wire.ActionInput:
		if c.sess != nil {
			if err := c.sess.Input(m.msg.Data); err != nil {
				c.fail(err)
			}
		}
	case wire.ActionResize:
		if c.sess != nil {
			if err := c.sess.Resize(m.msg.Cols, m.msg.Rows); err != nil {
				c.fail(err)
			}
		}
	case wire.ActionDisconnect:
		if c.sess != nil {
			c.sess.Close("client requested disconnect")
		}
	}
}

func (c *conn) connect(ctx context.Context, m *wire.ClientMessage) {
	if c.sess != nil && c.sess.State() == session.StateClosed {
		c.srv.registry.Remove(c.sess)
		c.sess = nil
	}
	if c.sess == nil {
		c.sess = session.New(c.id, c.srv.opts, c.outbox, c.send)
		c.srv.registry.Add(c.sess)
	}

	req, err := connectRequest(m)
	if err != nil {
		c.fail(err)
		return
	}

	msg, err := c.sess.Connect(ctx, req)
	if err != nil {
		c.fail(err)
		return
	}
	c.send(wire.Connected(msg))
}

func connectRequest(m *wire.ClientMessage) (session.ConnectRequest, error) {
	port := int(m.Port)
	if port < 0 || port > 65535 {
		return session.ConnectRequest{}, ncerr.InvalidRequest("port %d out of range", port)
	}
	var size pty.Size
	if m.Cols > 0 && m.Rows > 0 && m.Cols <= 0xFFFF && m.Rows <= 0xFFFF {
		size = pty.Size{Cols: uint16(m.Cols), Rows: uint16(m.Rows)}
	}
	return session.ConnectRequest{
		Target: launcher.Target{
			Host: strings.TrimSpace(m.Host),
			Port: port,
			User: strings.TrimSpace(m.Username),
		},
		Password: m.Password,
		Size:     size,
	}, nil
}

// fail reports err to the browser as an error event.
func (c *conn) fail(err error) {
	c.srv.metrics.RecordError(err.Error())
	c.send(wire.Error(describe(err)))
}

// send writes one frame.  A write failure ends the connection.
func (c *conn) send(msg wire.ServerMessage) {
	b, err := wire.Encode(msg)
	if err != nil {
		c.logger.Error("encode %s: %v", msg.Type, err)
		return
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Verbose("write %s: %v", msg.Type, err)
		c.cancel()
	}
}

// describe turns an error into the message shown in the terminal.
func describe(err error) string {
	var se *ncerr.SessionError
	if !ncerr.As(err, &se) {
		return err.Error()
	}
	switch se.Kind {
	case ncerr.KindInvalidRequest:
		return se.Err.Error()
	case ncerr.KindLaunchFailed:
		return "Connection failed: " + se.Err.Error()
	case ncerr.KindResourceExhausted:
		return "Could not allocate a terminal: " + se.Err.Error()
	case ncerr.KindWriteFailed:
		return "Failed to send input: " + se.Err.Error()
	default:
		return err.Error()
	}
}
