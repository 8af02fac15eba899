// Package wire defines the JSON frames exchanged with the browser over
// the terminal WebSocket.
package wire

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	ncerr "labdash/internal/errors"
)

// Client actions.
const (
	ActionConnect    = "connect"
	ActionInput      = "input"
	ActionResize     = "resize"
	ActionDisconnect = "disconnect"
)

// Server event types.
const (
	TypeConnected    = "connected"
	TypeOutput       = "output"
	TypeError        = "error"
	TypeDisconnected = "disconnected"
)

// ClientMessage is one frame sent by the browser.  Which fields are
// meaningful depends on Action.
type ClientMessage struct {
	Action   string `json:"action"`
	Host     string `json:"host,omitempty"`
	Port     Port   `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Cols     int    `json:"cols,omitempty"`
	Rows     int    `json:"rows,omitempty"`
	Data     string `json:"data,omitempty"`
}

// ServerMessage is one frame sent to the browser.
type ServerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`
}

// Port accepts a JSON number or a numeric string; HTML form inputs
// tend to produce the latter.
type Port int

// UnmarshalJSON implements json.Unmarshaler.
func (p *Port) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return ncerr.InvalidRequest("port %s is not a number", string(b))
	}
	*p = Port(n)
	return nil
}

// Decode parses a client frame.  Malformed JSON, a missing action and
// an unknown action are all invalid requests.
func Decode(frame []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		if ncerr.KindOf(err) == ncerr.KindInvalidRequest {
			return nil, err
		}
		return nil, ncerr.InvalidRequest("malformed frame: %v", err)
	}

	switch msg.Action {
	case ActionConnect, ActionInput, ActionResize, ActionDisconnect:
		return &msg, nil
	case "":
		return nil, ncerr.InvalidRequest("missing action")
	default:
		return nil, ncerr.InvalidRequest("unknown action %q", msg.Action)
	}
}

// Encode renders a server frame.
func Encode(m ServerMessage) ([]byte, error) {
	return json.Marshal(m)
}

// ── Constructors ─────────────────────────────────────────────────────

// Connected reports that the session process is running.
func Connected(message string) ServerMessage {
	return ServerMessage{Type: TypeConnected, Message: message}
}

// Output carries decoded terminal output.
func Output(data string) ServerMessage {
	return ServerMessage{Type: TypeOutput, Data: data}
}

// Error reports a failure; the connection stays open.
func Error(message string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: message}
}

// Disconnected is the last event of a session.
func Disconnected(message string) ServerMessage {
	return ServerMessage{Type: TypeDisconnected, Message: message}
}
