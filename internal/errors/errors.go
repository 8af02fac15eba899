// Package errors provides domain-specific error types for labdash.
//
// These types carry structured context (failure kind, operation,
// address, retryability) that lets the terminal bridge decide how to
// report a failure to the browser and provides better diagnostics
// than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected    = errors.New("not connected")
	ErrSessionClosed   = errors.New("session is closed")
	ErrSessionActive   = errors.New("a session is already active on this connection")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTimeout         = errors.New("operation timed out")
	ErrHostKeyMismatch = errors.New("host key mismatch")

	// ErrProcessExited marks the normal end of a session: the remote
	// login process terminated on its own.  It is not a failure.
	ErrProcessExited = errors.New("session process exited")
)

// ── Session failure taxonomy ─────────────────────────────────────────

// Kind classifies a session failure by how it is recovered.
type Kind int

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown Kind = iota
	// KindInvalidRequest: a required field is missing or malformed.
	// Reported to the client; no state change.
	KindInvalidRequest
	// KindResourceExhausted: the OS could not allocate a pseudo-terminal.
	KindResourceExhausted
	// KindLaunchFailed: the remote-login process could not be started
	// or its target is unreachable.
	KindLaunchFailed
	// KindTransientIO: a read hiccup that is retried with backoff and
	// never surfaced individually.
	KindTransientIO
	// KindWriteFailed: writing client input to the terminal failed.
	// Reported per occurrence; closes the session only when the
	// terminal is already gone.
	KindWriteFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid request"
	case KindResourceExhausted:
		return "resource exhausted"
	case KindLaunchFailed:
		return "launch failed"
	case KindTransientIO:
		return "transient i/o"
	case KindWriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}

// SessionError is a failure inside the terminal bridge.
type SessionError struct {
	Kind Kind
	Op   string // "connect", "pty", "launch", "read", "write", "resize"
	Err  error
}

func (e *SessionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "listen", "accept", "write", "read"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "hostkey", "knownhosts"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// InvalidRequest reports a malformed or incomplete client request.
func InvalidRequest(format string, args ...interface{}) *SessionError {
	return &SessionError{Kind: KindInvalidRequest, Op: "request", Err: fmt.Errorf(format, args...)}
}

// ResourceExhausted wraps a pseudo-terminal allocation failure.
func ResourceExhausted(err error) *SessionError {
	return &SessionError{Kind: KindResourceExhausted, Op: "pty", Err: err}
}

// LaunchFailed wraps a failure to start or reach the session process.
func LaunchFailed(op string, err error) *SessionError {
	return &SessionError{Kind: KindLaunchFailed, Op: op, Err: err}
}

// TransientIO wraps a recoverable read error.
func TransientIO(err error) *SessionError {
	return &SessionError{Kind: KindTransientIO, Op: "read", Err: err}
}

// WriteFailed wraps a failed write of client input.
func WriteFailed(err error) *SessionError {
	return &SessionError{Kind: KindWriteFailed, Op: "write", Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsSetupFailure reports whether err aborted session creation.
func IsSetupFailure(err error) bool {
	switch KindOf(err) {
	case KindResourceExhausted, KindLaunchFailed:
		return true
	}
	return false
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	if KindOf(err) == KindTransientIO {
		return true
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use labdash/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
