// Package config defines the runtime configuration for labdash and
// provides helpers for parsing session targets.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "labdash/internal/errors"
)

// Config holds every tuneable for a labdash process.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	ListenAddr     string   // HTTP listen address, e.g. ":8000"
	WSPath         string   // WebSocket endpoint for terminal sessions
	AllowedOrigins []string // extra Origin hosts accepted on upgrade

	// ── Session process ──────────────────────────────────────────────
	SSHBinary      string        // remote-login client, looked up in PATH
	SSHOptions     []string      // extra "-o" options appended to the fixed set
	KnownHostsPath string        // UserKnownHostsFile handed to ssh
	ConnectTimeout time.Duration // ssh ConnectTimeout and preflight dial timeout
	Term           string        // TERM exported to the session process
	DefaultCols    int
	DefaultRows    int

	// ── Bridge ───────────────────────────────────────────────────────
	PollInterval   time.Duration // readiness-check timeout of the I/O pump
	ReadChunkSize  int           // max bytes per PTY read
	TerminateGrace time.Duration // SIGTERM → SIGKILL escalation window

	// ── Preflight ────────────────────────────────────────────────────
	Preflight        bool // dial host:port before spawning ssh
	HostKeyScan      bool // fetch the host key fingerprint during preflight
	BreakerThreshold int  // consecutive failures before a host is short-circuited
	BreakerReset     time.Duration

	// ── Attach client ────────────────────────────────────────────────
	Attach         bool
	AttachURL      string // ws://host:port/ws/ssh
	TargetSpec     string // raw [user@]host[:port]
	TargetUser     string
	TargetHost     string
	TargetPort     int
	TargetPassword bool // prompt locally and send with the connect request

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	DryRun  bool
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		ListenAddr:       DefaultListenAddr,
		WSPath:           DefaultWSPath,
		SSHBinary:        DefaultSSHBinary,
		KnownHostsPath:   DefaultKnownHostsPath,
		ConnectTimeout:   DefaultConnectTimeout,
		Term:             DefaultTerm,
		DefaultCols:      DefaultCols,
		DefaultRows:      DefaultRows,
		PollInterval:     DefaultPollInterval,
		ReadChunkSize:    DefaultReadChunkSize,
		TerminateGrace:   DefaultTerminateGrace,
		Preflight:        true,
		HostKeyScan:      true,
		BreakerThreshold: DefaultBreakerThreshold,
		BreakerReset:     DefaultBreakerReset,
		Verbose:          1,
	}
}

// ── Target-spec parser ───────────────────────────────────────────────

// targetRe matches [user@]host[:port].
var targetRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTarget extracts user, host, and port from a string such as
// "pi@nas.lan:2222".  Port defaults to 22.
func ParseTarget(spec string) (user, host string, port int, err error) {
	m := targetRe.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid target %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid target port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("target host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Attach {
		if c.AttachURL == "" {
			return &ncerr.ConfigError{
				Field:   "url",
				Message: "required in attach mode",
				Hint:    "e.g. --url ws://dashboard.lan:8000/ws/ssh",
			}
		}
		if !strings.HasPrefix(c.AttachURL, "ws://") && !strings.HasPrefix(c.AttachURL, "wss://") {
			return &ncerr.ConfigError{
				Field:   "url",
				Value:   c.AttachURL,
				Message: "must be a ws:// or wss:// URL",
			}
		}
		if c.TargetHost == "" {
			return &ncerr.ConfigError{
				Field:   "target",
				Message: "a [user@]host[:port] argument is required in attach mode",
			}
		}
		return nil
	}

	if c.ListenAddr == "" {
		return &ncerr.ConfigError{Field: "listen", Message: "listen address is required"}
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return &ncerr.ConfigError{
			Field:   "ws-path",
			Value:   c.WSPath,
			Message: "must start with /",
		}
	}
	if c.SSHBinary == "" {
		return &ncerr.ConfigError{Field: "ssh-binary", Message: "remote-login binary is required"}
	}
	if c.ConnectTimeout <= 0 {
		return &ncerr.ConfigError{
			Field:   "connect-timeout",
			Value:   c.ConnectTimeout,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %s", DefaultConnectTimeout),
		}
	}
	if c.TerminateGrace <= 0 {
		return &ncerr.ConfigError{
			Field:   "terminate-grace",
			Value:   c.TerminateGrace,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %s", DefaultTerminateGrace),
		}
	}
	if c.PollInterval <= 0 || c.PollInterval > time.Second {
		return &ncerr.ConfigError{
			Field:   "poll-interval",
			Value:   c.PollInterval,
			Message: "must be between 1ms and 1s",
			Hint:    "teardown latency is bounded by this interval",
		}
	}
	if c.ReadChunkSize < MinReadChunkSize {
		return &ncerr.ConfigError{
			Field:   "read-chunk",
			Value:   c.ReadChunkSize,
			Message: fmt.Sprintf("must be at least %d bytes", MinReadChunkSize),
		}
	}
	if c.DefaultCols <= 0 || c.DefaultRows <= 0 || c.DefaultCols > 0xFFFF || c.DefaultRows > 0xFFFF {
		return &ncerr.ConfigError{
			Field:   "size",
			Value:   fmt.Sprintf("%dx%d", c.DefaultCols, c.DefaultRows),
			Message: "terminal size out of range",
			Hint:    "use COLSxROWS, e.g. 120x30",
		}
	}
	if c.HostKeyScan && !c.Preflight {
		return &ncerr.ConfigError{
			Field:   "hostkey-scan",
			Message: "requires the preflight probe",
			Hint:    "drop --no-preflight or add --no-hostkey-scan",
		}
	}
	return nil
}
