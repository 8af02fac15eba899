package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultListenAddr is where the dashboard backend listens.
	DefaultListenAddr = ":8000"

	// DefaultWSPath is the WebSocket endpoint the frontend dials.
	DefaultWSPath = "/ws/ssh"

	// DefaultSSHBinary is the remote-login client spawned per session.
	DefaultSSHBinary = "ssh"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKnownHostsPath keeps trust-on-first-use keys out of the
	// service account's own known_hosts.
	DefaultKnownHostsPath = "/dev/null"

	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultTerm is exported as TERM to the session process.
	DefaultTerm = "xterm-256color"

	// DefaultCols and DefaultRows size the terminal until the browser
	// reports its own geometry.
	DefaultCols = 120
	DefaultRows = 30

	// DefaultPollInterval is the readiness-check timeout of the I/O
	// pump; it bounds how long teardown waits for the pump to notice.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultReadChunkSize is the maximum number of bytes read from the
	// PTY master per iteration.
	DefaultReadChunkSize = 4096

	// MinReadChunkSize is the smallest accepted chunk size.
	MinReadChunkSize = 1024

	// DefaultTerminateGrace is how long teardown waits after SIGTERM
	// before sending SIGKILL to the process group.
	DefaultTerminateGrace = 3 * time.Second

	// DefaultBreakerThreshold is how many consecutive preflight
	// failures open the per-host circuit breaker.
	DefaultBreakerThreshold = 5

	// DefaultBreakerReset is how long an open breaker rejects connects.
	DefaultBreakerReset = 30 * time.Second
)
