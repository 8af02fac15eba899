package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the LABDASH_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive); "0", "false", "no"
// switch a default-on feature off.  Durations accept Go syntax
// ("250ms", "3s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LABDASH_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LABDASH_WS_PATH"); v != "" {
		cfg.WSPath = v
	}
	if v := os.Getenv("LABDASH_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	// Session process
	if v := os.Getenv("LABDASH_SSH_BINARY"); v != "" {
		cfg.SSHBinary = v
	}
	if v := os.Getenv("LABDASH_SSH_OPTIONS"); v != "" {
		cfg.SSHOptions = splitList(v)
	}
	if v := os.Getenv("LABDASH_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envDuration("LABDASH_CONNECT_TIMEOUT"); v > 0 {
		cfg.ConnectTimeout = v
	}
	if v := os.Getenv("LABDASH_TERM"); v != "" {
		cfg.Term = v
	}

	// Bridge
	if v := envDuration("LABDASH_POLL_INTERVAL"); v > 0 {
		cfg.PollInterval = v
	}
	if v := envInt("LABDASH_READ_CHUNK"); v > 0 {
		cfg.ReadChunkSize = v
	}
	if v := envDuration("LABDASH_TERMINATE_GRACE"); v > 0 {
		cfg.TerminateGrace = v
	}

	// Preflight
	if b, ok := envBool("LABDASH_PREFLIGHT"); ok {
		cfg.Preflight = b
	}
	if b, ok := envBool("LABDASH_HOSTKEY_SCAN"); ok {
		cfg.HostKeyScan = b
	}
	if v := envInt("LABDASH_BREAKER_THRESHOLD"); v > 0 {
		cfg.BreakerThreshold = v
	}
	if v := envDuration("LABDASH_BREAKER_RESET"); v > 0 {
		cfg.BreakerReset = v
	}

	// Attach
	if v := os.Getenv("LABDASH_URL"); v != "" {
		cfg.AttachURL = v
	}

	// Output
	if v := envInt("LABDASH_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// envBool reports the parsed value and whether the variable was set to
// a recognised boolean at all.
func envBool(key string) (value, ok bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
