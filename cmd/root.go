// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"labdash/config"
	ncerr "labdash/internal/errors"
	"labdash/internal/core"
	"labdash/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X labdash/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// stdout receives --help, --version and --dry-run output.  Tests
// replace it.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the appropriate labdash mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	// Subcommand, if any.
	if len(args) > 0 {
		switch args[0] {
		case "attach":
			cfg.Attach = true
			args = args[1:]
		case "serve":
			args = args[1:]
		}
	}

	fs := flag.NewFlagSet("labdash", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	// ── server ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddr, "listen", "l", cfg.ListenAddr, "HTTP listen address")
	fs.StringVar(&cfg.WSPath, "ws-path", cfg.WSPath, "WebSocket endpoint for terminal sessions")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allow-origin", cfg.AllowedOrigins, "Extra Origin host accepted on upgrade (repeatable, * for any)")

	// ── session process ──────────────────────────────────────────
	fs.StringVar(&cfg.SSHBinary, "ssh-binary", cfg.SSHBinary, "Remote-login client to launch")
	fs.StringArrayVarP(&cfg.SSHOptions, "ssh-option", "o", cfg.SSHOptions, "Extra ssh -o option (repeatable)")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "known_hosts file for ssh and the host-key check")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Connect timeout for ssh and the preflight probe")
	fs.StringVar(&cfg.Term, "term", cfg.Term, "TERM exported to the session")
	size := fmt.Sprintf("%dx%d", cfg.DefaultCols, cfg.DefaultRows)
	fs.StringVar(&size, "size", size, "Default terminal size COLSxROWS")

	// ── bridge ───────────────────────────────────────────────────
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Output poll timeout")
	fs.IntVar(&cfg.ReadChunkSize, "read-chunk", cfg.ReadChunkSize, "Max bytes per terminal read")
	fs.DurationVar(&cfg.TerminateGrace, "terminate-grace", cfg.TerminateGrace, "Wait after SIGTERM before SIGKILL")

	// ── preflight ────────────────────────────────────────────────
	var noPreflight, noScan bool
	fs.BoolVar(&noPreflight, "no-preflight", !cfg.Preflight, "Skip the reachability probe")
	fs.BoolVar(&noScan, "no-hostkey-scan", !cfg.HostKeyScan, "Skip fetching the host key fingerprint")
	fs.IntVar(&cfg.BreakerThreshold, "breaker-threshold", cfg.BreakerThreshold, "Failed probes before a host is short-circuited")
	fs.DurationVar(&cfg.BreakerReset, "breaker-reset", cfg.BreakerReset, "How long a short-circuited host is skipped")

	// ── attach ───────────────────────────────────────────────────
	fs.StringVar(&cfg.AttachURL, "url", cfg.AttachURL, "Bridge WebSocket URL (attach)")
	fs.BoolVar(&cfg.TargetPassword, "password", false, "Prompt for the login password locally (attach)")

	// ── output ───────────────────────────────────────────────────
	verbose := 0
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "labdash %s\n", version)
		return nil
	}

	if fs.Changed("verbose") {
		cfg.Verbose = verbose + 1
	}
	cfg.Preflight = !noPreflight
	cfg.HostKeyScan = !noScan && cfg.Preflight

	cols, rows, err := parseSize(size)
	if err != nil {
		return err
	}
	cfg.DefaultCols, cfg.DefaultRows = cols, rows

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		printConfig(cfg)
		return nil
	}

	// ── build & run ──────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if !cfg.Attach {
		if len(remaining) > 0 {
			return fmt.Errorf("unexpected argument %q (use --help for usage)", remaining[0])
		}
		return nil
	}

	switch len(remaining) {
	case 0:
		return nil // Validate reports the missing target
	case 1:
	default:
		return fmt.Errorf("too many arguments for attach")
	}

	user, host, port, err := config.ParseTarget(remaining[0])
	if err != nil {
		return err
	}
	cfg.TargetSpec = remaining[0]
	cfg.TargetUser, cfg.TargetHost, cfg.TargetPort = user, host, port
	return nil
}

// parseSize parses "COLSxROWS".
func parseSize(s string) (cols, rows int, err error) {
	c, r, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		cols, err = strconv.Atoi(c)
		if err == nil {
			rows, err = strconv.Atoi(r)
		}
	}
	if !ok || err != nil || cols <= 0 || rows <= 0 {
		return 0, 0, &ncerr.ConfigError{
			Field:   "size",
			Value:   s,
			Message: "expected COLSxROWS",
			Hint:    "e.g. --size 120x30",
		}
	}
	return cols, rows, nil
}

func printConfig(cfg *config.Config) {
	if cfg.Attach {
		fmt.Fprintf(stdout, "attach %s -> %s\n", cfg.AttachURL, cfg.TargetSpec)
		return
	}
	fmt.Fprintf(stdout, "listen          %s%s\n", cfg.ListenAddr, cfg.WSPath)
	fmt.Fprintf(stdout, "ssh             %s %s\n", cfg.SSHBinary, strings.Join(cfg.SSHOptions, " "))
	fmt.Fprintf(stdout, "known hosts     %s\n", cfg.KnownHostsPath)
	fmt.Fprintf(stdout, "connect timeout %s\n", cfg.ConnectTimeout)
	fmt.Fprintf(stdout, "terminal        %s %dx%d\n", cfg.Term, cfg.DefaultCols, cfg.DefaultRows)
	fmt.Fprintf(stdout, "preflight       %v (host key scan %v)\n", cfg.Preflight, cfg.HostKeyScan)
	fmt.Fprintf(stdout, "teardown grace  %s\n", cfg.TerminateGrace)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stdout, `labdash – browser terminal bridge v%s

Serves interactive ssh sessions to a web dashboard over WebSocket.

Usage:
  labdash [serve] [options]                          Run the bridge
  labdash attach --url <ws-url> [user@]host[:port]   Open a session from this terminal

Options:
`, version)
	fmt.Fprint(stdout, fs.FlagUsages())
	fmt.Fprintf(stdout, `
Examples:
  labdash -l :8000                                   Serve on port 8000
  labdash -o ServerAliveInterval=15 -v               Extra ssh option, verbose
  labdash --no-preflight --terminate-grace 1s        Skip the probe, faster teardown
  labdash attach --url ws://nas.lan:8000/ws/ssh pi@raspberrypi.lan
`)
}
