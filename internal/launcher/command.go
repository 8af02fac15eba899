// Package launcher starts the remote-login process that backs a
// browser terminal session.
package launcher

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"labdash/config"
)

// Target identifies the remote host a session logs into.
type Target struct {
	Host string
	Port int
	User string
}

// Destination renders the target as ssh expects it: user@host or host.
func (t Target) Destination() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Destination(), t.Port)
}

// CommandBuilder produces the unstarted command for a target.
type CommandBuilder interface {
	Command(t Target) *exec.Cmd
}

// CommandFunc adapts an ordinary function to CommandBuilder.
type CommandFunc func(t Target) *exec.Cmd

// Command calls f(t).
func (f CommandFunc) Command(t Target) *exec.Cmd { return f(t) }

// SSHCommand builds an interactive ssh invocation that only ever
// authenticates with a password or keyboard-interactive prompt, so
// the browser user answers every question in the terminal itself.
type SSHCommand struct {
	Binary         string
	KnownHosts     string
	ConnectTimeout time.Duration
	Options        []string // extra "-o" values appended after the fixed set
}

// NewSSHCommand builds an SSHCommand from the session-process section
// of cfg.
func NewSSHCommand(cfg *config.Config) *SSHCommand {
	return &SSHCommand{
		Binary:         cfg.SSHBinary,
		KnownHosts:     cfg.KnownHostsPath,
		ConnectTimeout: cfg.ConnectTimeout,
		Options:        cfg.SSHOptions,
	}
}

// Args returns the argument vector, excluding the binary itself.
func (s *SSHCommand) Args(t Target) []string {
	knownHosts := s.KnownHosts
	if knownHosts == "" {
		knownHosts = config.DefaultKnownHostsPath
	}
	timeout := int(s.ConnectTimeout / time.Second)
	if timeout <= 0 {
		timeout = int(config.DefaultConnectTimeout / time.Second)
	}
	port := t.Port
	if port == 0 {
		port = config.DefaultSSHPort
	}

	args := []string{
		"-tt",
		"-p", strconv.Itoa(port),
		"-o", "PreferredAuthentications=keyboard-interactive,password",
		"-o", "PubkeyAuthentication=no",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=" + knownHosts,
		"-o", "ConnectTimeout=" + strconv.Itoa(timeout),
	}
	for _, o := range s.Options {
		args = append(args, "-o", o)
	}
	return append(args, t.Destination())
}

// Command returns the unstarted ssh command for t.
func (s *SSHCommand) Command(t Target) *exec.Cmd {
	bin := s.Binary
	if bin == "" {
		bin = config.DefaultSSHBinary
	}
	return exec.Command(bin, s.Args(t)...)
}
