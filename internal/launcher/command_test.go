package launcher

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"labdash/config"
)

func TestTarget_Destination(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{Target{Host: "nas.lan", Port: 22}, "nas.lan"},
		{Target{Host: "nas.lan", Port: 22, User: "pi"}, "pi@nas.lan"},
	}
	for _, tt := range tests {
		if got := tt.target.Destination(); got != tt.want {
			t.Errorf("Destination() = %q, want %q", got, tt.want)
		}
	}
}

func TestSSHCommand_Args(t *testing.T) {
	s := NewSSHCommand(config.Default())

	got := s.Args(Target{Host: "10.0.0.5", Port: 2222, User: "admin"})
	want := []string{
		"-tt",
		"-p", "2222",
		"-o", "PreferredAuthentications=keyboard-interactive,password",
		"-o", "PubkeyAuthentication=no",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=10",
		"admin@10.0.0.5",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args:\n got %q\nwant %q", got, want)
	}
}

func TestSSHCommand_ExtraOptions(t *testing.T) {
	s := &SSHCommand{
		Binary:         "/usr/local/bin/ssh",
		KnownHosts:     "/etc/labdash/known_hosts",
		ConnectTimeout: 5 * time.Second,
		Options:        []string{"ServerAliveInterval=15"},
	}

	cmd := s.Command(Target{Host: "pi.lan"})
	args := strings.Join(cmd.Args, " ")

	for _, want := range []string{
		"/usr/local/bin/ssh -tt -p 22 ",
		"UserKnownHostsFile=/etc/labdash/known_hosts",
		"ConnectTimeout=5",
		"-o ServerAliveInterval=15 pi.lan",
	} {
		if !strings.Contains(args, want) {
			t.Errorf("command %q missing %q", args, want)
		}
	}
	if cmd.Path != "/usr/local/bin/ssh" {
		t.Errorf("path = %q", cmd.Path)
	}
}

func TestSSHCommand_DestinationIsLast(t *testing.T) {
	s := NewSSHCommand(config.Default())
	args := s.Args(Target{Host: "h", Port: 22})
	if args[len(args)-1] != "h" {
		t.Errorf("destination must be the final argument, got %q", args[len(args)-1])
	}
}
