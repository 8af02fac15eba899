//go:build linux

package launcher

import (
	"bufio"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	ncerr "labdash/internal/errors"
	"labdash/internal/pty"
	"labdash/util"
)

func shell(script string) CommandBuilder {
	return CommandFunc(func(Target) *exec.Cmd {
		return exec.Command("/bin/sh", "-c", script)
	})
}

func openPair(t *testing.T) *pty.Pair {
	t.Helper()
	var a pty.Allocator
	p, err := a.Open(pty.Size{Cols: 80, Rows: 24})
	if err != nil {
		t.Fatalf("open pty: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestLauncher_StartSessionLeader(t *testing.T) {
	pair := openPair(t)
	l := New(shell(`echo "TERM=$TERM"; tty >/dev/null && echo tty-ok`), "xterm-256color", util.NewLogger(0))

	proc, err := l.Start(Target{Host: "local"}, pair)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if proc.Pgid != proc.Pid {
		t.Errorf("pgid = %d, want pid %d", proc.Pgid, proc.Pid)
	}

	r := bufio.NewReader(pair.Master)
	var lines []string
	for len(lines) < 2 {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	if len(lines) < 2 || lines[0] != "TERM=xterm-256color" || lines[1] != "tty-ok" {
		t.Errorf("unexpected output %q", lines)
	}

	select {
	case <-proc.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process was not reaped")
	}
	if proc.Err() != nil {
		t.Errorf("exit: %v", proc.Err())
	}
}

func TestLauncher_StartFailure(t *testing.T) {
	pair := openPair(t)
	l := New(CommandFunc(func(Target) *exec.Cmd {
		return exec.Command("/nonexistent/labdash-ssh")
	}), "", util.NewLogger(0))

	_, err := l.Start(Target{Host: "h"}, pair)
	if ncerr.KindOf(err) != ncerr.KindLaunchFailed {
		t.Fatalf("kind = %v, want launch failed (%v)", ncerr.KindOf(err), err)
	}
}

func TestProcess_SignalGroup(t *testing.T) {
	pair := openPair(t)
	l := New(shell(`sleep 60 & wait`), "", util.NewLogger(0))

	proc, err := l.Start(Target{Host: "h"}, pair)
	if err != nil {
		t.Fatal(err)
	}

	if err := proc.Signal(syscall.SIGKILL); err != nil {
		t.Fatalf("signal: %v", err)
	}
	select {
	case <-proc.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("group kill did not reap the leader")
	}

	// The group is gone; signalling it again is not an error.
	time.Sleep(50 * time.Millisecond)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		t.Errorf("signal after exit: %v", err)
	}
}
