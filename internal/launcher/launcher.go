package launcher

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	ncerr "labdash/internal/errors"
	"labdash/internal/pty"
	"labdash/util"
)

// Process is a running session process.  Exited is closed once the
// process has been reaped; Err then reports how it ended.
type Process struct {
	Cmd  *exec.Cmd
	Pid  int
	Pgid int

	exited chan struct{}
	err    error
}

// Exited is closed when the process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Err returns the wait status.  Only meaningful after Exited is closed.
func (p *Process) Err() error {
	select {
	case <-p.exited:
		return p.err
	default:
		return nil
	}
}

// Signal delivers sig to every process in the session's process group.
// A group that no longer exists is not an error.
func (p *Process) Signal(sig syscall.Signal) error {
	err := unix.Kill(-p.Pgid, sig)
	if ncerr.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// Launcher starts session processes on the slave side of a PTY.
type Launcher struct {
	Builder CommandBuilder
	Term    string
	logger  *util.Logger
}

// New returns a Launcher that builds commands with b and exports term
// as TERM.
func New(b CommandBuilder, term string, logger *util.Logger) *Launcher {
	return &Launcher{Builder: b, Term: term, logger: logger}
}

// Start launches the command for t with the slave as its controlling
// terminal and stdio.  The child leads a new session, so its process
// group id equals its pid and signals to -pgid reach everything it
// spawns.  On success the parent's copy of the slave is closed.
func (l *Launcher) Start(t Target, pair *pty.Pair) (*Process, error) {
	cmd := l.Builder.Command(t)
	cmd.Stdin = pair.Slave
	cmd.Stdout = pair.Slave
	cmd.Stderr = pair.Slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	if l.Term != "" {
		cmd.Env = append(cmd.Env, "TERM="+l.Term)
	}

	l.logger.Debug("launch: %s", cmd.String())

	if err := cmd.Start(); err != nil {
		return nil, ncerr.LaunchFailed("launch", err)
	}

	pid := cmd.Process.Pid
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// The child may already be gone; as a session leader its
		// group id is its pid.
		pgid = pid
	}

	if err := pair.CloseSlave(); err != nil {
		l.logger.Warn("close slave: %v", err)
	}

	p := &Process{Cmd: cmd, Pid: pid, Pgid: pgid, exited: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}
