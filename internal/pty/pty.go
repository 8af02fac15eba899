// Package pty allocates the pseudo-terminal pairs that back browser
// sessions.
package pty

import (
	"os"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	ncerr "labdash/internal/errors"
)

// Size is a terminal window size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

// Pair is a master/slave pseudo-terminal pair.  The master stays with
// the bridge; the slave becomes the child's controlling terminal.
type Pair struct {
	Master *os.File
	Slave  *os.File

	slaveOnce sync.Once
	closeOnce sync.Once
}

// Allocator opens pseudo-terminal pairs.  The zero value is ready to
// use.
type Allocator struct {
	// open defaults to pty.Open; tests replace it to simulate an
	// exhausted /dev/ptmx.
	open func() (*os.File, *os.File, error)
}

// Open allocates a pair and applies the initial window size.  Any
// failure is returned as a resource-exhausted session error and no
// descriptors are leaked.
//
// The master is non-blocking and registered with the runtime poller,
// so SetReadDeadline and SetWriteDeadline work on it.  Callers must
// not call Master.Fd, which switches it back to blocking mode.
func (a *Allocator) Open(size Size) (*Pair, error) {
	open := a.open
	if open == nil {
		open = pty.Open
	}

	master, slave, err := open()
	if err != nil {
		return nil, ncerr.ResourceExhausted(err)
	}

	master, err = pollable(master)
	if err != nil {
		slave.Close()
		return nil, ncerr.ResourceExhausted(err)
	}

	p := &Pair{Master: master, Slave: slave}
	if size.Cols > 0 && size.Rows > 0 {
		if err := pty.Setsize(slave, &pty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
			p.Close()
			return nil, ncerr.ResourceExhausted(err)
		}
	}
	return p, nil
}

// pollable replaces f with a non-blocking duplicate and closes f.
// pty.Open returns a master that Fd has already put into blocking
// mode.
func pollable(f *os.File) (*os.File, error) {
	defer f.Close()
	fd, err := unix.FcntlInt(f.Fd(), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}

// Resize applies a window size to the terminal.  The kernel delivers
// SIGWINCH to the foreground process group of the slave.
func (p *Pair) Resize(cols, rows uint16) error {
	rc, err := p.Master.SyscallConn()
	if err != nil {
		return err
	}
	ws := &unix.Winsize{Col: cols, Row: rows}
	var ierr error
	if err := rc.Control(func(fd uintptr) {
		ierr = unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, ws)
	}); err != nil {
		return err
	}
	return ierr
}

// CloseSlave closes the parent's copy of the slave.  Once the child
// holds the only reference, its exit produces EIO on the master.
func (p *Pair) CloseSlave() error {
	var err error
	p.slaveOnce.Do(func() { err = p.Slave.Close() })
	return err
}

// CloseMaster closes the master side.  Safe to call more than once.
func (p *Pair) CloseMaster() error {
	var err error
	p.closeOnce.Do(func() { err = p.Master.Close() })
	return err
}

// Close releases both ends.
func (p *Pair) Close() error {
	return ncerr.Join(p.CloseSlave(), p.CloseMaster())
}
