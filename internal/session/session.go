// Package session implements the terminal bridge for one browser
// connection: it allocates a pseudo-terminal, launches the remote-login
// process on it, pumps output back to the connection and tears the
// whole thing down exactly once.
//
// A Session never touches the WebSocket.  Everything it reports is
// posted through a Scheduler onto the connection's event loop, which
// is also the only caller of Connect, Input, Resize and Close.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"labdash/config"
	ncerr "labdash/internal/errors"
	"labdash/internal/launcher"
	"labdash/internal/metrics"
	"labdash/internal/pty"
	"labdash/internal/transport"
	"labdash/internal/wire"
	"labdash/util"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Scheduler runs fn on the connection's event loop.  Post never
// blocks and returns false once the loop has stopped.
type Scheduler interface {
	Post(fn func()) bool
}

// Emitter delivers a frame to the browser.  It is only ever called
// from the event loop.
type Emitter func(msg wire.ServerMessage)

// Prober checks reachability of a target before anything local is
// allocated for it.
type Prober interface {
	Probe(ctx context.Context, host string, port int) (*transport.ProbeResult, error)
}

// ConnectRequest is a validated connect action.
type ConnectRequest struct {
	Target   launcher.Target
	Password string
	Size     pty.Size
}

// Options are the collaborators and tunables shared by every session
// of a server.
type Options struct {
	Prober      Prober // nil disables the preflight probe
	Allocator   *pty.Allocator
	Launcher    *launcher.Launcher
	DefaultSize pty.Size

	PollInterval   time.Duration
	ReadChunkSize  int
	TerminateGrace time.Duration
	PumpWait       time.Duration // bound on waiting for the pump during teardown
	WriteWait      time.Duration // bound on one input write to the terminal

	// Signal delivers a signal to the session's process group.
	// Defaults to (*launcher.Process).Signal.
	Signal func(p *launcher.Process, sig syscall.Signal) error

	Metrics *metrics.Collector
	Logger  *util.Logger

	once sync.Once
	bufs *util.BufPool
}

// DefaultPumpWait bounds how long teardown waits for the pump to
// notice that liveness was cleared.
const DefaultPumpWait = 500 * time.Millisecond

// DefaultWriteWait bounds a single input write.  A child that stops
// reading fills the terminal's input queue; the write then gives up
// instead of stalling the event loop.
const DefaultWriteWait = time.Second

// NewOptions wires the session collaborators from cfg.
func NewOptions(cfg *config.Config, m *metrics.Collector, logger *util.Logger) *Options {
	o := &Options{
		Allocator: &pty.Allocator{},
		Launcher:  launcher.New(launcher.NewSSHCommand(cfg), cfg.Term, logger),
		DefaultSize: pty.Size{
			Cols: uint16(cfg.DefaultCols),
			Rows: uint16(cfg.DefaultRows),
		},
		PollInterval:   cfg.PollInterval,
		ReadChunkSize:  cfg.ReadChunkSize,
		TerminateGrace: cfg.TerminateGrace,
		PumpWait:       DefaultPumpWait,
		WriteWait:      DefaultWriteWait,
		Metrics:        m,
		Logger:         logger,
	}
	if cfg.Preflight {
		o.Prober = transport.NewProber(cfg, logger)
	}
	return o
}

func (o *Options) init() {
	o.once.Do(func() {
		if o.PollInterval <= 0 {
			o.PollInterval = config.DefaultPollInterval
		}
		if o.ReadChunkSize < config.MinReadChunkSize {
			o.ReadChunkSize = config.DefaultReadChunkSize
		}
		if o.TerminateGrace <= 0 {
			o.TerminateGrace = config.DefaultTerminateGrace
		}
		if o.PumpWait <= 0 {
			o.PumpWait = DefaultPumpWait
		}
		if o.WriteWait <= 0 {
			o.WriteWait = DefaultWriteWait
		}
		if o.DefaultSize.Cols == 0 || o.DefaultSize.Rows == 0 {
			o.DefaultSize = pty.Size{Cols: config.DefaultCols, Rows: config.DefaultRows}
		}
		if o.Allocator == nil {
			o.Allocator = &pty.Allocator{}
		}
		if o.Signal == nil {
			o.Signal = (*launcher.Process).Signal
		}
		if o.Logger == nil {
			o.Logger = util.NewLogger(0)
		}
		o.bufs = util.NewBufPool(o.ReadChunkSize)
	})
}

// Session is one terminal bridge.  The zero value is not usable; use
// New.
type Session struct {
	ID string

	opts   *Options
	sched  Scheduler
	emit   Emitter
	logger *util.Logger

	state atomic.Int32
	live  atomic.Bool // only ever cleared after being set

	announced atomic.Bool // disconnected has been emitted

	target launcher.Target
	pair   *pty.Pair
	proc   *launcher.Process

	password   string // answered once, then cleared
	promptTail string

	pumpDone chan struct{}
	stop     chan struct{} // interrupts the pump's retry sleep
	settled  chan struct{} // closed when Connecting is left
	closed   chan struct{}
}

// New creates an idle session that reports through sched and emit.
func New(id string, opts *Options, sched Scheduler, emit Emitter) *Session {
	opts.init()
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return &Session{
		ID:       id,
		opts:     opts,
		sched:    sched,
		emit:     emit,
		logger:   opts.Logger.With("session " + short + ":"),
		pumpDone: make(chan struct{}),
		stop:     make(chan struct{}),
		settled:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Live reports whether output is still being relayed.
func (s *Session) Live() bool { return s.live.Load() }

// Target returns the host this session logs into.
func (s *Session) Target() launcher.Target { return s.target }

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.closed }

// ── Connect ──────────────────────────────────────────────────────────

// Connect probes the target, allocates a terminal, launches the login
// process and starts the pump.  On success it returns the message for
// the browser's connected event.  On failure every acquired resource
// has been released, the session is Closed, and the error says why.
//
// A request without a host is rejected and the session stays Idle.
func (s *Session) Connect(ctx context.Context, req ConnectRequest) (string, error) {
	if req.Target.Host == "" {
		return "", ncerr.InvalidRequest("Host is required")
	}
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return "", &ncerr.SessionError{Kind: ncerr.KindInvalidRequest, Op: "connect", Err: ncerr.ErrSessionActive}
	}
	defer close(s.settled)

	if req.Target.Port == 0 {
		req.Target.Port = config.DefaultSSHPort
	}
	if req.Size.Cols == 0 || req.Size.Rows == 0 {
		req.Size = s.opts.DefaultSize
	}
	s.target = req.Target
	s.logger.Info("connecting to %s", req.Target)

	var hostKey *transport.HostKey
	if s.opts.Prober != nil {
		res, err := s.opts.Prober.Probe(ctx, req.Target.Host, req.Target.Port)
		if err != nil {
			return "", s.fail(err)
		}
		hostKey = res.HostKey
	}

	pair, err := s.opts.Allocator.Open(req.Size)
	if err != nil {
		return "", s.fail(err)
	}

	proc, err := s.opts.Launcher.Start(req.Target, pair)
	if err != nil {
		pair.Close()
		return "", s.fail(err)
	}

	s.pair = pair
	s.proc = proc
	s.password = req.Password
	s.live.Store(true)
	s.state.Store(int32(StateActive))
	s.opts.Metrics.SessionStarted()

	go s.pump()

	s.logger.Info("active, pid %d, %dx%d", proc.Pid, req.Size.Cols, req.Size.Rows)

	msg := "SSH connected to " + req.Target.Destination()
	if hostKey != nil {
		msg += fmt.Sprintf(" (%s %s)", hostKey.Type, hostKey.Fingerprint)
	}
	return msg, nil
}

func (s *Session) fail(err error) error {
	s.state.Store(int32(StateClosed))
	close(s.pumpDone)
	close(s.closed)
	s.opts.Metrics.SetupFailed()
	s.logger.Warn("setup failed: %v", err)
	return err
}

// ── Teardown ─────────────────────────────────────────────────────────

// Close ends the session.  Racing calls run teardown once; every
// caller returns after the session is Closed.  Close blocks until the
// login process has been reaped, but the browser is told the session
// ended as soon as output stops.
func (s *Session) Close(reason string) { s.close(reason, true) }

// closeDetached is Close for callers outside the event loop.  It emits
// nothing.
func (s *Session) closeDetached(reason string) { s.close(reason, false) }

func (s *Session) close(reason string, announce bool) {
	for {
		switch s.State() {
		case StateIdle:
			if s.state.CompareAndSwap(int32(StateIdle), int32(StateClosed)) {
				close(s.pumpDone)
				close(s.closed)
				return
			}
		case StateConnecting:
			<-s.settled
		case StateActive:
			if s.state.CompareAndSwap(int32(StateActive), int32(StateClosing)) {
				s.teardown(reason, announce)
				s.state.Store(int32(StateClosed))
				close(s.closed)
				return
			}
		default:
			<-s.closed
			return
		}
	}
}

// teardown releases the terminal and the process group.  Every step
// is attempted; failures are logged and otherwise ignored.
func (s *Session) teardown(reason string, announce bool) {
	s.logger.Info("closing: %s", reason)
	start := time.Now()

	s.live.Store(false)
	close(s.stop)
	if announce {
		s.announce(reasonClosed)
	}

	select {
	case <-s.pumpDone:
	case <-time.After(s.opts.PumpWait):
		s.logger.Warn("pump did not stop within %s", s.opts.PumpWait)
	}

	if err := s.pair.CloseMaster(); err != nil {
		s.logger.Verbose("close master: %v", err)
	}

	if err := s.opts.Signal(s.proc, syscall.SIGTERM); err != nil {
		s.logger.Verbose("SIGTERM pgid %d: %v", s.proc.Pgid, err)
	}

	grace := time.NewTimer(s.opts.TerminateGrace)
	defer grace.Stop()
	select {
	case <-s.proc.Exited():
	case <-grace.C:
		s.logger.Warn("pgid %d ignored SIGTERM for %s, killing", s.proc.Pgid, s.opts.TerminateGrace)
		s.opts.Metrics.ForcedKill()
		if err := s.opts.Signal(s.proc, syscall.SIGKILL); err != nil {
			s.logger.Verbose("SIGKILL pgid %d: %v", s.proc.Pgid, err)
		}
		<-s.proc.Exited()
	}

	s.opts.Metrics.SessionEnded()
	s.logger.Info("closed in %s (exit: %v)", time.Since(start).Round(time.Millisecond), s.proc.Err())
}

// announce emits the disconnected event.  Only the first call emits;
// output still queued behind it is dropped.
func (s *Session) announce(reason string) {
	if s.announced.CompareAndSwap(false, true) {
		s.emit(wire.Disconnected(reason))
	}
}

// post hands fn to the event loop.
func (s *Session) post(fn func()) bool {
	if s.sched == nil {
		return false
	}
	return s.sched.Post(fn)
}
