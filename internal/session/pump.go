package session

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	ncerr "labdash/internal/errors"
	"labdash/internal/wire"
)

// retryDelay is the pause after a transient read or poll error.
const retryDelay = 100 * time.Millisecond

// Disconnect reasons reported to the browser.
const (
	reasonEnded  = "SSH session ended"
	reasonClosed = "SSH connection closed"
)

// pump is the sole reader of the master.  It exits when liveness is
// cleared, the process exits, or the terminal reports end-of-stream,
// and then posts the disconnected event, unless teardown already sent
// it, followed by a teardown request.
func (s *Session) pump() {
	reason := s.readLoop()
	close(s.pumpDone)

	s.logger.Verbose("pump stopped: %s", reason)
	// One closure, so no client message can be handled between the
	// event and the teardown it announces.
	s.post(func() {
		s.announce(reason)
		s.Close(reason)
	})
}

func (s *Session) readLoop() string {
	bufp := s.opts.bufs.Get()
	defer s.opts.bufs.Put(bufp)
	buf := (*bufp)[:s.opts.ReadChunkSize]

	// The descriptor is only borrowed through rc, never via Fd, so the
	// master stays non-blocking and input writes can time out.
	rc, err := s.pair.Master.SyscallConn()
	if err != nil {
		return reasonEnded
	}
	dec := newTextDecoder()
	timeout := int(s.opts.PollInterval / time.Millisecond)

	for s.live.Load() {
		select {
		case <-s.proc.Exited():
			s.drain(rc, buf, dec)
			return reasonEnded
		default:
		}

		readable, err := pollIn(rc, timeout)
		if err != nil {
			if endOfStream(err) {
				s.forward(dec.Flush())
				return reasonEnded
			}
			if !s.backoff(err) {
				return reasonClosed
			}
			continue
		}
		if !readable {
			continue
		}

		n, err := s.pair.Master.Read(buf)
		if n > 0 {
			s.opts.Metrics.BytesSent(int64(n))
			s.forward(dec.Decode(buf[:n]))
		}
		if err != nil {
			if endOfStream(err) {
				s.forward(dec.Flush())
				return reasonEnded
			}
			if !s.backoff(err) {
				return reasonClosed
			}
		}
	}
	return reasonClosed
}

// drain forwards whatever output is already buffered once the process
// has exited.
func (s *Session) drain(rc syscall.RawConn, buf []byte, dec *textDecoder) {
	for s.live.Load() {
		readable, err := pollIn(rc, 0)
		if err != nil || !readable {
			break
		}
		n, err := s.pair.Master.Read(buf)
		if n > 0 {
			s.opts.Metrics.BytesSent(int64(n))
			s.forward(dec.Decode(buf[:n]))
		}
		if err != nil {
			break
		}
	}
	s.forward(dec.Flush())
}

// forward posts a decoded chunk to the event loop.
func (s *Session) forward(text string) {
	if text == "" {
		return
	}
	s.post(func() {
		if s.announced.Load() {
			return
		}
		s.observe(text)
		s.emit(wire.Output(text))
	})
}

// backoff sleeps after a transient error.  It returns false if the
// session is torn down meanwhile.
func (s *Session) backoff(err error) bool {
	s.logger.Debug("%v, retrying in %s", ncerr.TransientIO(err), retryDelay)
	t := time.NewTimer(retryDelay)
	defer t.Stop()
	select {
	case <-s.stop:
		return false
	case <-t.C:
		return true
	}
}

// errHangup reports POLLHUP or POLLNVAL without pending input.
var errHangup = errors.New("terminal hung up")

// pollIn waits up to timeoutMs for the terminal to become readable.
func pollIn(rc syscall.RawConn, timeoutMs int) (bool, error) {
	var (
		readable bool
		perr     error
	)
	err := rc.Control(func(fd uintptr) {
		readable, perr = pollFd(int(fd), timeoutMs)
	})
	if err != nil {
		// Control only fails once the file is closed.
		return false, os.ErrClosed
	}
	return readable, perr
}

func pollFd(fd, timeoutMs int) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	re := fds[0].Revents
	if re&unix.POLLIN != 0 {
		return true, nil
	}
	if re&(unix.POLLHUP|unix.POLLNVAL|unix.POLLERR) != 0 {
		return false, errHangup
	}
	return false, nil
}

// endOfStream reports whether err means the terminal is gone for good
// rather than a hiccup worth retrying.
func endOfStream(err error) bool {
	switch {
	case errors.Is(err, errHangup),
		errors.Is(err, syscall.EIO),
		errors.Is(err, syscall.EBADF),
		errors.Is(err, os.ErrClosed),
		errors.Is(err, io.EOF):
		return true
	}
	return false
}

// ── Decoding ─────────────────────────────────────────────────────────

// textDecoder turns terminal bytes into valid UTF-8.  Invalid
// sequences become U+FFFD; a sequence split across reads is held back
// until the rest arrives.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{t: unicode.UTF8.NewDecoder()}
}

// Decode converts p, carrying an incomplete trailing sequence over to
// the next call.
func (d *textDecoder) Decode(p []byte) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}
	out, rest := d.transform(src, false)
	if len(rest) > 0 {
		d.pending = append([]byte(nil), rest...)
	}
	return out
}

// Flush emits any held-back bytes, replacing them with U+FFFD.
func (d *textDecoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	out, _ := d.transform(d.pending, true)
	d.pending = nil
	d.t.Reset()
	return out
}

func (d *textDecoder) transform(src []byte, atEOF bool) (string, []byte) {
	// Each invalid byte expands to the three-byte replacement rune.
	dst := make([]byte, 3*len(src)+4)
	var out []byte
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]
		if err == transform.ErrShortSrc {
			break
		}
		if err != nil && err != transform.ErrShortDst {
			break
		}
		if nSrc == 0 && nDst == 0 {
			break
		}
	}
	return string(out), src
}
