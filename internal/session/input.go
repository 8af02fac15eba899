package session

import (
	"os"
	"strings"
	"time"

	ncerr "labdash/internal/errors"
)

// Input writes client keystrokes to the terminal.  Input that arrives
// while the session is not active is dropped.  A failed write is
// returned as a write-failed error; if the terminal is gone for good
// the session is also closed.  A write the child does not consume
// within WriteWait fails with os.ErrDeadlineExceeded and the unwritten
// remainder is discarded.
func (s *Session) Input(data string) error {
	if data == "" || !s.live.Load() || s.State() != StateActive {
		return nil
	}
	return s.write(data)
}

func (s *Session) write(data string) error {
	if err := s.pair.Master.SetWriteDeadline(time.Now().Add(s.opts.WriteWait)); err != nil {
		s.logger.Debug("write deadline: %v", err)
	}
	n, err := s.pair.Master.Write([]byte(data))
	s.opts.Metrics.BytesReceived(int64(n))
	if err != nil {
		s.opts.Metrics.InputError()
		werr := ncerr.WriteFailed(err)
		if ncerr.Is(err, os.ErrDeadlineExceeded) {
			s.logger.Warn("input stalled, dropped %d of %d bytes", len(data)-n, len(data))
		} else {
			s.logger.Verbose("%v", werr)
		}
		if endOfStream(err) {
			s.Close(reasonClosed)
		}
		return werr
	}
	return nil
}

// Resize changes the terminal window size.  Ignored unless active.
func (s *Session) Resize(cols, rows int) error {
	if !s.live.Load() || s.State() != StateActive {
		return nil
	}
	if cols <= 0 || rows <= 0 || cols > 0xFFFF || rows > 0xFFFF {
		return ncerr.InvalidRequest("invalid terminal size %dx%d", cols, rows)
	}
	if err := s.pair.Resize(uint16(cols), uint16(rows)); err != nil {
		return &ncerr.SessionError{Kind: ncerr.KindWriteFailed, Op: "resize", Err: err}
	}
	s.logger.Debug("resized to %dx%d", cols, rows)
	return nil
}

// promptWindow is how much trailing output is kept for prompt
// detection across chunk boundaries.
const promptWindow = 32

// observe answers the first password prompt with the password that
// came with the connect request.  The password is cleared afterwards
// and never logged.
func (s *Session) observe(text string) {
	if s.password == "" {
		return
	}
	window := s.promptTail + text
	if strings.Contains(strings.ToLower(window), "password:") {
		pw := s.password
		s.password = ""
		s.promptTail = ""
		s.logger.Verbose("answering password prompt")
		if err := s.Input(pw + "\n"); err != nil {
			s.logger.Warn("password autofill failed")
		}
		return
	}
	if len(window) > promptWindow {
		window = window[len(window)-promptWindow:]
	}
	s.promptTail = window
}
