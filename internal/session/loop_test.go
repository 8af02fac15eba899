package session

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"labdash/internal/wire"
)

// testLoop is a minimal event loop: one goroutine running posted
// closures in order and recording every emitted frame.
type testLoop struct {
	fns     chan func()
	stopped atomic.Bool

	mu   sync.Mutex
	msgs []wire.ServerMessage
}

func newTestLoop(t *testing.T) *testLoop {
	t.Helper()
	l := &testLoop{fns: make(chan func(), 4096)}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for fn := range l.fns {
			fn()
		}
	}()
	t.Cleanup(func() {
		l.stopped.Store(true)
		close(l.fns)
		<-done
	})
	return l
}

func (l *testLoop) Post(fn func()) bool {
	if l.stopped.Load() {
		return false
	}
	select {
	case l.fns <- fn:
		return true
	default:
		return false
	}
}

func (l *testLoop) emit(m wire.ServerMessage) {
	l.mu.Lock()
	l.msgs = append(l.msgs, m)
	l.mu.Unlock()
}

// do runs fn on the loop and waits for it.
func (l *testLoop) do(fn func()) {
	done := make(chan struct{})
	l.fns <- func() {
		fn()
		close(done)
	}
	<-done
}

func (l *testLoop) messages() []wire.ServerMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]wire.ServerMessage(nil), l.msgs...)
}

func (l *testLoop) count(typ string) int {
	n := 0
	for _, m := range l.messages() {
		if m.Type == typ {
			n++
		}
	}
	return n
}

// output concatenates every output frame received so far.
func (l *testLoop) output() string {
	var b strings.Builder
	for _, m := range l.messages() {
		if m.Type == wire.TypeOutput {
			b.WriteString(m.Data)
		}
	}
	return b.String()
}

func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
