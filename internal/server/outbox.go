package server

import (
	"sync"

	"github.com/eapache/queue"
)

// Outbox carries closures from session goroutines to a connection's
// event loop.  Post never blocks; the queue grows as needed.  After
// Close every Post is rejected.
type Outbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	wake   chan struct{}
	closed bool
}

// NewOutbox returns an open, empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{q: queue.New(), wake: make(chan struct{}, 1)}
}

// Post enqueues fn for the event loop.  It reports false if the loop
// has already stopped.
func (o *Outbox) Post(fn func()) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.q.Add(fn)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

// Wake fires after a Post.  Several posts may share one wake-up.
func (o *Outbox) Wake() <-chan struct{} { return o.wake }

// Drain runs every queued closure in order on the calling goroutine,
// including ones posted while draining.  It returns how many ran.
func (o *Outbox) Drain() int {
	n := 0
	for {
		o.mu.Lock()
		if o.q.Length() == 0 {
			o.mu.Unlock()
			return n
		}
		fn := o.q.Remove().(func())
		o.mu.Unlock()

		fn()
		n++
	}
}

// Len returns the number of queued closures.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}

// Close rejects further posts.  Closures already queued remain and can
// still be drained.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
}
