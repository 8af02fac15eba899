package session

import (
	"context"
	"testing"
	"time"
)

func TestRegistry_AddGetRemove(t *testing.T) {
	loop := newTestLoop(t)
	r := NewRegistry()
	opts := &Options{}

	a := New("a", opts, loop, loop.emit)
	b := New("b", opts, loop, loop.emit)
	r.Add(a)
	r.Add(b)

	if r.Len() != 2 {
		t.Fatalf("Len = %d, want 2", r.Len())
	}
	if got, ok := r.Get("a"); !ok || got != a {
		t.Error("Get(a) should return a")
	}

	// A stale handle must not evict a newer session under the same id.
	a2 := New("a", opts, loop, loop.emit)
	r.Add(a2)
	r.Remove(a)
	if got, _ := r.Get("a"); got != a2 {
		t.Error("Remove with a stale session removed the replacement")
	}

	r.Remove(a2)
	r.Remove(b)
	if r.Len() != 0 {
		t.Errorf("Len = %d after removing all", r.Len())
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	loop := newTestLoop(t)
	r := NewRegistry()
	opts := &Options{}

	var all []*Session
	for _, id := range []string{"one", "two", "three"} {
		s := New(id, opts, loop, loop.emit)
		r.Add(s)
		all = append(all, s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.CloseAll(ctx, "shutdown"); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	for _, s := range all {
		if s.State() != StateClosed {
			t.Errorf("%s state = %s, want closed", s.ID, s.State())
		}
	}
}

func TestRegistry_CloseAllWithoutLoop(t *testing.T) {
	r := NewRegistry()
	s := New("orphan", &Options{}, nil, nil)
	r.Add(s)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.CloseAll(ctx, "shutdown"); err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateActive, "active"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
