package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	ncerr "labdash/internal/errors"
)

var errRefused = errors.New("connection refused")

func fail() error { return errRefused }
func ok() error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Second})

	for i := 0; i < 3; i++ {
		cb.Execute(fail) //nolint:errcheck
	}

	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after 3 failures, got %s", cb.CurrentState())
	}
	if cb.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", cb.Failures())
	}
}

func TestCircuitBreaker_RejectsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	cb.Execute(fail) //nolint:errcheck

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})

	if !errors.Is(err, ncerr.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not have been called when circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		HalfOpenMax:  2,
	})

	cb.Execute(fail) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.CurrentState() != StateHalfOpen {
		t.Errorf("expected half-open after first success, got %s", cb.CurrentState())
	}
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("expected closed after 2 successes, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Execute(fail) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)

	cb.Execute(fail) //nolint:errcheck
	if cb.CurrentState() != StateOpen {
		t.Errorf("expected open after half-open failure, got %s", cb.CurrentState())
	}
}

func TestCircuitBreaker_StateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(&CircuitBreakerConfig{
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s→%s", from, to))
		},
	})

	cb.Execute(fail) //nolint:errcheck
	time.Sleep(20 * time.Millisecond)
	cb.Execute(ok) //nolint:errcheck

	want := []string{"closed→open", "open→half-open", "half-open→closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_ResetAndSuccess(t *testing.T) {
	cb := NewCircuitBreaker(&CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	cb.Execute(fail) //nolint:errcheck
	cb.Execute(fail) //nolint:errcheck
	cb.Execute(ok)   //nolint:errcheck
	if cb.Failures() != 0 {
		t.Errorf("expected 0 failures after success, got %d", cb.Failures())
	}

	for i := 0; i < 3; i++ {
		cb.Execute(fail) //nolint:errcheck
	}
	cb.Reset()
	if cb.CurrentState() != StateClosed || cb.Failures() != 0 {
		t.Errorf("reset should close the breaker: state=%s failures=%d", cb.CurrentState(), cb.Failures())
	}
}

func TestCircuitBreaker_NilConfig(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	if cb.maxFailures != 5 || cb.halfOpenMax != 1 {
		t.Errorf("unexpected defaults: maxFailures=%d halfOpenMax=%d", cb.maxFailures, cb.halfOpenMax)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreakerSet_PerKey(t *testing.T) {
	set := NewBreakerSet(&CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	set.For("nas.lan:22").Execute(fail) //nolint:errcheck

	if set.For("nas.lan:22").CurrentState() != StateOpen {
		t.Error("nas breaker should be open")
	}
	if set.For("pi.lan:22").CurrentState() != StateClosed {
		t.Error("an unrelated host must not be affected")
	}
	if set.For("nas.lan:22") != set.For("nas.lan:22") {
		t.Error("For should return the same breaker for the same key")
	}
	if set.Len() != 2 {
		t.Errorf("Len = %d, want 2", set.Len())
	}
}
