package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func transientErr() error {
	return NewTransientError(errors.New("backend unavailable"), 503)
}

func TestCircuit_OpensAfterThreshold(t *testing.T) {
	c := NewCircuit(CircuitConfig{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		_ = c.Do(context.Background(), func(context.Context) error { return transientErr() })
	}
	if got := c.State(); got != CircuitOpen {
		t.Fatalf("state = %v, want open", got)
	}

	err := c.Do(context.Background(), func(context.Context) error {
		t.Fatal("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuit_RejectionsDoNotTrip(t *testing.T) {
	c := NewCircuit(CircuitConfig{FailureThreshold: 2})

	// Permanent backend rejections must not open the circuit.
	for i := 0; i < 5; i++ {
		_ = c.Do(context.Background(), func(context.Context) error {
			return errors.New("worker not assigned to job")
		})
	}
	if got := c.State(); got != CircuitClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestCircuit_HalfOpenProbeClosesOnSuccess(t *testing.T) {
	c := NewCircuit(CircuitConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	_ = c.Do(context.Background(), func(context.Context) error { return transientErr() })
	if c.State() != CircuitOpen {
		t.Fatal("expected open after threshold")
	}

	now = base.Add(11 * time.Second)
	if c.State() != CircuitHalfOpen {
		t.Fatal("expected half-open after reset timeout")
	}

	if err := c.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if got := c.State(); got != CircuitClosed {
		t.Errorf("state after successful probe = %v, want closed", got)
	}
}

func TestCircuit_HalfOpenProbeReopensOnFailure(t *testing.T) {
	c := NewCircuit(CircuitConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second})
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base
	c.now = func() time.Time { return now }

	_ = c.Do(context.Background(), func(context.Context) error { return transientErr() })
	now = base.Add(11 * time.Second)

	_ = c.Do(context.Background(), func(context.Context) error { return transientErr() })
	if got := c.State(); got != CircuitOpen {
		t.Errorf("state after failed probe = %v, want open", got)
	}
}

func TestCircuit_ResetForcesClosed(t *testing.T) {
	c := NewCircuit(CircuitConfig{FailureThreshold: 1})
	_ = c.Do(context.Background(), func(context.Context) error { return transientErr() })
	c.Reset()
	if got := c.State(); got != CircuitClosed {
		t.Errorf("state after reset = %v, want closed", got)
	}
}
