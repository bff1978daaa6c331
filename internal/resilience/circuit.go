package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the state of the breaker guarding backend sends.
type CircuitState int

const (
	// CircuitClosed is normal operation; sends flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects sends immediately after repeated failures.
	CircuitOpen
	// CircuitHalfOpen lets a single probe send test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a send is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("clock backend circuit is open")

// CircuitConfig controls the breaker guarding drain sends.
type CircuitConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default: 3 — within one drain pass a down backend should trip
	// quickly rather than burn the per-operation timeout on every entry.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a probe is
	// allowed. Default: 30s.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count toward the threshold. If nil,
	// only transient errors trip the breaker; backend rejections do not.
	ShouldTrip func(err error) bool

	// OnStateChange observes transitions, for logging.
	OnStateChange func(from, to CircuitState)
}

// Circuit is a three-state circuit breaker for the clock backend.
type Circuit struct {
	cfg CircuitConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time

	now func() time.Time // injectable for tests
}

// NewCircuit creates a breaker with the given config.
func NewCircuit(cfg CircuitConfig) *Circuit {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = IsTransient
	}
	return &Circuit{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Do runs fn through the breaker. Returns ErrCircuitOpen without calling fn
// when the circuit is open and the reset timeout has not elapsed.
func (c *Circuit) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := c.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	c.record(err)
	return err
}

// State returns the effective state, accounting for reset-timeout expiry.
func (c *Circuit) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CircuitOpen && c.now().Sub(c.openedAt) >= c.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return c.state
}

// Reset forces the breaker closed. Used by manual replay so an operator
// retry is never rejected by a stale open circuit.
func (c *Circuit) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transition(CircuitClosed)
	c.failures = 0
}

func (c *Circuit) admit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		if c.now().Sub(c.openedAt) >= c.cfg.ResetTimeout {
			c.transition(CircuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (c *Circuit) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil || !c.cfg.ShouldTrip(err) {
		if c.state != CircuitClosed {
			c.transition(CircuitClosed)
		}
		c.failures = 0
		return
	}

	c.failures++
	switch c.state {
	case CircuitHalfOpen:
		// A failed probe reopens immediately.
		c.openedAt = c.now()
		c.transition(CircuitOpen)
	case CircuitClosed:
		if c.failures >= c.cfg.FailureThreshold {
			c.openedAt = c.now()
			c.transition(CircuitOpen)
		}
	}
}

func (c *Circuit) transition(to CircuitState) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(from, to)
	}
}
