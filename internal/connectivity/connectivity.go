// Package connectivity models the device's network state as an event source
// the operation queue subscribes to. The source is a capability injected at
// queue construction, never a global, so tests can drive transitions with a
// fake.
package connectivity

import "sync"

// State is the binary connectivity state.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Source emits connectivity-state transitions. Implementations must emit
// only on change, never on every probe.
type Source interface {
	// Watch returns a channel of state transitions. The channel is closed
	// when the source is closed.
	Watch() <-chan State

	// Current returns the last known state.
	Current() State

	// Close stops the source and closes all watch channels.
	Close()
}

// FakeSource is a hand-driven Source for tests and for wiring the queue in
// environments where the host supplies connectivity events directly.
type FakeSource struct {
	mu       sync.Mutex
	state    State
	watchers []chan State
	closed   bool
}

// NewFakeSource creates a FakeSource starting in the given state.
func NewFakeSource(initial State) *FakeSource {
	return &FakeSource{state: initial}
}

func (f *FakeSource) Watch() <-chan State {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan State, 8)
	if f.closed {
		close(ch)
		return ch
	}
	f.watchers = append(f.watchers, ch)
	return ch
}

func (f *FakeSource) Current() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Set transitions the fake to the given state, notifying watchers on change.
func (f *FakeSource) Set(s State) {
	f.mu.Lock()
	if f.closed || f.state == s {
		f.mu.Unlock()
		return
	}
	f.state = s
	watchers := make([]chan State, len(f.watchers))
	copy(watchers, f.watchers)
	f.mu.Unlock()

	for _, ch := range watchers {
		ch <- s
	}
}

func (f *FakeSource) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, ch := range f.watchers {
		close(ch)
	}
	f.watchers = nil
}
