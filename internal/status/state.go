package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/caval92/tgd/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Idle          State = "IDLE"
	Bootstrapping State = "BOOTSTRAPPING"
	Incremental   State = "INCREMENTAL"
	Listening     State = "LISTENING"
	Stopping      State = "STOPPING"
	Error         State = "ERROR"
)

// validTransitions defines allowed state transitions. Incremental and
// Listening alternate while the daemon runs periodic backfill alongside
// the live subscription.
var validTransitions = map[State][]State{
	Idle:          {Bootstrapping, Incremental, Listening, Stopping, Error},
	Bootstrapping: {Incremental, Idle, Stopping, Error},
	Incremental:   {Listening, Idle, Stopping, Error},
	Listening:     {Incremental, Stopping, Error},
	Stopping:      {Idle},
	Error:         {Idle, Stopping},
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindStatusChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
