package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State is the lifecycle state of the realtime connection handle.
type State string

const (
	Absent       State = "ABSENT"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	Disconnected State = "DISCONNECTED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Absent:       {Connecting},
	Connecting:   {Connected, Reconnecting, Disconnected, Absent},
	Connected:    {Reconnecting, Disconnected, Absent},
	Reconnecting: {Connected, Disconnected, Absent},
	Disconnected: {Connecting, Absent},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Absent state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Absent,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Live reports whether the connection is established.
func (m *Machine) Live() bool {
	return m.Current() == Connected
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
	m.bus.Emit(bus.ConnStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
