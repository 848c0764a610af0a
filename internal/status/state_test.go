package status

import (
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *Machine, states ...State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Absent {
		t.Errorf("initial state = %s, want ABSENT", m.Current())
	}
	if m.Live() {
		t.Error("absent machine reported live")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		path []State
		to   State
	}{
		{nil, Connecting},
		{[]State{Connecting}, Connected},
		{[]State{Connecting}, Reconnecting},
		{[]State{Connecting}, Absent},
		{[]State{Connecting, Connected}, Reconnecting},
		{[]State{Connecting, Connected}, Absent},
		{[]State{Connecting, Connected, Reconnecting}, Connected},
		{[]State{Connecting, Connected, Reconnecting}, Disconnected},
		{[]State{Connecting, Disconnected}, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.path...)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(-> %s) error = %v", tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(ABSENT -> CONNECTED) should fail")
	}
	walkTo(t, m, Connecting, Connected)
	if err := m.Transition(Connecting); err == nil {
		t.Error("Transition(CONNECTED -> CONNECTING) should fail")
	}
	if !m.Live() {
		t.Error("connected machine should be live")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("conn.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Connecting)

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
		}
		if change.From != Absent || change.To != Connecting {
			t.Errorf("change = %+v, want ABSENT->CONNECTING", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status event")
	}
}
