package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	defer unsub()

	b.Emit(ChatMessageAppended, "m1")

	select {
	case evt := <-ch:
		if evt.Kind != ChatMessageAppended {
			t.Errorf("got kind %q, want %s", evt.Kind, ChatMessageAppended)
		}
		if evt.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", 10)
	defer unsub()

	b.Emit(ConnStatusChanged, nil)
	b.Emit(PresenceChanged, "u1")

	select {
	case evt := <-ch:
		if evt.Kind != PresenceChanged {
			t.Errorf("got kind %q, want %s", evt.Kind, PresenceChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 10)
	unsub()

	if n := b.Subscribers(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
	b.Emit(ChatUnreadChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	b.Emit(ChatTypingChanged, 1)
	b.Emit(ChatTypingChanged, 2)

	evt := <-ch
	if evt.Payload != 1 {
		t.Errorf("got payload %v, want 1", evt.Payload)
	}
	select {
	case evt := <-ch:
		t.Errorf("second event should have been dropped: %v", evt)
	default:
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Emit(ChatUnreadChanged, nil)
}
