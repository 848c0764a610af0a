package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ panic bool }

func (failingSink) Name() string { return "failing" }

func (f failingSink) Notify(context.Context, Notification) error {
	if f.panic {
		panic("boom")
	}
	return errors.New("permission denied")
}

func TestNotifyContinuesPastFailingSinks(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("notify.", 1)
	defer unsub()
	var out bytes.Buffer

	n := New(nil, failingSink{}, failingSink{panic: true}, Toast{Bus: b}, &Bell{W: &out})
	n.Notify(context.Background(), Notification{ConversationID: "c1", Title: "bob", Preview: "hi"})

	assert.Equal(t, "\a", out.String())
	select {
	case evt := <-ch:
		require.Equal(t, bus.NotifyMessage, evt.Kind)
		assert.Equal(t, "c1", evt.Payload.(Notification).ConversationID)
	case <-time.After(time.Second):
		t.Fatal("no toast published")
	}
}

func TestCommandSinkReportsMissingBinary(t *testing.T) {
	c := &Command{Path: "/nonexistent/notify-send"}
	assert.Error(t, c.Notify(context.Background(), Notification{Title: "t"}))
}
