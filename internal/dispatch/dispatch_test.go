package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	handlers map[string]realtime.Handler
}

func (l *listener) On(event string, h realtime.Handler) { l.handlers[event] = h }
func (l *listener) Off(event string)                    { delete(l.handlers, event) }

func (l *listener) fire(t *testing.T, event string, payload any) {
	t.Helper()
	h, ok := l.handlers[event]
	require.True(t, ok, "no handler for %q", event)
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	h(data)
}

type recorder struct {
	mu     sync.Mutex
	events []protocol.Outbound
}

func (r *recorder) Emit(_ context.Context, out protocol.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, out)
	return nil
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

type notifications struct {
	mu    sync.Mutex
	notes []notify.Notification
	panic bool
}

func (n *notifications) Notify(_ context.Context, note notify.Notification) {
	if n.panic {
		panic("sound blocked")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

type resolver struct{ answers map[string]bool }

func (r *resolver) Resolve(id string, online bool) bool {
	r.answers[id] = online
	return true
}

type emptyBackend struct{}

func (emptyBackend) ListConversations(context.Context) ([]chat.Conversation, error) { return nil, nil }
func (emptyBackend) FetchMessages(context.Context, string, int, int) ([]chat.Message, error) {
	return nil, nil
}
func (emptyBackend) CreateGroup(context.Context, string, []string) (*chat.Conversation, error) {
	return nil, nil
}
func (emptyBackend) RenameGroup(context.Context, string, string) (*chat.Conversation, error) {
	return nil, nil
}
func (emptyBackend) AddMember(context.Context, string, string) (*chat.Conversation, error) {
	return nil, nil
}
func (emptyBackend) RemoveMember(context.Context, string, string) (*chat.Conversation, error) {
	return nil, nil
}

type fixture struct {
	store *chatstate.Store
	emit  *recorder
	notes *notifications
	pres  *resolver
	l     *listener
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		emit:  &recorder{},
		notes: &notifications{},
		pres:  &resolver{answers: map[string]bool{}},
		l:     &listener{handlers: map[string]realtime.Handler{}},
	}
	f.store = chatstate.New(f.emit, emptyBackend{}, bus.New(), nil, chatstate.Options{TypingTTL: 50 * time.Millisecond})
	f.store.SetSelf("u1")
	f.store.UpsertConversation(chat.Conversation{ID: "c1", Kind: chat.Direct, Participants: []string{"u1", "u2"}})
	New(f.store, f.notes, f.pres, nil, nil).Bind(f.l)
	return f
}

func message(id, sender string) chat.Message {
	return chat.Message{ID: id, ConversationID: "c1", SenderID: sender, Type: chat.TextMessage, Content: "hello", CreatedAt: time.Now()}
}

func TestBindRegistersEveryEvent(t *testing.T) {
	f := newFixture(t)
	d := New(f.store, nil, nil, nil, nil)
	assert.Len(t, f.l.handlers, len(d.Events()))
	assert.Contains(t, d.Events(), protocol.EventMessageReceived)
	assert.Contains(t, d.Events(), protocol.EventOnlineUsers)
}

func TestDuplicateDeliveryAppendsOnce(t *testing.T) {
	f := newFixture(t)
	f.l.fire(t, protocol.EventMessageReceived, message("m1", "u2"))
	f.l.fire(t, protocol.EventMessageReceived, message("m1", "u2"))

	assert.Len(t, f.store.Messages("c1"), 1)
	assert.Equal(t, 1, f.store.Unread("c1"))
	assert.Len(t, f.notes.notes, 1)
}

func TestInactiveMessagesCountAndNotify(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"m1", "m2", "m3"} {
		f.l.fire(t, protocol.EventMessageReceived, message(id, "u2"))
	}

	assert.Equal(t, 3, f.store.Unread("c1"))
	require.Len(t, f.notes.notes, 3)
	assert.Equal(t, "u2", f.notes.notes[2].Title)
	assert.Equal(t, 3, f.notes.notes[2].Unread)

	require.NoError(t, f.store.SelectConversation(context.Background(), "c1"))
	assert.Equal(t, 0, f.store.Unread("c1"))
	assert.Equal(t, 3, f.emit.count(protocol.EventMarkRead))
}

func TestActiveMessageIsMarkedRead(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SelectConversation(context.Background(), "c1"))

	f.l.fire(t, protocol.EventMessageReceived, message("m1", "u2"))

	assert.Equal(t, 1, f.emit.count(protocol.EventMarkRead))
	assert.Empty(t, f.notes.notes)
	assert.Equal(t, 0, f.store.Unread("c1"))
}

func TestNotificationFailureKeepsMessage(t *testing.T) {
	f := newFixture(t)
	f.notes.panic = true

	f.l.fire(t, protocol.EventMessageReceived, message("m1", "u2"))
	f.l.fire(t, protocol.EventMessageReceived, message("m2", "u2"))

	assert.Len(t, f.store.Messages("c1"), 2)
	assert.Equal(t, 2, f.store.Unread("c1"))
	assert.Len(t, f.l.handlers, len(New(f.store, nil, nil, nil, nil).Events()))
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	f := newFixture(t)
	f.l.handlers[protocol.EventMessageReceived](json.RawMessage(`{"_id":"m1"}`))
	f.l.handlers[protocol.EventTyping](json.RawMessage(`not json`))

	assert.Empty(t, f.store.Messages("c1"))
	f.l.fire(t, protocol.EventMessageReceived, message("m2", "u2"))
	assert.Len(t, f.store.Messages("c1"), 1)
}

func TestTypingEvents(t *testing.T) {
	f := newFixture(t)
	f.l.fire(t, protocol.EventTyping, protocol.Typing{ConversationID: "c1", UserID: "u2"})
	assert.Equal(t, []string{"u2"}, f.store.TypingUsers("c1"))

	f.l.fire(t, protocol.EventStopTyping, protocol.StopTyping{ConversationID: "c1", UserID: "u2"})
	assert.Empty(t, f.store.TypingUsers("c1"))

	f.l.fire(t, protocol.EventTyping, protocol.Typing{ConversationID: "c1", UserID: "u2"})
	assert.Eventually(t, func() bool { return len(f.store.TypingUsers("c1")) == 0 },
		300*time.Millisecond, 5*time.Millisecond)
}

func TestMessageReadEvent(t *testing.T) {
	f := newFixture(t)
	f.l.fire(t, protocol.EventMessageReceived, message("m1", "u1"))
	f.l.fire(t, protocol.EventMessageRead, protocol.MessageRead{MessageID: "m1"})

	assert.True(t, f.store.Messages("c1")[0].IsRead)
}

func TestPresenceEvents(t *testing.T) {
	f := newFixture(t)

	f.l.fire(t, protocol.EventUserOffline, protocol.UserOffline{UserID: "u2"})
	assert.Empty(t, f.store.OnlineUsers())

	f.l.fire(t, protocol.EventUserOnline, protocol.UserOnline{UserID: "u2"})
	f.l.fire(t, protocol.EventUserOnline, protocol.UserOnline{UserID: "u2"})
	assert.Equal(t, []string{"u2"}, f.store.OnlineUsers())

	f.l.fire(t, protocol.EventOnlineUsers, protocol.OnlineUsers{UserIDs: []string{"u3"}})
	assert.Equal(t, []string{"u3"}, f.store.OnlineUsers())

	f.l.fire(t, protocol.EventOnlineStatus, protocol.OnlineStatus{UserID: "u4", IsOnline: true})
	assert.True(t, f.store.IsOnline("u4"))
	assert.Equal(t, map[string]bool{"u4": true}, f.pres.answers)
}

func TestGroupEvents(t *testing.T) {
	f := newFixture(t)
	f.l.fire(t, protocol.EventGroupCreated, protocol.GroupCreated{
		Conversation: chat.Conversation{ID: "g1", Kind: chat.Group, Name: "team", Participants: []string{"u1", "u2", "u3"}},
	})
	require.Equal(t, "g1", f.store.Conversations()[0].ID)

	f.l.fire(t, protocol.EventGroupRenamed, protocol.GroupRenamed{ConversationID: "g1", Name: "crew"})
	c, _ := f.store.Conversation("g1")
	assert.Equal(t, "crew", c.Name)

	require.NoError(t, f.store.SelectConversation(context.Background(), "g1"))
	f.l.fire(t, protocol.EventGroupDeleted, protocol.GroupDeleted{ConversationID: "g1"})
	_, ok := f.store.Conversation("g1")
	assert.False(t, ok)
	assert.Equal(t, "", f.store.Active())
}
