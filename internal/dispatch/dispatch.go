// Package dispatch routes inbound realtime events to the conversation store.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/realtime"
	"go.uber.org/zap"
)

// State is the mutation surface of the conversation store used by handlers.
type State interface {
	ReceiveMessage(ctx context.Context, m chat.Message) chatstate.Arrival
	SetTyping(conversationID, userID string)
	ClearTyping(conversationID, userID string)
	MarkMessageRead(messageID string) bool
	SetOnline(userID string, online bool) bool
	ReplaceOnline(userIDs []string)
	UpsertConversation(c chat.Conversation)
	RenameConversation(id, name string) bool
	RemoveConversation(id string) bool
}

// Notifier surfaces messages for conversations not in view.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

// Resolver completes pending presence queries.
type Resolver interface {
	Resolve(userID string, online bool) bool
}

// Names resolves user ids to display names.
type Names interface {
	DisplayName(userID string) string
}

type route func(ctx context.Context, in protocol.Inbound) error

// Dispatcher holds the fixed table of inbound event handlers.
type Dispatcher struct {
	state    State
	notifier Notifier
	presence Resolver
	names    Names
	logger   *zap.Logger
	timeout  time.Duration
	routes   map[string]route
}

// New builds the dispatcher. notifier, presence and names may be nil.
func New(state State, notifier Notifier, presence Resolver, names Names, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		state:    state,
		notifier: notifier,
		presence: presence,
		names:    names,
		logger:   logger,
		timeout:  10 * time.Second,
	}
	d.routes = map[string]route{
		protocol.EventConnected:       on(d.connected),
		protocol.EventMessageReceived: on(d.messageReceived),
		protocol.EventTyping:          on(d.typing),
		protocol.EventStopTyping:      on(d.stopTyping),
		protocol.EventMessageRead:     on(d.messageRead),
		protocol.EventUserOnline:      on(d.userOnline),
		protocol.EventUserOffline:     on(d.userOffline),
		protocol.EventOnlineStatus:    on(d.onlineStatus),
		protocol.EventOnlineUsers:     on(d.onlineUsers),
		protocol.EventGroupCreated:    on(d.groupCreated),
		protocol.EventGroupRenamed:    on(d.groupRenamed),
		protocol.EventGroupDeleted:    on(d.groupDeleted),
	}
	return d
}

func on[T protocol.Inbound](h func(context.Context, T) error) route {
	return func(ctx context.Context, in protocol.Inbound) error {
		v, ok := in.(T)
		if !ok {
			return fmt.Errorf("unexpected payload %T", in)
		}
		return h(ctx, v)
	}
}

// Events returns the handled event names, sorted.
func (d *Dispatcher) Events() []string {
	out := make([]string, 0, len(d.routes))
	for name := range d.routes {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Bind registers every handler on l.
func (d *Dispatcher) Bind(l realtime.Listener) {
	for name := range d.routes {
		l.On(name, func(data json.RawMessage) { d.Handle(name, data) })
	}
}

// Handle decodes and applies one inbound event. Failures are logged and
// counted, never returned and never retried.
func (d *Dispatcher) Handle(event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncHandlerFailure(event, "panic")
			d.logger.Error("handler panicked", zap.String("event", event), zap.Any("panic", r))
		}
	}()
	metrics.IncDispatched(event)

	r, ok := d.routes[event]
	if !ok {
		metrics.IncHandlerFailure(event, "unrouted")
		d.logger.Debug("no handler for event", zap.String("event", event))
		return
	}
	in, err := protocol.Decode(event, data)
	if err != nil {
		metrics.IncHandlerFailure(event, "decode")
		d.logger.Warn("dropping malformed event", zap.String("event", event), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := r(ctx, in); err != nil {
		metrics.IncHandlerFailure(event, "handler")
		d.logger.Warn("handler failed", zap.String("event", event), zap.Error(err))
	}
}

func (d *Dispatcher) connected(context.Context, protocol.Connected) error {
	d.logger.Debug("identity acknowledged")
	return nil
}

func (d *Dispatcher) messageReceived(ctx context.Context, ev protocol.MessageReceived) error {
	m := ev.Message
	a := d.state.ReceiveMessage(ctx, m)
	if !a.Appended || a.Active || a.FromSelf || d.notifier == nil {
		return nil
	}
	sender := m.SenderID
	if d.names != nil {
		sender = d.names.DisplayName(m.SenderID)
	}
	title := sender
	if a.Conversation.Kind == chat.Group && a.Conversation.Name != "" {
		title = a.Conversation.Name + ": " + sender
	}
	d.notifier.Notify(ctx, notify.Notification{
		ConversationID: m.ConversationID,
		Title:          title,
		SenderID:       m.SenderID,
		MessageID:      m.ID,
		Preview:        m.Preview(),
		Unread:         a.Unread,
		At:             m.CreatedAt,
	})
	return nil
}

func (d *Dispatcher) typing(_ context.Context, ev protocol.Typing) error {
	d.state.SetTyping(ev.ConversationID, ev.UserID)
	return nil
}

func (d *Dispatcher) stopTyping(_ context.Context, ev protocol.StopTyping) error {
	d.state.ClearTyping(ev.ConversationID, ev.UserID)
	return nil
}

func (d *Dispatcher) messageRead(_ context.Context, ev protocol.MessageRead) error {
	d.state.MarkMessageRead(ev.MessageID)
	return nil
}

func (d *Dispatcher) userOnline(_ context.Context, ev protocol.UserOnline) error {
	d.state.SetOnline(ev.UserID, true)
	return nil
}

func (d *Dispatcher) userOffline(_ context.Context, ev protocol.UserOffline) error {
	d.state.SetOnline(ev.UserID, false)
	return nil
}

func (d *Dispatcher) onlineStatus(_ context.Context, ev protocol.OnlineStatus) error {
	d.state.SetOnline(ev.UserID, ev.IsOnline)
	if d.presence != nil {
		d.presence.Resolve(ev.UserID, ev.IsOnline)
	}
	return nil
}

func (d *Dispatcher) onlineUsers(_ context.Context, ev protocol.OnlineUsers) error {
	d.state.ReplaceOnline(ev.UserIDs)
	return nil
}

func (d *Dispatcher) groupCreated(_ context.Context, ev protocol.GroupCreated) error {
	d.state.UpsertConversation(ev.Conversation)
	return nil
}

func (d *Dispatcher) groupRenamed(_ context.Context, ev protocol.GroupRenamed) error {
	d.state.RenameConversation(ev.ConversationID, ev.Name)
	return nil
}

func (d *Dispatcher) groupDeleted(_ context.Context, ev protocol.GroupDeleted) error {
	if d.state.RemoveConversation(ev.ConversationID) {
		d.logger.Info("active conversation deleted", zap.String("conversation", ev.ConversationID))
	}
	return nil
}
