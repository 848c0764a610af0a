package bus

import "time"

// Event kinds published by the synchronizer. Subscribers filter by prefix ("chat.", "conn.").
const (
	ConnStatusChanged   = "conn.status_changed"
	ChatMessageAppended = "chat.message_appended"
	ChatMessageRead     = "chat.message_read"
	ChatHistoryLoaded   = "chat.history_loaded"
	ChatConversations   = "chat.conversations_changed"
	ChatActiveChanged   = "chat.active_changed"
	ChatUnreadChanged   = "chat.unread_changed"
	ChatTypingChanged   = "chat.typing_changed"
	ChatPaneState       = "chat.pane_state"
	PresenceChanged     = "presence.changed"
	NotifyMessage       = "notify.message"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
