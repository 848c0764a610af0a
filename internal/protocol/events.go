package protocol

import "github.com/matheus3301/chatsync/internal/chat"

// Event names exchanged over the realtime channel.
const (
	EventSetup             = "setup"
	EventConnected         = "connected"
	EventJoinChat          = "join chat"
	EventLeaveChat         = "leave chat"
	EventNewMessage        = "new message"
	EventMessageReceived   = "message received"
	EventTyping            = "typing"
	EventStopTyping        = "stop typing"
	EventMarkRead          = "mark message read"
	EventMessageRead       = "message read"
	EventCheckOnlineStatus = "check online status"
	EventOnlineStatus      = "online status"
	EventUserOnline        = "user online"
	EventUserOffline       = "user offline"
	EventOnlineUsers       = "online users"
	EventGroupCreated      = "group created"
	EventGroupRenamed      = "group renamed"
	EventGroupDeleted      = "group deleted"
)

// Inbound is an event decoded from the server.
type Inbound interface {
	EventName() string
}

// Outbound is an event the client emits to the server.
type Outbound interface {
	EventName() string
}

// Setup announces the connection's identity. It must be the first frame after every connect.
type Setup struct {
	UserID string `json:"userId" validate:"required"`
}

func (Setup) EventName() string { return EventSetup }

// Connected acknowledges a setup.
type Connected struct{}

func (Connected) EventName() string { return EventConnected }

// JoinChat subscribes the connection to a conversation room.
type JoinChat struct {
	ConversationID string `json:"chatId" validate:"required"`
}

func (JoinChat) EventName() string { return EventJoinChat }

// LeaveChat unsubscribes the connection from a conversation room.
type LeaveChat struct {
	ConversationID string `json:"chatId" validate:"required"`
}

func (LeaveChat) EventName() string { return EventLeaveChat }

// NewMessage asks the server to persist and fan out a message.
type NewMessage struct {
	ClientID       string           `json:"clientId" validate:"required"`
	ConversationID string           `json:"chatId" validate:"required"`
	SenderID       string           `json:"senderId" validate:"required"`
	Type           chat.MessageType `json:"messageType" validate:"required,oneof=text file"`
	Content        string           `json:"content,omitempty"`
	File           *chat.Attachment `json:"file,omitempty"`
	ReplyTo        string           `json:"replyTo,omitempty"`
	Mentions       []string         `json:"mentions,omitempty"`
}

func (NewMessage) EventName() string { return EventNewMessage }

// MessageReceived carries a persisted message fanned out by the server.
type MessageReceived struct {
	Message chat.Message
}

func (MessageReceived) EventName() string { return EventMessageReceived }

// Typing reports that a user started typing in a conversation.
type Typing struct {
	ConversationID string `json:"chatId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

func (Typing) EventName() string { return EventTyping }

// StopTyping reports that a user stopped typing in a conversation.
type StopTyping struct {
	ConversationID string `json:"chatId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

func (StopTyping) EventName() string { return EventStopTyping }

// MarkRead is a read receipt for a single message.
type MarkRead struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"chatId" validate:"required"`
	UserID         string `json:"userId" validate:"required"`
}

func (MarkRead) EventName() string { return EventMarkRead }

// MessageRead tells the client a message has been read.
type MessageRead struct {
	MessageID      string `json:"messageId" validate:"required"`
	ConversationID string `json:"chatId,omitempty"`
}

func (MessageRead) EventName() string { return EventMessageRead }

// CheckOnlineStatus queries the presence of a single user.
type CheckOnlineStatus struct {
	UserID string `json:"userId" validate:"required"`
}

func (CheckOnlineStatus) EventName() string { return EventCheckOnlineStatus }

// OnlineStatus answers a CheckOnlineStatus.
type OnlineStatus struct {
	UserID   string `json:"userId" validate:"required"`
	IsOnline bool   `json:"isOnline"`
}

func (OnlineStatus) EventName() string { return EventOnlineStatus }

// UserOnline is a presence broadcast.
type UserOnline struct {
	UserID string `json:"userId" validate:"required"`
}

func (UserOnline) EventName() string { return EventUserOnline }

// UserOffline is a presence broadcast.
type UserOffline struct {
	UserID string `json:"userId" validate:"required"`
}

func (UserOffline) EventName() string { return EventUserOffline }

// OnlineUsers is the full online list sent after setup.
type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

func (OnlineUsers) EventName() string { return EventOnlineUsers }

// GroupCreated broadcasts a newly created group conversation.
type GroupCreated struct {
	Conversation chat.Conversation `json:"chat"`
}

func (GroupCreated) EventName() string { return EventGroupCreated }

// GroupRenamed broadcasts a group name change.
type GroupRenamed struct {
	ConversationID string `json:"chatId" validate:"required"`
	Name           string `json:"chatName" validate:"required"`
}

func (GroupRenamed) EventName() string { return EventGroupRenamed }

// GroupDeleted broadcasts the removal of a group conversation.
type GroupDeleted struct {
	ConversationID string `json:"chatId" validate:"required"`
}

func (GroupDeleted) EventName() string { return EventGroupDeleted }
