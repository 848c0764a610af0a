package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/chatstate"
	"google.golang.org/protobuf/types/known/structpb"
)

type StatusReply struct {
	Session       string    `json:"session"`
	State         string    `json:"state"`
	UserID        string    `json:"userId,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitzero"`
	UptimeMs      int64     `json:"uptimeMs"`
	Active        string    `json:"active,omitempty"`
	Conversations int       `json:"conversations"`
	Online        int       `json:"online"`
	CachedUsers   int64     `json:"cachedUsers"`
}

type LoginRequest struct {
	Token string `json:"token"`
}

type LoginReply struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

type ConversationsReply struct {
	Active        string                       `json:"active,omitempty"`
	Conversations []chatstate.ConversationView `json:"conversations"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type MessagesReply struct {
	ConversationID string              `json:"conversationId"`
	Pane           chatstate.PaneState `json:"pane"`
	HasMore        bool                `json:"hasMore"`
	Unread         int                 `json:"unread"`
	Typing         []string            `json:"typing,omitempty"`
	Messages       []chat.Message      `json:"messages"`
}

type SendRequest struct {
	ConversationID string           `json:"conversationId"`
	Type           chat.MessageType `json:"type,omitempty"`
	Content        string           `json:"content,omitempty"`
	File           *chat.Attachment `json:"file,omitempty"`
	ReplyTo        string           `json:"replyTo,omitempty"`
	Mentions       []string         `json:"mentions,omitempty"`
}

type SendReply struct {
	ClientID string `json:"clientId"`
}

type UserRequest struct {
	UserID string `json:"userId"`
}

type PresenceReply struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type UsersReply struct {
	Users []chat.User `json:"users"`
}

type CreateGroupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type RenameRequest struct {
	ConversationID string `json:"conversationId"`
	Name           string `json:"name"`
}

type MemberRequest struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ConversationReply struct {
	Conversation chat.Conversation `json:"conversation"`
}

type WatchRequest struct {
	// Namespace filters bus events by prefix, e.g. "chat."; empty means all.
	Namespace string `json:"namespace,omitempty"`
}

// EventEnvelope is one bus event streamed by WatchEvents.
type EventEnvelope struct {
	ID         string          `json:"id"`
	Session    string          `json:"session"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
