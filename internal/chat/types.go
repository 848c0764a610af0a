package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind distinguishes direct conversations from groups.
type Kind string

const (
	Direct Kind = "direct"
	Group  Kind = "group"
)

// MessageType discriminates between text bodies and file attachments.
type MessageType string

const (
	TextMessage MessageType = "text"
	FileMessage MessageType = "file"
)

// ErrInvalidMessage is returned when a message violates the text/file exclusivity rule.
var ErrInvalidMessage = errors.New("invalid message")

// Attachment describes an uploaded file referenced by a file message.
type Attachment struct {
	Name     string `json:"fileName" validate:"required"`
	URL      string `json:"fileUrl" validate:"required,url"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"fileSize,omitempty" validate:"gte=0"`
}

// Message is a single chat message.
type Message struct {
	ID             string      `json:"_id" validate:"required"`
	ConversationID string      `json:"chatId" validate:"required"`
	SenderID       string      `json:"senderId" validate:"required"`
	Type           MessageType `json:"messageType" validate:"required,oneof=text file"`
	Content        string      `json:"content,omitempty"`
	File           *Attachment `json:"file,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	IsRead         bool        `json:"isRead"`
	ReplyTo        string      `json:"replyTo,omitempty"`
	Mentions       []string    `json:"mentions,omitempty"`
}

// Preview returns a short description used for conversation list previews.
func (m *Message) Preview() string {
	if m.Type == FileMessage && m.File != nil {
		return "[file] " + m.File.Name
	}
	return truncate(m.Content, 100)
}

// Conversation is a direct or group chat thread.
type Conversation struct {
	ID            string   `json:"_id" validate:"required"`
	Kind          Kind     `json:"kind" validate:"required,oneof=direct group"`
	Participants  []string `json:"users"`
	Name          string   `json:"chatName,omitempty"`
	RepositoryID  string   `json:"fileRepository,omitempty"`
	LatestMessage *Message `json:"latestMessage,omitempty"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// User is an entry of the backend user directory.
type User struct {
	ID    string `json:"_id" validate:"required"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a value using its struct tags.
func Validate(v any) error {
	return validate.Struct(v)
}

// ValidateMessage checks struct tags and that exactly one of body or attachment is set.
func ValidateMessage(m *Message) error {
	if err := Validate(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return CheckBody(m.Type, m.Content, m.File)
}

// ValidateConversation checks struct tags and that only groups carry a name.
func ValidateConversation(c *Conversation) error {
	if err := Validate(c); err != nil {
		return fmt.Errorf("invalid conversation: %w", err)
	}
	if c.Kind == Direct && c.Name != "" {
		return fmt.Errorf("invalid conversation %q: direct conversations have no name", c.ID)
	}
	if c.LatestMessage != nil {
		if err := ValidateMessage(c.LatestMessage); err != nil {
			return fmt.Errorf("conversation %q latest message: %w", c.ID, err)
		}
	}
	return nil
}

// CheckBody enforces the text/file exclusivity of a message body.
func CheckBody(t MessageType, content string, file *Attachment) error {
	switch t {
	case TextMessage:
		if content == "" {
			return fmt.Errorf("%w: text message without content", ErrInvalidMessage)
		}
		if file != nil {
			return fmt.Errorf("%w: text message with attachment", ErrInvalidMessage)
		}
	case FileMessage:
		if file == nil {
			return fmt.Errorf("%w: file message without attachment", ErrInvalidMessage)
		}
		if content != "" {
			return fmt.Errorf("%w: file message with text content", ErrInvalidMessage)
		}
		if err := Validate(file); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	default:
		return fmt.Errorf("%w: unknown message type %q", ErrInvalidMessage, t)
	}
	return nil
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
