// Package notify surfaces incoming messages for conversations that are not
// in view. Every sink is best-effort.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/metrics"
	"go.uber.org/zap"
)

// Notification describes a message that arrived in a background conversation.
type Notification struct {
	ConversationID string    `json:"conversationId"`
	Title          string    `json:"title"`
	SenderID       string    `json:"senderId"`
	MessageID      string    `json:"messageId"`
	Preview        string    `json:"preview"`
	Unread         int       `json:"unread"`
	At             time.Time `json:"at"`
}

// Sink delivers a notification through one channel.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// Notifier fans a notification out to its sinks.
type Notifier struct {
	sinks  []Sink
	logger *zap.Logger
}

// New creates a notifier over the given sinks.
func New(logger *zap.Logger, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sinks: sinks, logger: logger}
}

// Notify delivers n to every sink. A failing or panicking sink is logged and
// counted; it never stops the others.
func (n *Notifier) Notify(ctx context.Context, note Notification) {
	for _, s := range n.sinks {
		if err := deliver(ctx, s, note); err != nil {
			metrics.IncNotificationFailure(s.Name())
			n.logger.Warn("notification failed", zap.String("sink", s.Name()),
				zap.String("conversation", note.ConversationID), zap.Error(err))
		}
	}
}

func deliver(ctx context.Context, s Sink, note Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Notify(ctx, note)
}
