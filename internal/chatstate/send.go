package chatstate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/protocol"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SendRequest is an outgoing message.
type SendRequest struct {
	ConversationID string
	Type           chat.MessageType
	Content        string
	File           *chat.Attachment
	ReplyTo        string
	Mentions       []string
}

// SendMessage emits a new message and returns its client id. Nothing is
// appended locally: the message shows up once the server echoes it back.
func (s *Store) SendMessage(ctx context.Context, req SendRequest) (string, error) {
	if req.ConversationID == "" {
		return "", fmt.Errorf("send message: %w", ErrUnknownConversation)
	}
	if req.Type == "" {
		req.Type = chat.TextMessage
	}
	if err := chat.CheckBody(req.Type, req.Content, req.File); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	self := s.Self()
	if self == "" {
		return "", fmt.Errorf("send message: %w", ErrNoIdentity)
	}

	s.stopTyping(ctx, req.ConversationID)

	out := protocol.NewMessage{
		ClientID:       uuid.NewString(),
		ConversationID: req.ConversationID,
		SenderID:       self,
		Type:           req.Type,
		Content:        req.Content,
		File:           req.File,
		ReplyTo:        req.ReplyTo,
		Mentions:       req.Mentions,
	}
	if s.emitter == nil {
		return "", fmt.Errorf("send message: no realtime channel")
	}
	if err := s.emitter.Emit(ctx, out); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return out.ClientID, nil
}

// outboundTyping tracks our own typing announcement for one conversation.
type outboundTyping struct {
	limiter *rate.Limiter
	active  bool
	gen     uint64
	timer   *time.Timer
}

func (ot *outboundTyping) stop() {
	if ot.timer != nil {
		ot.timer.Stop()
		ot.timer = nil
	}
}

// NotifyTyping announces that the signed-in user is typing in a conversation.
// Emissions are throttled; a stop typing event follows after the idle period
// unless NotifyTyping is called again.
func (s *Store) NotifyTyping(ctx context.Context, id string) error {
	s.mu.Lock()
	self := s.self
	if self == "" {
		s.mu.Unlock()
		return fmt.Errorf("notify typing: %w", ErrNoIdentity)
	}
	ot, ok := s.typingOut[id]
	if !ok {
		ot = &outboundTyping{limiter: rate.NewLimiter(rate.Every(s.opts.TypingEmitInterval), 1)}
		s.typingOut[id] = ot
	}
	allow := ot.limiter.Allow() || !ot.active
	ot.active = true
	ot.gen++
	gen := ot.gen
	ot.stop()
	ot.timer = time.AfterFunc(s.opts.TypingIdle, func() { s.typingIdle(id, gen) })
	s.mu.Unlock()

	if !allow {
		return nil
	}
	if err := s.emit(ctx, protocol.Typing{ConversationID: id, UserID: self}); err != nil {
		return fmt.Errorf("notify typing: %w", err)
	}
	return nil
}

func (s *Store) typingIdle(id string, gen uint64) {
	s.mu.Lock()
	ot, ok := s.typingOut[id]
	if !ok || ot.gen != gen || !ot.active {
		s.mu.Unlock()
		return
	}
	ot.active = false
	ot.timer = nil
	self := s.self
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.emit(ctx, protocol.StopTyping{ConversationID: id, UserID: self})
}

func (s *Store) stopTyping(ctx context.Context, id string) {
	s.mu.Lock()
	ot, ok := s.typingOut[id]
	if !ok || !ot.active {
		s.mu.Unlock()
		return
	}
	ot.active = false
	ot.gen++
	ot.stop()
	self := s.self
	s.mu.Unlock()

	if err := s.emit(ctx, protocol.StopTyping{ConversationID: id, UserID: self}); err != nil {
		s.logger.Debug("stop typing not delivered", zap.String("conversation", id))
	}
}
