package chatstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/protocol"
	"go.uber.org/zap"
)

// ErrInvalidGroup is returned for group requests the backend would reject.
var ErrInvalidGroup = errors.New("invalid group")

// LoadConversations merges the backend's conversation list into the store.
// Invalid entries are skipped. A cached preview newer than the backend's, or
// already marked read, is kept. Conversations missing from the list survive
// only while they hold cached messages or unread counts. The list is ordered
// by latest message, newest first.
func (s *Store) LoadConversations(ctx context.Context) error {
	convs, err := s.backend.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make(map[string]*chat.Conversation, len(convs))
	order := make([]string, 0, len(convs))
	for i := range convs {
		c := convs[i]
		if err := chat.ValidateConversation(&c); err != nil {
			s.logger.Warn("skipping invalid conversation", zap.String("conversation", c.ID), zap.Error(err))
			continue
		}
		if _, dup := merged[c.ID]; dup {
			continue
		}
		if old, ok := s.convs[c.ID]; ok {
			c.LatestMessage = newerPreview(old.LatestMessage, c.LatestMessage)
		}
		merged[c.ID] = &c
		order = append(order, c.ID)
	}
	for _, id := range s.order {
		if _, ok := merged[id]; ok {
			continue
		}
		_, cached := s.panes[id]
		if !cached && s.unread[id] == 0 {
			continue
		}
		merged[id] = s.convs[id]
		order = append(order, id)
	}
	slices.SortStableFunc(order, func(a, b string) int {
		return latestAt(merged[b]).Compare(latestAt(merged[a]))
	})
	s.convs = merged
	s.order = order
	s.bus.Emit(bus.ChatConversations, ConversationsChanged{Count: len(s.order)})
	return nil
}

// newerPreview picks the later of the cached and fetched previews. The read
// flag never goes back to false for the same message.
func newerPreview(cached, fetched *chat.Message) *chat.Message {
	switch {
	case cached == nil:
		return fetched
	case fetched == nil:
		return cached
	case cached.ID == fetched.ID:
		if cached.IsRead && !fetched.IsRead {
			m := *fetched
			m.IsRead = true
			return &m
		}
		return fetched
	case cached.CreatedAt.After(fetched.CreatedAt):
		return cached
	}
	return fetched
}

func latestAt(c *chat.Conversation) time.Time {
	if c == nil || c.LatestMessage == nil {
		return time.Time{}
	}
	return c.LatestMessage.CreatedAt
}

// UpsertConversation inserts a new conversation at the front, or replaces the
// metadata of a known one while keeping its latest message when the update has none.
func (s *Store) UpsertConversation(c chat.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(c)
}

func (s *Store) upsertLocked(c chat.Conversation) {
	if old, ok := s.convs[c.ID]; ok {
		if c.LatestMessage == nil {
			c.LatestMessage = old.LatestMessage
		}
		*old = c
	} else {
		s.convs[c.ID] = &c
		s.order = append([]string{c.ID}, s.order...)
	}
	s.bus.Emit(bus.ChatConversations, ConversationsChanged{Count: len(s.order)})
}

// RenameConversation sets a conversation's display name.
func (s *Store) RenameConversation(id, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok || c.Name == name {
		return false
	}
	c.Name = name
	s.bus.Emit(bus.ChatConversations, ConversationsChanged{Count: len(s.order)})
	return true
}

// RemoveConversation drops a conversation and everything cached for it.
// It reports whether the conversation was the active one, which is deselected.
func (s *Store) RemoveConversation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[id]; !ok {
		return false
	}
	delete(s.convs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if p, ok := s.panes[id]; ok {
		p.abort()
		delete(s.panes, id)
	}
	delete(s.unread, id)
	for k, e := range s.typing {
		if k.conversationID == id {
			e.timer.Stop()
			delete(s.typing, k)
		}
	}
	if ot, ok := s.typingOut[id]; ok {
		ot.stop()
		delete(s.typingOut, id)
	}
	wasActive := s.active == id
	if wasActive {
		s.active = ""
		s.bus.Emit(bus.ChatActiveChanged, ActiveChanged{From: id})
	}
	s.bus.Emit(bus.ChatConversations, ConversationsChanged{Count: len(s.order)})
	return wasActive
}

// CreateGroup creates a group with the signed-in user and at least two others.
func (s *Store) CreateGroup(ctx context.Context, name string, members []string) (chat.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Conversation{}, fmt.Errorf("create group: %w: name required", ErrInvalidGroup)
	}
	if len(members) < 2 {
		return chat.Conversation{}, fmt.Errorf("create group: %w: at least 2 members required", ErrInvalidGroup)
	}
	c, err := s.backend.CreateGroup(ctx, name, members)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("create group: %w", err)
	}
	s.UpsertConversation(*c)
	_ = s.emit(ctx, protocol.GroupCreated{Conversation: *c})
	return *c, nil
}

// RenameGroup renames a group conversation.
func (s *Store) RenameGroup(ctx context.Context, id, name string) (chat.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return chat.Conversation{}, fmt.Errorf("rename group: %w: name required", ErrInvalidGroup)
	}
	c, err := s.backend.RenameGroup(ctx, id, name)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("rename group: %w", err)
	}
	s.UpsertConversation(*c)
	_ = s.emit(ctx, protocol.GroupRenamed{ConversationID: id, Name: c.Name})
	return *c, nil
}

// AddMember adds a user to a group conversation.
func (s *Store) AddMember(ctx context.Context, id, userID string) (chat.Conversation, error) {
	c, err := s.backend.AddMember(ctx, id, userID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("add member: %w", err)
	}
	s.UpsertConversation(*c)
	return *c, nil
}

// RemoveMember removes a user from a group conversation. Removing the
// signed-in user drops the conversation locally.
func (s *Store) RemoveMember(ctx context.Context, id, userID string) (chat.Conversation, error) {
	c, err := s.backend.RemoveMember(ctx, id, userID)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("remove member: %w", err)
	}
	if userID == s.Self() {
		if s.RemoveConversation(id) {
			_ = s.emit(ctx, protocol.LeaveChat{ConversationID: id})
		}
		return *c, nil
	}
	s.UpsertConversation(*c)
	return *c, nil
}
