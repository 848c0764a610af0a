package chatstate

import (
	"slices"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// SetTyping adds a user to a conversation's typing set and (re)arms its TTL.
// Repeated calls keep the user present without flicker.
func (s *Store) SetTyping(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if userID == s.self {
		return
	}
	key := typingKey{conversationID: conversationID, userID: userID}
	e, ok := s.typing[key]
	if !ok {
		e = &typingEntry{}
		s.typing[key] = e
	} else {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(s.opts.TypingTTL, func() { s.expireTyping(key, gen) })
	if !ok {
		s.bus.Emit(bus.ChatTypingChanged, TypingChanged{ConversationID: conversationID, Users: s.typingLocked(conversationID)})
	}
}

// ClearTyping removes a user from a conversation's typing set.
func (s *Store) ClearTyping(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := typingKey{conversationID: conversationID, userID: userID}
	e, ok := s.typing[key]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(s.typing, key)
	s.bus.Emit(bus.ChatTypingChanged, TypingChanged{ConversationID: conversationID, Users: s.typingLocked(conversationID)})
}

// expireTyping fires from the TTL timer; a fire from a superseded timer is a no-op.
func (s *Store) expireTyping(key typingKey, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.typing[key]
	if !ok || e.gen != gen {
		return
	}
	delete(s.typing, key)
	s.bus.Emit(bus.ChatTypingChanged, TypingChanged{ConversationID: key.conversationID, Users: s.typingLocked(key.conversationID)})
}

// TypingUsers returns the users currently typing in a conversation, sorted.
func (s *Store) TypingUsers(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingLocked(conversationID)
}

func (s *Store) typingLocked(conversationID string) []string {
	var out []string
	for k := range s.typing {
		if k.conversationID == conversationID {
			out = append(out, k.userID)
		}
	}
	slices.Sort(out)
	return out
}
