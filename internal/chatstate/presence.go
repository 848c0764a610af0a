package chatstate

import "github.com/matheus3301/chatsync/internal/bus"

// SetOnline updates one user's presence. It reports whether the online set
// changed; repeating the current state is a no-op.
func (s *Store) SetOnline(userID string, online bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, present := s.online[userID]
	if present == online {
		return false
	}
	if online {
		s.online[userID] = struct{}{}
	} else {
		delete(s.online, userID)
	}
	s.bus.Emit(bus.PresenceChanged, PresenceChange{UserID: userID, Online: online, Count: len(s.online)})
	return true
}

// ReplaceOnline swaps the online set for the given list.
func (s *Store) ReplaceOnline(userIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		s.online[id] = struct{}{}
	}
	s.bus.Emit(bus.PresenceChanged, PresenceChange{Replaced: true, Count: len(s.online)})
}

// IsOnline reports whether a user is in the online set.
func (s *Store) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[userID]
	return ok
}

// OnlineUsers returns the online set, sorted.
func (s *Store) OnlineUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onlineLocked()
}

func (s *Store) onlineLocked() []string {
	return sortedKeys(s.online)
}
