package chatstate

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/protocol"
	"go.uber.org/zap"
)

// Arrival describes what ReceiveMessage did with an inbound message.
type Arrival struct {
	// Appended is false for a duplicate delivery; nothing else changed then.
	Appended     bool
	Active       bool
	FromSelf     bool
	Unread       int
	Conversation chat.Conversation
	ReceiptSent  bool
}

// ReceiveMessage appends a live message to its conversation unless the id is
// already cached, updates the preview and moves the conversation to the front.
// When the conversation is inactive and the sender is someone else the unread
// counter is incremented; when it is active a read receipt is emitted.
func (s *Store) ReceiveMessage(ctx context.Context, m chat.Message) Arrival {
	s.mu.Lock()
	p := s.paneLocked(m.ConversationID)
	if !p.append(m) {
		s.mu.Unlock()
		return Arrival{}
	}
	conv, known := s.convs[m.ConversationID]
	if !known {
		conv = &chat.Conversation{ID: m.ConversationID, Kind: chat.Direct, Participants: []string{m.SenderID}}
		if s.self != "" && s.self != m.SenderID {
			conv.Participants = append(conv.Participants, s.self)
		}
		s.convs[m.ConversationID] = conv
		s.logger.Debug("message for unlisted conversation", zap.String("conversation", m.ConversationID))
	}
	latest := m
	conv.LatestMessage = &latest
	s.moveToFrontLocked(m.ConversationID)

	a := Arrival{
		Appended: true,
		Active:   s.active == m.ConversationID,
		FromSelf: s.self != "" && m.SenderID == s.self,
	}
	var receipts []chat.Message
	switch {
	case !a.Active && !a.FromSelf:
		s.unread[m.ConversationID]++
		s.bus.Emit(bus.ChatUnreadChanged, UnreadChanged{ConversationID: m.ConversationID, Count: s.unread[m.ConversationID]})
	case a.Active && !a.FromSelf:
		receipts = s.claimReceiptsLocked([]chat.Message{m})
	}
	a.Unread = s.unread[m.ConversationID]
	a.Conversation = *conv
	self := s.self
	s.bus.Emit(bus.ChatMessageAppended, MessageAppended{ConversationID: m.ConversationID, MessageID: m.ID, SenderID: m.SenderID})
	s.bus.Emit(bus.ChatConversations, ConversationsChanged{Count: len(s.order)})
	s.mu.Unlock()

	a.ReceiptSent = s.sendReceipts(ctx, self, receipts) > 0
	return a
}

// MarkMessageRead flips the read flag of a message in every cached pane.
func (s *Store) MarkMessageRead(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for _, p := range s.panes {
		if p.markRead(messageID) {
			changed = true
		}
	}
	for _, c := range s.convs {
		if c.LatestMessage != nil && c.LatestMessage.ID == messageID && !c.LatestMessage.IsRead {
			latest := *c.LatestMessage
			latest.IsRead = true
			c.LatestMessage = &latest
			changed = true
		}
	}
	delete(s.receipts, messageID)
	if changed {
		s.bus.Emit(bus.ChatMessageRead, MessageRead{MessageID: messageID})
	}
	return changed
}

// claimReceiptsLocked returns the unread messages from others that have no
// receipt in flight yet and marks them as claimed.
func (s *Store) claimReceiptsLocked(msgs []chat.Message) []chat.Message {
	var out []chat.Message
	for _, m := range msgs {
		if m.IsRead || m.SenderID == s.self {
			continue
		}
		if _, pending := s.receipts[m.ID]; pending {
			continue
		}
		s.receipts[m.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (s *Store) sendReceipts(ctx context.Context, self string, msgs []chat.Message) int {
	sent := 0
	for _, m := range msgs {
		err := s.emit(ctx, protocol.MarkRead{MessageID: m.ID, ConversationID: m.ConversationID, UserID: self})
		if err != nil {
			s.mu.Lock()
			delete(s.receipts, m.ID)
			s.mu.Unlock()
			continue
		}
		sent++
	}
	return sent
}

// SelectConversation makes id the active conversation. It leaves the previous
// room, joins the new one, clears the unread counter, emits one read receipt
// per cached unread message from others and loads the first page when the
// pane is idle. Errors from the initial load are returned.
func (s *Store) SelectConversation(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("select conversation: %w", ErrUnknownConversation)
	}
	s.mu.Lock()
	prev := s.active
	if prev != "" && prev != id {
		s.deactivateLocked(prev)
	}
	s.active = id
	if prev != id {
		s.bus.Emit(bus.ChatActiveChanged, ActiveChanged{From: prev, To: id})
	}
	if _, ok := s.unread[id]; ok {
		delete(s.unread, id)
		s.bus.Emit(bus.ChatUnreadChanged, UnreadChanged{ConversationID: id})
	}
	p := s.paneLocked(id)
	receipts := s.claimReceiptsLocked(p.messages)
	self := s.self

	var (
		loadCtx context.Context
		gen     uint64
	)
	needLoad := p.state == Idle
	if needLoad {
		s.setPaneState(id, p, LoadingInitial)
		gen, loadCtx = p.begin(ctx)
	}
	s.mu.Unlock()

	if prev != "" && prev != id {
		_ = s.emit(ctx, protocol.LeaveChat{ConversationID: prev})
	}
	if prev != id {
		_ = s.emit(ctx, protocol.JoinChat{ConversationID: id})
	}
	s.sendReceipts(ctx, self, receipts)

	if !needLoad {
		return nil
	}
	return s.loadInitial(loadCtx, id, p, gen)
}

// Deselect clears the active conversation, cancelling any in-flight load and
// leaving its room.
func (s *Store) Deselect(ctx context.Context) error {
	s.mu.Lock()
	id := s.active
	if id == "" {
		s.mu.Unlock()
		return nil
	}
	s.deactivateLocked(id)
	s.active = ""
	s.bus.Emit(bus.ChatActiveChanged, ActiveChanged{From: id})
	s.mu.Unlock()

	_ = s.emit(ctx, protocol.LeaveChat{ConversationID: id})
	return nil
}

func (s *Store) deactivateLocked(id string) {
	p, ok := s.panes[id]
	if !ok {
		return
	}
	p.abort()
	if p.state != Idle {
		s.setPaneState(id, p, Idle)
	}
}

func (s *Store) loadInitial(ctx context.Context, id string, p *pane, gen uint64) error {
	page, err := s.backend.FetchMessages(ctx, id, s.opts.PageSize, 0)

	s.mu.Lock()
	if p2, ok := s.panes[id]; !ok || p2 != p || p.gen != gen || p.state != LoadingInitial {
		s.mu.Unlock()
		s.logger.Debug("discarding stale page", zap.String("conversation", id))
		return nil
	}
	p.finish()
	if err != nil {
		s.setPaneState(id, p, Idle)
		s.mu.Unlock()
		return fmt.Errorf("load messages for %s: %w", id, err)
	}
	added := p.merge(page)
	p.hasMore = len(page) >= s.opts.PageSize
	s.setPaneState(id, p, Ready)
	var receipts []chat.Message
	if s.active == id {
		receipts = s.claimReceiptsLocked(added)
	}
	self := s.self
	s.bus.Emit(bus.ChatHistoryLoaded, HistoryLoaded{ConversationID: id, Added: len(added), HasMore: p.hasMore})
	s.mu.Unlock()

	s.sendReceipts(context.WithoutCancel(ctx), self, receipts)
	return nil
}

// LoadMoreMessages fetches the next older page of a ready conversation and
// prepends the messages not already cached. Live messages appended during
// the fetch stay at the tail.
func (s *Store) LoadMoreMessages(ctx context.Context, id string) error {
	s.mu.Lock()
	p, ok := s.panes[id]
	switch {
	case !ok || p.state == Idle:
		s.mu.Unlock()
		return fmt.Errorf("load more %s: %w", id, ErrNotReady)
	case p.state == LoadingInitial || p.state == LoadingMore:
		s.mu.Unlock()
		return fmt.Errorf("load more %s: %w", id, ErrLoadInProgress)
	case !p.hasMore:
		s.mu.Unlock()
		return fmt.Errorf("load more %s: %w", id, ErrHistoryExhausted)
	}
	offset := len(p.messages)
	s.setPaneState(id, p, LoadingMore)
	gen, loadCtx := p.begin(ctx)
	s.mu.Unlock()

	page, err := s.backend.FetchMessages(loadCtx, id, s.opts.PageSize, offset)

	s.mu.Lock()
	defer s.mu.Unlock()
	if p2, ok := s.panes[id]; !ok || p2 != p || p.gen != gen || p.state != LoadingMore {
		s.logger.Debug("discarding stale page", zap.String("conversation", id))
		return nil
	}
	p.finish()
	if err != nil {
		s.setPaneState(id, p, Ready)
		return fmt.Errorf("load more %s: %w", id, err)
	}
	added := p.prepend(page)
	p.hasMore = len(page) >= s.opts.PageSize
	s.setPaneState(id, p, Ready)
	s.bus.Emit(bus.ChatHistoryLoaded, HistoryLoaded{ConversationID: id, Added: len(added), HasMore: p.hasMore})
	return nil
}

// Rejoin re-enters the room of the active conversation. It is run after
// every (re)connect since the server forgets room membership.
func (s *Store) Rejoin(ctx context.Context, e Emitter) {
	s.mu.Lock()
	id := s.active
	s.mu.Unlock()
	if id == "" {
		return
	}
	if err := e.Emit(ctx, protocol.JoinChat{ConversationID: id}); err != nil {
		s.logger.Warn("rejoin failed", zap.String("conversation", id), zap.Error(err))
	}
}

func (s *Store) moveToFrontLocked(id string) {
	for i, v := range s.order {
		if v == id {
			if i == 0 {
				return
			}
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = id
			return
		}
	}
	s.order = append([]string{id}, s.order...)
}
