// Package chatstate holds the synchronized conversation state of one user:
// message panes, unread counters, typing and online sets and the
// conversation list. The Store is the only writer of that state.
package chatstate

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/protocol"
	"go.uber.org/zap"
)

var (
	ErrNotReady            = errors.New("conversation pane not ready")
	ErrLoadInProgress      = errors.New("history load already in progress")
	ErrHistoryExhausted    = errors.New("no older messages")
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrNoIdentity          = errors.New("no signed-in user")
)

// Emitter writes outbound realtime events.
type Emitter interface {
	Emit(ctx context.Context, out protocol.Outbound) error
}

// Backend is the REST surface used for history and conversation management.
type Backend interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
	FetchMessages(ctx context.Context, conversationID string, limit, offset int) ([]chat.Message, error)
	CreateGroup(ctx context.Context, name string, userIDs []string) (*chat.Conversation, error)
	RenameGroup(ctx context.Context, conversationID, name string) (*chat.Conversation, error)
	AddMember(ctx context.Context, conversationID, userID string) (*chat.Conversation, error)
	RemoveMember(ctx context.Context, conversationID, userID string) (*chat.Conversation, error)
}

// Options tunes paging and typing behavior.
type Options struct {
	PageSize           int
	TypingTTL          time.Duration
	TypingIdle         time.Duration
	TypingEmitInterval time.Duration
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		PageSize:           30,
		TypingTTL:          2 * time.Second,
		TypingIdle:         3 * time.Second,
		TypingEmitInterval: time.Second,
	}
}

type typingKey struct {
	conversationID string
	userID         string
}

type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

// Store owns all synchronized chat state. Every mutation happens under mu;
// network calls and realtime emissions happen outside it.
type Store struct {
	emitter Emitter
	backend Backend
	bus     *bus.Bus
	logger  *zap.Logger
	opts    Options

	mu        sync.Mutex
	self      string
	active    string
	convs     map[string]*chat.Conversation
	order     []string
	panes     map[string]*pane
	unread    map[string]int
	typing    map[typingKey]*typingEntry
	online    map[string]struct{}
	receipts  map[string]struct{}
	typingOut map[string]*outboundTyping
}

// New creates an empty store. A nil bus or logger is allowed.
func New(emitter Emitter, backend Backend, b *bus.Bus, logger *zap.Logger, opts Options) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.PageSize <= 0 {
		opts.PageSize = def.PageSize
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = def.TypingTTL
	}
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = def.TypingIdle
	}
	if opts.TypingEmitInterval <= 0 {
		opts.TypingEmitInterval = def.TypingEmitInterval
	}
	s := &Store{
		emitter: emitter,
		backend: backend,
		bus:     b,
		logger:  logger,
		opts:    opts,
	}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	for _, p := range s.panes {
		p.abort()
	}
	for _, e := range s.typing {
		e.timer.Stop()
	}
	for _, ot := range s.typingOut {
		ot.stop()
	}
	s.active = ""
	s.convs = make(map[string]*chat.Conversation)
	s.order = nil
	s.panes = make(map[string]*pane)
	s.unread = make(map[string]int)
	s.typing = make(map[typingKey]*typingEntry)
	s.online = make(map[string]struct{})
	s.receipts = make(map[string]struct{})
	s.typingOut = make(map[string]*outboundTyping)
}

// SetSelf records the signed-in user. Switching to a different user drops
// all cached state.
func (s *Store) SetSelf(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == userID {
		return
	}
	if s.self != "" {
		s.resetLocked()
		s.bus.Emit(bus.ChatConversations, ConversationsChanged{})
	}
	s.self = userID
}

// Self returns the signed-in user id.
func (s *Store) Self() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Active returns the id of the conversation in view, or "".
func (s *Store) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Conversations returns the conversation list, most recent first.
func (s *Store) Conversations() []chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.convs[id])
	}
	return out
}

// Conversation returns one conversation by id.
func (s *Store) Conversation(id string) (chat.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return chat.Conversation{}, false
	}
	return *c, true
}

// Messages returns the cached messages of a conversation in chronological order.
func (s *Store) Messages(id string) []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panes[id]
	if !ok {
		return nil
	}
	return p.snapshot()
}

// Unread returns the unread counter of a conversation.
func (s *Store) Unread(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[id]
}

// PaneState returns the pane state of a conversation.
func (s *Store) PaneState(id string) PaneState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.panes[id]; ok {
		return p.state
	}
	return Idle
}

// HasMore reports whether older history may exist for a conversation.
func (s *Store) HasMore(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.panes[id]; ok {
		return p.hasMore
	}
	return true
}

// ConversationView is one row of a Snapshot.
type ConversationView struct {
	chat.Conversation
	Unread   int       `json:"unread"`
	Typing   []string  `json:"typing,omitempty"`
	Pane     PaneState `json:"pane"`
	HasMore  bool      `json:"hasMore"`
	Messages int       `json:"messages"`
}

// Snapshot is a consistent copy of the whole store.
type Snapshot struct {
	Self          string             `json:"self"`
	Active        string             `json:"active"`
	Conversations []ConversationView `json:"conversations"`
	Online        []string           `json:"online"`
}

// Snapshot returns the state of every conversation taken under one lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Self:          s.self,
		Active:        s.active,
		Conversations: make([]ConversationView, 0, len(s.order)),
		Online:        s.onlineLocked(),
	}
	for _, id := range s.order {
		v := ConversationView{
			Conversation: *s.convs[id],
			Unread:       s.unread[id],
			Typing:       s.typingLocked(id),
			Pane:         Idle,
			HasMore:      true,
		}
		if p, ok := s.panes[id]; ok {
			v.Pane = p.state
			v.HasMore = p.hasMore
			v.Messages = len(p.messages)
		}
		snap.Conversations = append(snap.Conversations, v)
	}
	return snap
}

func (s *Store) setPaneState(id string, p *pane, to PaneState) {
	from := p.state
	if err := p.transition(to); err != nil {
		s.logger.Warn("pane transition rejected", zap.String("conversation", id), zap.Error(err))
		return
	}
	s.bus.Emit(bus.ChatPaneState, PaneStateChanged{ConversationID: id, From: from, To: to})
}

func (s *Store) paneLocked(id string) *pane {
	p, ok := s.panes[id]
	if !ok {
		p = newPane()
		s.panes[id] = p
	}
	return p
}

// emit sends a best-effort event; failures are logged and returned.
func (s *Store) emit(ctx context.Context, out protocol.Outbound) error {
	if s.emitter == nil {
		return nil
	}
	err := s.emitter.Emit(ctx, out)
	if err != nil {
		s.logger.Warn("emit failed", zap.String("event", out.EventName()), zap.Error(err))
	}
	return err
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
