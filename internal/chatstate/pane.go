package chatstate

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/chat"
)

// PaneState is the lifecycle of one conversation's message pane.
type PaneState string

const (
	Idle           PaneState = "idle"
	LoadingInitial PaneState = "loading-initial"
	Ready          PaneState = "ready"
	LoadingMore    PaneState = "loading-more"
)

var paneTransitions = map[PaneState][]PaneState{
	Idle:           {LoadingInitial},
	LoadingInitial: {Ready, Idle},
	Ready:          {LoadingMore, Idle},
	LoadingMore:    {Ready, Idle},
}

// pane caches the messages of one conversation in chronological order.
// Live messages are cached even while the pane is idle.
type pane struct {
	state    PaneState
	messages []chat.Message
	ids      map[string]struct{}
	hasMore  bool

	// gen identifies the current load; a response for an older gen is discarded.
	gen    uint64
	cancel context.CancelFunc
}

func newPane() *pane {
	return &pane{state: Idle, ids: make(map[string]struct{}), hasMore: true}
}

func (p *pane) transition(to PaneState) error {
	if !slices.Contains(paneTransitions[p.state], to) {
		return fmt.Errorf("invalid pane transition from %s to %s", p.state, to)
	}
	p.state = to
	return nil
}

// begin starts a new load, returning its generation and a cancelable context.
func (p *pane) begin(ctx context.Context) (uint64, context.Context) {
	p.gen++
	ctx, p.cancel = context.WithCancel(ctx)
	return p.gen, ctx
}

// finish releases the context of the current load.
func (p *pane) finish() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// abort invalidates any in-flight load.
func (p *pane) abort() {
	p.finish()
	p.gen++
}

// append adds a live message at the tail unless its id is already cached.
func (p *pane) append(m chat.Message) bool {
	if _, dup := p.ids[m.ID]; dup {
		return false
	}
	p.ids[m.ID] = struct{}{}
	p.messages = append(p.messages, m)
	return true
}

// prepend inserts an older page before everything cached, skipping known ids.
// It returns the messages that were actually added.
func (p *pane) prepend(page []chat.Message) []chat.Message {
	added := make([]chat.Message, 0, len(page))
	for _, m := range page {
		if _, dup := p.ids[m.ID]; dup {
			continue
		}
		p.ids[m.ID] = struct{}{}
		added = append(added, m)
	}
	if len(added) == 0 {
		return nil
	}
	merged := make([]chat.Message, 0, len(added)+len(p.messages))
	merged = append(merged, added...)
	merged = append(merged, p.messages...)
	p.messages = merged
	return added
}

// merge folds a page into the cache in CreatedAt order, skipping known ids.
// Ties keep the page first.
func (p *pane) merge(page []chat.Message) []chat.Message {
	added := p.prepend(page)
	if len(added) == 0 || len(added) == len(p.messages) {
		return added
	}
	slices.SortStableFunc(p.messages, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return added
}

func (p *pane) markRead(messageID string) bool {
	if _, ok := p.ids[messageID]; !ok {
		return false
	}
	for i := range p.messages {
		if p.messages[i].ID == messageID {
			if p.messages[i].IsRead {
				return false
			}
			p.messages[i].IsRead = true
			return true
		}
	}
	return false
}

func (p *pane) snapshot() []chat.Message {
	return append([]chat.Message(nil), p.messages...)
}
