// Package presence answers on-demand presence queries for users that were
// not part of the initial online broadcast.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/protocol"
	"golang.org/x/sync/singleflight"
)

// ErrTimeout is returned when the server does not answer a query in time.
var ErrTimeout = errors.New("presence query timed out")

// Emitter writes outbound realtime events.
type Emitter interface {
	Emit(ctx context.Context, out protocol.Outbound) error
}

// Source reports presence already known locally.
type Source interface {
	IsOnline(userID string) bool
}

// Querier issues "check online status" requests and matches them with the
// "online status" answers. Concurrent queries for one user share a request.
type Querier struct {
	source  Source
	emitter Emitter
	timeout time.Duration
	group   singleflight.Group

	mu      sync.Mutex
	waiters map[string][]chan bool
}

// NewQuerier creates a querier. A zero timeout defaults to 5s.
func NewQuerier(source Source, emitter Emitter, timeout time.Duration) *Querier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Querier{
		source:  source,
		emitter: emitter,
		timeout: timeout,
		waiters: make(map[string][]chan bool),
	}
}

// Query reports whether a user is online, asking the server when the user is
// not in the local online set.
func (q *Querier) Query(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, errors.New("presence query: user id required")
	}
	if q.source.IsOnline(userID) {
		return true, nil
	}
	v, err, _ := q.group.Do(userID, func() (any, error) {
		return q.ask(ctx, userID)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (q *Querier) ask(ctx context.Context, userID string) (bool, error) {
	ch := make(chan bool, 1)
	q.mu.Lock()
	q.waiters[userID] = append(q.waiters[userID], ch)
	q.mu.Unlock()
	defer q.forget(userID, ch)

	if err := q.emitter.Emit(ctx, protocol.CheckOnlineStatus{UserID: userID}); err != nil {
		return false, fmt.Errorf("presence query %s: %w", userID, err)
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	select {
	case online := <-ch:
		return online, nil
	case <-timer.C:
		return false, fmt.Errorf("presence query %s: %w", userID, ErrTimeout)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve delivers an "online status" answer to every waiting query.
// It reports whether anyone was waiting.
func (q *Querier) Resolve(userID string, online bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	chans := q.waiters[userID]
	delete(q.waiters, userID)
	for _, ch := range chans {
		select {
		case ch <- online:
		default:
		}
	}
	return len(chans) > 0
}

// Pending returns the number of users with an unanswered query.
func (q *Querier) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

func (q *Querier) forget(userID string, ch chan bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	chans := q.waiters[userID]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(q.waiters, userID)
	} else {
		q.waiters[userID] = chans
	}
}
