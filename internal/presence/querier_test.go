package presence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type onlineSet map[string]bool

func (s onlineSet) IsOnline(id string) bool { return s[id] }

type countingEmitter struct {
	calls atomic.Int32
	sent  chan string
	err   error
}

func (e *countingEmitter) Emit(_ context.Context, out protocol.Outbound) error {
	e.calls.Add(1)
	if e.err != nil {
		return e.err
	}
	if e.sent != nil {
		e.sent <- out.(protocol.CheckOnlineStatus).UserID
	}
	return nil
}

func TestQueryKnownOnlineSkipsServer(t *testing.T) {
	em := &countingEmitter{}
	q := NewQuerier(onlineSet{"u2": true}, em, time.Second)

	online, err := q.Query(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Zero(t, em.calls.Load())
}

func TestQueryWaitsForAnswer(t *testing.T) {
	em := &countingEmitter{sent: make(chan string, 1)}
	q := NewQuerier(onlineSet{}, em, time.Second)

	go func() {
		id := <-em.sent
		q.Resolve(id, true)
	}()

	online, err := q.Query(context.Background(), "u3")
	require.NoError(t, err)
	assert.True(t, online)
	assert.Zero(t, q.Pending())
}

func TestConcurrentQueriesShareRequest(t *testing.T) {
	em := &countingEmitter{sent: make(chan string, 4)}
	q := NewQuerier(onlineSet{}, em, time.Second)

	var wg sync.WaitGroup
	results := make([]bool, 3)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = q.Query(context.Background(), "u4")
		}()
	}
	id := <-em.sent
	// Give the other callers time to join the in-flight query.
	time.Sleep(50 * time.Millisecond)
	q.Resolve(id, false)
	wg.Wait()

	assert.Equal(t, int32(1), em.calls.Load())
	assert.Equal(t, []bool{false, false, false}, results)
}

func TestQueryTimeout(t *testing.T) {
	q := NewQuerier(onlineSet{}, &countingEmitter{}, 20*time.Millisecond)

	_, err := q.Query(context.Background(), "u5")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, q.Pending())
}

func TestQueryEmitFailure(t *testing.T) {
	q := NewQuerier(onlineSet{}, &countingEmitter{err: errors.New("offline")}, time.Second)

	_, err := q.Query(context.Background(), "u6")
	assert.Error(t, err)
	assert.False(t, q.Resolve("u6", true))
}
