package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Emit when no live transport is held.
var ErrNotConnected = errors.New("realtime: not connected")

// Handler receives the raw payload of a named inbound event.
type Handler func(data json.RawMessage)

// Listener is the event registration surface of a connection.
type Listener interface {
	On(event string, h Handler)
	Off(event string)
}

// Conn is the connection handle. It survives transport reconnects and
// keeps its listener registry until Disconnect.
type Conn struct {
	dialer  Dialer
	opts    Options
	machine *status.Machine
	logger  *zap.Logger
	hooks   func() []ConnectHook

	mu        sync.Mutex
	userID    string
	transport Transport
	handlers  map[string]Handler
	closed    bool

	writeMu sync.Mutex

	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// ConnectHook runs after identity has been announced on every (re)connect.
// Hooks run on the read goroutine and must not wait for inbound events.
type ConnectHook func(ctx context.Context, c *Conn)

func newConn(userID string, dialer Dialer, opts Options, machine *status.Machine, logger *zap.Logger, hooks func() []ConnectHook) *Conn {
	return &Conn{
		dialer:   dialer,
		opts:     opts,
		machine:  machine,
		logger:   logger,
		hooks:    hooks,
		userID:   userID,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
}

// UserID returns the identity announced by this connection.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Live reports whether a transport is attached and the handle is open.
func (c *Conn) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.transport != nil
}

// On registers h for event, replacing any previous handler.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Off removes the handler for event.
func (c *Conn) Off(event string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

// OffAll removes every registered handler.
func (c *Conn) OffAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = make(map[string]Handler)
}

// Handlers returns the number of registered handlers.
func (c *Conn) Handlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// WaitConnected blocks until the first successful connect or ctx expiry.
func (c *Conn) WaitConnected(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Emit encodes and writes an outbound event.
func (c *Conn) Emit(ctx context.Context, out protocol.Outbound) error {
	err := c.emit(ctx, out)
	metrics.IncEmitted(out.EventName(), err)
	return err
}

func (c *Conn) emit(ctx context.Context, out protocol.Outbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := protocol.Encode(out)
	if err != nil {
		return err
	}
	c.mu.Lock()
	t := c.transport
	closed := c.closed
	c.mu.Unlock()
	if closed || t == nil {
		return ErrNotConnected
	}
	return c.write(t, frame)
}

func (c *Conn) write(t Transport, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := t.WriteFrame(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// reannounce switches the identity of a live connection without a new transport.
func (c *Conn) reannounce(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	return c.Emit(ctx, protocol.Setup{UserID: userID})
}

func (c *Conn) start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)
	bo := c.newBackOff(ctx)

	for {
		t, err := c.dialer.Dial(ctx)
		if err == nil {
			bo.Reset()
			err = c.serve(ctx, t)
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("realtime connection failed", zap.Error(err))
		metrics.SetConnectionUp(false)
		if c.machine.Current() != status.Reconnecting {
			_ = c.machine.Transition(status.Reconnecting)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			c.logger.Error("realtime reconnect attempts exhausted")
			_ = c.machine.Transition(status.Disconnected)
			return
		}
		metrics.IncReconnectAttempt()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// serve announces identity, runs connect hooks and pumps inbound frames until the transport fails.
func (c *Conn) serve(ctx context.Context, t Transport) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close()
		return ctx.Err()
	}
	c.transport = t
	userID := c.userID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.transport == t {
			c.transport = nil
		}
		c.mu.Unlock()
		_ = t.Close()
	}()

	// The server forgets identity across transports, so setup goes first every time.
	frame, err := protocol.Encode(protocol.Setup{UserID: userID})
	if err != nil {
		return err
	}
	if err := c.write(t, frame); err != nil {
		return fmt.Errorf("announce identity: %w", err)
	}
	metrics.IncEmitted(protocol.EventSetup, nil)

	if err := c.machine.Transition(status.Connected); err != nil {
		c.logger.Warn("unexpected connection state", zap.Error(err))
	}
	metrics.SetConnectionUp(true)
	c.readyOnce.Do(func() { close(c.ready) })
	c.logger.Info("realtime connected", zap.String("user_id", userID))

	for _, hook := range c.hooks() {
		c.runHook(ctx, hook)
	}

	for {
		frame, err := t.ReadFrame()
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		env, err := protocol.Unwrap(frame)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		c.deliver(env)
	}
}

func (c *Conn) runHook(ctx context.Context, hook ConnectHook) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connect hook panicked", zap.Any("panic", r))
		}
	}()
	hook(ctx, c)
}

func (c *Conn) deliver(env protocol.Envelope) {
	c.mu.Lock()
	h, ok := c.handlers[env.Event]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("no handler for event", zap.String("event", env.Event))
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", zap.String("event", env.Event), zap.Any("panic", r))
		}
	}()
	h(env.Data)
}

// close tears the handle down. Safe to call more than once.
func (c *Conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	t := c.transport
	c.transport = nil
	c.handlers = make(map[string]Handler)
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if t != nil {
		_ = t.Close()
	}
	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		c.logger.Warn("realtime loop did not exit in time")
	}
	metrics.SetConnectionUp(false)
}

func (c *Conn) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.InitialInterval
	eb.MaxInterval = c.opts.MaxInterval
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = eb
	if c.opts.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(eb, uint64(c.opts.MaxAttempts))
	}
	b = backoff.WithContext(b, ctx)
	b.Reset()
	return b
}
