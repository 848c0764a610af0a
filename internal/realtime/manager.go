package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/protocol"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
)

// Options tunes reconnection.
type Options struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int // 0 = retry forever
}

// DefaultOptions returns the reconnect policy used when none is configured.
func DefaultOptions() Options {
	return Options{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxAttempts:     10,
	}
}

// Binder attaches event handlers to a freshly created connection.
type Binder interface {
	Bind(l Listener)
}

// Manager owns the single connection handle of a process.
type Manager struct {
	dialer  Dialer
	opts    Options
	machine *status.Machine
	logger  *zap.Logger

	// opMu serializes Connect and Disconnect; mu only guards the fields below so
	// Emit never waits on a teardown in progress.
	opMu    sync.Mutex
	mu      sync.Mutex
	conn    *Conn
	binders []Binder

	hooksMu sync.RWMutex
	hooks   []ConnectHook
}

// NewManager creates a connection manager. The machine records the handle lifecycle.
func NewManager(dialer Dialer, opts Options, machine *status.Machine, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultOptions().InitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultOptions().MaxInterval
	}
	return &Manager{
		dialer:  dialer,
		opts:    opts,
		machine: machine,
		logger:  logger,
	}
}

// Use registers a binder applied to every connection created from now on.
func (m *Manager) Use(b Binder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.binders = append(m.binders, b)
	if m.conn != nil {
		b.Bind(m.conn)
	}
}

// OnConnected registers a hook run after every (re)connect.
func (m *Manager) OnConnected(h ConnectHook) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, h)
}

func (m *Manager) connectHooks() []ConnectHook {
	m.hooksMu.RLock()
	defer m.hooksMu.RUnlock()
	return append([]ConnectHook(nil), m.hooks...)
}

// Connect returns the connection for userID, creating it when needed.
//
// A live (or still dialing) handle for the same user is returned as is. A live
// handle for another user re-announces the new identity on the same transport.
// Any other held handle is discarded and replaced.
func (m *Manager) Connect(ctx context.Context, userID string) (*Conn, error) {
	if userID == "" {
		return nil, errors.New("realtime: connect requires a user id")
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if c := m.Conn(); c != nil {
		state := m.machine.Current()
		switch {
		case c.Live() && c.UserID() == userID:
			return c, nil
		case c.Live():
			m.logger.Info("re-announcing identity", zap.String("user_id", userID))
			if err := c.reannounce(ctx, userID); err != nil {
				return nil, err
			}
			return c, nil
		case state == status.Connecting && c.UserID() == userID:
			return c, nil
		}
		m.logger.Info("discarding stale connection", zap.String("state", string(state)))
		m.drop(c)
	}

	if err := m.machine.Transition(status.Connecting); err != nil {
		return nil, err
	}
	c := newConn(userID, m.dialer, m.opts, m.machine, m.logger, m.connectHooks)
	m.mu.Lock()
	for _, b := range m.binders {
		b.Bind(c)
	}
	m.conn = c
	m.mu.Unlock()
	c.start(context.WithoutCancel(ctx))
	return c, nil
}

// Disconnect unregisters all listeners, closes the transport and clears the handle.
// It is a no-op when no connection is held.
func (m *Manager) Disconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	c := m.Conn()
	if c == nil {
		return
	}
	m.drop(c)
	m.logger.Info("realtime disconnected")
}

func (m *Manager) drop(c *Conn) {
	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	m.mu.Unlock()
	c.close()
	if m.machine.Current() != status.Absent {
		_ = m.machine.Transition(status.Absent)
	}
}

// Conn returns the held connection, or nil.
func (m *Manager) Conn() *Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// State returns the lifecycle state of the handle.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Emit writes an outbound event on the held connection.
func (m *Manager) Emit(ctx context.Context, out protocol.Outbound) error {
	c := m.Conn()
	if c == nil {
		return ErrNotConnected
	}
	return c.Emit(ctx, out)
}
