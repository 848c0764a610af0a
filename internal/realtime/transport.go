package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a framed, bidirectional message stream.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
}

// Dialer opens transports to the realtime server.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// TokenSource returns the bearer token presented on dial.
type TokenSource func() string

// WSDialer dials a websocket endpoint.
type WSDialer struct {
	URL          string
	Token        TokenSource
	PingInterval time.Duration
	WriteTimeout time.Duration
	Dialer       *websocket.Dialer
}

// Dial connects to the server and starts the keepalive pinger.
func (d *WSDialer) Dial(ctx context.Context) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if d.Token != nil {
		if tok := d.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return newWSTransport(conn, d.PingInterval, d.WriteTimeout), nil
}

type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	done         chan struct{}
	closeOnce    sync.Once
}

func newWSTransport(conn *websocket.Conn, pingInterval, writeTimeout time.Duration) *wsTransport {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	t := &wsTransport{
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	if pingInterval > 0 {
		pongWait := pingInterval * 2
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go t.pingLoop(pingInterval)
	}
	return t
}

func (t *wsTransport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeTimeout)); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// ReadFrame returns the next text frame, skipping binary frames.
func (t *wsTransport) ReadFrame() ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

// WriteFrame must not be called concurrently; Conn serializes writers.
func (t *wsTransport) WriteFrame(frame []byte) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
