package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/ipc"
	"github.com/media-relay/mediarelay/internal/session"
	"github.com/media-relay/mediarelay/internal/ws"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

var (
	// ErrNotConnected is returned by reads on a client without a connection.
	ErrNotConnected = errors.New("not connected")
	// ErrReplaced is returned once a newer listener took the relay's stream.
	ErrReplaced = errors.New("replaced by a newer listener")
)

// WSClient holds the relay's event stream. Opening it makes this client the
// relay's only listener; a later client takes the stream over.
type WSClient struct {
	endpoint Endpoint
	logger   *zap.Logger

	mu         sync.Mutex
	writeMu    sync.Mutex // serialises pings and the close frame
	conn       *websocket.Conn
	pingCancel context.CancelFunc
}

func NewWSClient(ep Endpoint, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{endpoint: ep, logger: logger.Named("ws-client")}
}

// --- Bubble Tea messages ---

// ConnectedMsg is sent when the stream opens.
type ConnectedMsg struct{}

// DisconnectedMsg is sent when the stream drops.
type DisconnectedMsg struct{ Err error }

// EventMsg delivers one relayed event.
type EventMsg struct{ Event session.Event }

// Connect dials the relay once. The connection is closed when ctx ends.
func (c *WSClient) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.pingCancel != nil {
		c.pingCancel()
	}
	pingCtx, pingCancel := context.WithCancel(ctx)
	c.conn = conn
	c.pingCancel = pingCancel
	c.mu.Unlock()

	go c.pingLoop(pingCtx, conn)
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	if c.endpoint.URL == "" {
		dialer.NetDialContext = ipc.NetDial(c.endpoint.Socket)
	}
	header := http.Header{}
	if c.endpoint.Token != "" {
		header.Set(ws.TokenHeader, c.endpoint.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, c.endpoint.wsURL(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial %s: %w", c.endpoint, ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial %s: %w", c.endpoint, err)
	}
	return conn, nil
}

// Next blocks until the next event arrives. Frames that do not decode are
// skipped. A read error drops the connection.
func (c *WSClient) Next() (session.Event, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop(conn)
			if websocket.IsCloseError(err, ws.CloseReplaced) {
				return nil, fmt.Errorf("%w: %v", ErrReplaced, err)
			}
			return nil, err
		}
		ev, err := session.UnmarshalEvent(data)
		if err != nil {
			c.logger.Debug("skipping frame", zap.Error(err))
			continue
		}
		return ev, nil
	}
}

// Stream connects and calls fn for every event until ctx ends or the
// connection drops. Cancellation is not an error.
func (c *WSClient) Stream(ctx context.Context, fn func(session.Event)) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()
	for {
		ev, err := c.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fn(ev)
	}
}

// Close sends a close frame and releases the connection, which stops the
// relay from delivering to this client.
func (c *WSClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	cancel := c.pingCancel
	c.conn = nil
	c.pingCancel = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	if cancel != nil {
		cancel()
	}
	return conn.Close()
}

// Listen returns a Bubble Tea command that connects, retrying with backoff
// until it succeeds or ctx ends.
func (c *WSClient) Listen(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		delay := reconnectBaseDelay
		for {
			err := c.Connect(ctx)
			if err == nil {
				return ConnectedMsg{}
			}
			if errors.Is(err, ErrUnauthorized) {
				return DisconnectedMsg{Err: err}
			}
			c.logger.Debug("dial failed", zap.Error(err), zap.Duration("retry", delay))

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			delay = min(delay*2, reconnectMaxDelay)
		}
	}
}

// ReadLoop returns a Bubble Tea command that yields the next event. It
// should be reissued after every EventMsg.
func (c *WSClient) ReadLoop() tea.Cmd {
	return func() tea.Msg {
		ev, err := c.Next()
		if err != nil {
			return DisconnectedMsg{Err: err}
		}
		return EventMsg{Event: ev}
	}
}

func (c *WSClient) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// pingLoop keeps conn alive and closes it once ctx ends.
func (c *WSClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
