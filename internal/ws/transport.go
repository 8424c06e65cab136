package ws

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/media-relay/mediarelay/internal/health"
	"github.com/media-relay/mediarelay/internal/session"
)

// State is the transport's listening state.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "listening":
		*s = Listening
	default:
		return fmt.Errorf("unknown transport state %q", text)
	}
	return nil
}

// Subscriber is the consumer side of the transport. Deliver is called
// synchronously from the publishing goroutine.
type Subscriber interface {
	Deliver(session.Event) error
	Close() error
}

type slot struct {
	token uuid.UUID
	sub   Subscriber
}

// Transport forwards events to at most one live subscriber. Events published
// while nobody listens are dropped, never buffered.
type Transport struct {
	cur      atomic.Pointer[slot]
	recorder *health.Recorder
	logger   *zap.Logger
}

func NewTransport(recorder *health.Recorder, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{recorder: recorder, logger: logger.Named("transport")}
}

// StartListening makes sub the live subscriber and returns the token that
// stops it. A previous subscriber is replaced and closed.
func (t *Transport) StartListening(sub Subscriber) uuid.UUID {
	next := &slot{token: uuid.New(), sub: sub}
	if prev := t.cur.Swap(next); prev != nil {
		if err := replace(prev.sub); err != nil {
			t.logger.Debug("close replaced subscriber", zap.Error(err))
		}
		t.logger.Info("subscriber replaced", zap.String("previous", prev.token.String()))
	}
	t.logger.Info("listening", zap.String("token", next.token.String()))
	return next.token
}

// StopListening clears the slot if token still owns it. It reports whether
// the transport went idle because of this call. Stopping twice, or with a
// stale token, is a no-op.
func (t *Transport) StopListening(token uuid.UUID) bool {
	cur := t.cur.Load()
	if cur == nil || cur.token != token {
		return false
	}
	if !t.cur.CompareAndSwap(cur, nil) {
		return false
	}
	t.logger.Info("idle", zap.String("token", token.String()))
	return true
}

// Close releases the live subscriber, telling it the relay is going away.
// The transport is idle afterwards and may be listened on again.
func (t *Transport) Close() {
	prev := t.cur.Swap(nil)
	if prev == nil {
		return
	}
	if err := shutdown(prev.sub); err != nil {
		t.logger.Debug("close subscriber on shutdown", zap.Error(err))
	}
	t.logger.Info("subscriber released on shutdown", zap.String("token", prev.token.String()))
}

func (t *Transport) State() State {
	if t.cur.Load() == nil {
		return Idle
	}
	return Listening
}

// Publish delivers ev to the live subscriber.
func (t *Transport) Publish(ev session.Event) {
	cur := t.cur.Load()
	if cur == nil {
		t.recorder.Record(health.EventDropped, nil)
		t.logger.Debug("event dropped while idle",
			zap.String("type", string(ev.Type())),
			zap.String("session", string(ev.Session())))
		return
	}

	err := cur.sub.Deliver(ev)
	if err == nil {
		return
	}
	if t.cur.Load() != cur {
		// The subscriber went away while the event was in flight.
		t.recorder.Record(health.UnregisterRace, err)
		t.logger.Debug("delivery to released subscriber", zap.Error(err))
		return
	}

	t.recorder.Record(health.DeliveryFailed, err)
	t.logger.Warn("delivery failed, dropping subscriber",
		zap.String("token", cur.token.String()),
		zap.Error(err))
	if t.cur.CompareAndSwap(cur, nil) {
		if err := cur.sub.Close(); err != nil {
			t.logger.Debug("close failed subscriber", zap.Error(err))
		}
	}
}

// replaceable subscribers learn that a newer subscriber took the slot.
type replaceable interface {
	Replace() error
}

func replace(sub Subscriber) error {
	if r, ok := sub.(replaceable); ok {
		return r.Replace()
	}
	return sub.Close()
}

// shutdowner subscribers learn that the relay itself is stopping.
type shutdowner interface {
	Shutdown() error
}

func shutdown(sub Subscriber) error {
	if s, ok := sub.(shutdowner); ok {
		return s.Shutdown()
	}
	return sub.Close()
}

// errSubscriberClosed is returned by Deliver after Close.
var errSubscriberClosed = errors.New("subscriber closed")

// connSubscriber writes events to a websocket connection.
type connSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newConnSubscriber(conn *websocket.Conn, writeTimeout time.Duration, logger *zap.Logger) *connSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &connSubscriber{conn: conn, writeTimeout: writeTimeout, logger: logger}
}

func (c *connSubscriber) Deliver(ev session.Event) error {
	data, err := session.MarshalEvent(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errSubscriberClosed
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *connSubscriber) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// Replace closes the connection with CloseReplaced so the peer can tell a
// takeover from a shutdown.
func (c *connSubscriber) Replace() error {
	return c.closeWith(CloseReplaced, "replaced by a newer listener")
}

// Shutdown closes the connection with CloseGoingAway.
func (c *connSubscriber) Shutdown() error {
	return c.closeWith(websocket.CloseGoingAway, "relay shutting down")
}

func (c *connSubscriber) closeWith(code int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout)); err != nil {
		c.logger.Debug("close frame not sent", zap.Int("code", code), zap.Error(err))
	}
	return c.conn.Close()
}
