// File: internal/transport/client.go
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/zerofrost11/cortex-client/api/schemas"
)

const (
	// Time allowed to complete the websocket handshake.
	handshakeTimeout = 10 * time.Second
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Maximum inbound frame size. Screenshots arrive base64-inlined, so this
	// is generous.
	maxMessageSize = 8 << 20 // 8MB
	// Buffered events between the read pump and the dispatch loop.
	eventBuffer = 256
)

// ErrNotConnected is returned by Send when no connection is open. The caller
// is responsible for not sending while disconnected; there is no queuing.
var ErrNotConnected = errors.New("transport: websocket is not connected")

// EventKind tags the variants delivered on the client's event channel.
type EventKind string

const (
	KindOpened EventKind = "opened" // A connection was established.
	KindClosed EventKind = "closed" // The connection went away, for any reason.
	KindError  EventKind = "error"  // A transport-layer failure (dial or read).
	KindFrame  EventKind = "frame"  // A parsed inbound protocol frame.
)

// Event is one occurrence on the connection, delivered in arrival order on a
// single channel so the consumer has one place to reason about ordering.
type Event struct {
	Kind  EventKind
	Frame *schemas.Frame // Set when Kind == KindFrame.
	Err   error          // Set when Kind == KindError.
}

// Client owns exactly one duplex connection to the agent backend. It performs
// connect/send/close, decodes inbound frames, and reports lifecycle signals
// and frames on Events. It knows nothing about agent semantics.
type Client struct {
	url       string
	handshake time.Duration
	logger    *zap.Logger
	events    chan Event

	mu   sync.Mutex
	conn *websocket.Conn
	gen  int // Incremented per successful dial; lets stale pumps detect replacement.
}

// NewClient creates a Client for the given websocket URL. A non-positive
// handshake duration selects the default. No connection is made until Open
// is called.
func NewClient(url string, handshake time.Duration, logger *zap.Logger) *Client {
	if handshake <= 0 {
		handshake = handshakeTimeout
	}
	return &Client{
		url:       url,
		handshake: handshake,
		logger:    logger.Named("transport"),
		events:    make(chan Event, eventBuffer),
	}
}

// Events returns the channel carrying lifecycle signals and inbound frames.
// The channel is never closed; consumers stop reading after observing their
// own shutdown.
//
// Delivery is in arrival order through a buffer of eventBuffer slots. The
// read pump never blocks on it: a consumer that stops draining forfeits the
// delivery guarantee and overflowing events are dropped with a logged
// condition.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Open establishes the connection, closing any prior one first. Safe to call
// repeatedly; a failed dial leaves the client closed and is reported both as
// a returned error and a KindError event.
func (c *Client) Open() error {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.handshake}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		c.logger.Warn("Websocket dial failed.", zap.String("url", c.url), zap.Error(err))
		c.emit(Event{Kind: KindError, Err: err})
		return err
	}
	conn.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.logger.Info("Websocket connected.", zap.String("url", c.url))
	c.emit(Event{Kind: KindOpened})

	go c.readPump(conn, gen)
	return nil
}

// Send serializes and transmits a task submission. It fails with
// ErrNotConnected (logged, not fatal) when no connection is open.
func (c *Client) Send(req schemas.TaskRequest) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.Warn("Dropping outbound task: websocket is not connected.")
		return ErrNotConnected
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.logger.Warn("Websocket write failed.", zap.Error(err))
		return err
	}
	return nil
}

// IsOpen reports whether a connection is currently established.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears down the connection idempotently. The read pump observes the
// closed socket and emits the KindClosed event.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// readPump reads frames until the connection dies. Malformed payloads are
// dropped with a logged condition and do not stall subsequent frames.
func (c *Client) readPump(conn *websocket.Conn, gen int) {
	defer func() {
		c.mu.Lock()
		// Only clear the handle if this pump's connection is still current;
		// Open may already have replaced it.
		if c.gen == gen && c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		c.emit(Event{Kind: KindClosed})
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Websocket read error.", zap.Error(err))
				c.emit(Event{Kind: KindError, Err: err})
			}
			return
		}

		var frame schemas.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.logger.Warn("Dropping malformed inbound frame.",
				zap.Error(err),
				zap.Int("bytes", len(payload)))
			continue
		}
		c.emit(Event{Kind: KindFrame, Frame: &frame})
	}
}

// emit delivers an event without ever blocking the read pump. The buffer is
// sized far beyond what a healthy consumer leaves unread; overflow means the
// consumer is gone and the event is dropped with a logged condition.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		// A dropped frame can swallow a finalization, so it is louder
		// than a dropped lifecycle signal.
		if ev.Kind == KindFrame {
			c.logger.Error("Event buffer full, dropping inbound frame.")
		} else {
			c.logger.Warn("Event buffer full, dropping event.", zap.String("kind", string(ev.Kind)))
		}
	}
}
