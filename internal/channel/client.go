// Package channel implements the real-time event transport scoped to one
// project. One client wraps one persistent WebSocket connection; it exposes
// fire-and-forget sends and named-event subscriptions and guarantees nothing
// beyond best-effort, in-arrival-order delivery.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"devroom/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. AI payloads embed whole file
	// trees, so this is generous.
	maxMessageSize = 4 << 20
)

var (
	// ErrNotConnected is returned when sending before Connect succeeds.
	ErrNotConnected = errors.New("channel: not connected")
	// ErrProjectMismatch is returned when Connect is called for a different
	// project on an already connected client. One client serves one project.
	ErrProjectMismatch = errors.New("channel: already connected to another project")
)

// Frame is the envelope every channel event travels in.
type Frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler consumes the data payload of one inbound event. Handlers for the
// same client are invoked sequentially in arrival order, never concurrently.
type Handler func(data json.RawMessage)

// Client is a WebSocket channel client bound to a single project.
type Client struct {
	serverURL string
	log       *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	projectID string
	connected bool
	closed    bool
	send      chan Frame
	stopCh    chan struct{}
	wg        sync.WaitGroup

	handlerMu sync.RWMutex
	handlers  map[string][]Handler
}

// NewClient creates a client that will dial serverURL (a ws:// or wss://
// endpoint) on Connect.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		log:       logger.Global().WithPrefix("channel"),
		handlers:  make(map[string][]Handler),
	}
}

// Connect establishes the project channel. Calling it again for the same
// project id is a no-op; calling it for a different id is an error, the
// client does not multiplex projects.
func (c *Client) Connect(ctx context.Context, projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		if c.projectID == projectID {
			return nil
		}
		return ErrProjectMismatch
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("channel: invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("projectId", projectID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("channel: failed to dial %s: %w", u.String(), err)
	}

	c.conn = conn
	c.projectID = projectID
	c.connected = true
	c.send = make(chan Frame, 256)
	c.stopCh = make(chan struct{})

	c.wg.Add(2)
	go c.readPump(conn)
	go c.writePump(conn)

	c.log.Info("connected to project %s", projectID)
	return nil
}

// Subscribe registers a handler for a named event. Registration is allowed
// before or after Connect.
func (c *Client) Subscribe(event string, h Handler) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Send transmits one event, fire and forget. A full outgoing buffer drops
// the frame with a warning rather than blocking the caller; the channel
// contract is best effort.
func (c *Client) Send(event string, payload interface{}) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	send := c.send
	stopCh := c.stopCh
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("channel: failed to encode %s payload: %w", event, err)
	}

	frame := Frame{Event: event, ID: uuid.New().String(), Data: data}
	select {
	case send <- frame:
		return nil
	case <-stopCh:
		return ErrNotConnected
	default:
		c.log.Warn("outgoing buffer full, dropping %s frame", event)
		return nil
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	if c.stopCh != nil {
		close(c.stopCh)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

// readPump reads frames and dispatches them to subscribers. It runs on a
// single goroutine, so handlers observe events strictly in arrival order.
func (c *Client) readPump(conn *websocket.Conn) {
	defer func() {
		c.wg.Done()
		c.markDisconnected()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("read error: %v", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.log.Warn("dropping unparseable frame: %v", err)
			continue
		}

		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	c.handlerMu.RLock()
	handlers := c.handlers[frame.Event]
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("handler panic on %s: %v", frame.Event, r)
				}
			}()
			h(frame.Data)
		}()
	}
}

// writePump serializes outgoing frames and keeps the connection alive.
func (c *Client) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.wg.Done()
		conn.Close()
	}()

	for {
		select {
		case <-c.stopCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(frame)
			if err != nil {
				c.log.Error("failed to marshal frame: %v", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error("write error: %v", err)
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ProjectID returns the project this client is bound to, or "" before the
// first Connect.
func (c *Client) ProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectID
}
