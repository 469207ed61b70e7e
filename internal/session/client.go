package session

import (
	"sync"

	"github.com/gorilla/websocket"

	"signaling/internal/models"
)

// Client wraps one signaling WebSocket connection. Writes are serialized
// with a mutex since gorilla connections allow only one concurrent writer.
type Client struct {
	ID   string
	conn *websocket.Conn
	mu   sync.Mutex
	hook func(models.Envelope)
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{ID: id, conn: conn}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Envelope)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send delivers one event to the client. Delivery is best-effort; a failed
// write surfaces on the connection's read loop as a disconnect.
func (c *Client) Send(eventType string, v any) {
	env := models.NewEnvelope(eventType, v)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(env)
		return
	}
	if c.conn == nil {
		return
	}
	_ = c.conn.WriteJSON(env)
}

// Close closes the underlying connection if there is one.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
