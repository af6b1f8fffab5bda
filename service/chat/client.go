package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendQueueSize    = 64
	writeDeadlineSec = 5
)

// Client represents one websocket connection of one user session.
// A single user may have multiple devices/tabs, each with its own Client.
// All writes go through the send queue and a single writer goroutine so
// a stuck peer never blocks a broadcast.
type Client struct {
	ConnID string
	UserID string

	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(connID, userID string, ws *websocket.Conn) *Client {
	return &Client{
		ConnID: connID,
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
	}
}

// Open reports whether the client still accepts outbound frames.
func (c *Client) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Enqueue hands a frame to the writer goroutine without blocking.
// Frames to a closed or saturated client are dropped; delivery here is
// fire-and-forget, not a guarantee.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		// Slow client: skip rather than stall the fan-out.
		return false
	}
}

// CloseSend marks the client closed and stops the writer goroutine.
// Safe to call more than once.
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// WritePump drains the send queue onto the wire. Run it in its own
// goroutine; it exits when CloseSend is called or a write fails.
func (c *Client) WritePump() {
	for data := range c.send {
		if err := writeText(c.ws, data, writeDeadlineSec); err != nil {
			break
		}
	}
	closeQuiet(c.ws)
}

func writeText(conn *websocket.Conn, data []byte, deadlineSec int) error {
	if err := conn.SetWriteDeadline(time.Now().Add(time.Duration(deadlineSec) * time.Second)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
