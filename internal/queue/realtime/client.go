package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Client is one websocket session. Frames are written by a single writer goroutine.
type Client struct {
	ID     string
	UserID string

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64

	// Room frames arriving while a snapshot is being sent wait in held.
	mu      sync.Mutex
	holding bool
	held    [][]byte
}

func newClient(id string, conn *websocket.Conn, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Client{
		ID:   id,
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// enqueue takes a room frame. While the session is resyncing the frame is held
// so it reaches the peer after the snapshot.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	if c.holding {
		defer c.mu.Unlock()
		if len(c.held) >= cap(c.send) {
			c.dropped.Add(1)
			return false
		}
		c.held = append(c.held, payload)
		return true
	}
	c.mu.Unlock()
	return c.push(payload)
}

// hold parks room frames until release.
func (c *Client) hold() {
	c.mu.Lock()
	c.holding = true
	c.mu.Unlock()
}

// release flushes held frames in arrival order and resumes direct delivery.
func (c *Client) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, payload := range c.held {
		c.push(payload)
	}
	c.held = nil
	c.holding = false
}

// push hands payload to the writer without blocking. A full queue drops the frame.
func (c *Client) push(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped reports how many frames were discarded for a full queue.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
