// Package stream broadcasts engine frames to presentation clients over
// WebSocket.
package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultClientBuffer is the number of frames queued per client before
	// newer frames are dropped for it.
	DefaultClientBuffer = 32

	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// client is one connected subscriber with its own bounded send queue.
type client struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Int64
}

// Hub fans messages out to every connected client.
//
// Broadcast never blocks: a client whose queue is full misses the message
// and its drop counter is incremented. The engine cycle is never stalled
// by a slow reader.
//
// Thread-safety: all methods are safe for concurrent use.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(logger *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Hub{
		logger:  logger,
		buffer:  buffer,
		clients: make(map[*client]struct{}),
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// register adds conn and starts its pumps. It returns false once the hub
// is closed.
func (h *Hub) register(conn *websocket.Conn, initial []byte) bool {
	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	if initial != nil {
		c.send <- initial
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("stream client connected", "remote", conn.RemoteAddr().String(), "clients", n)
	go h.writePump(c)
	go h.readPump(c)
	return true
}

// unregister removes c and closes its queue. Safe to call twice.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("stream client disconnected",
		"remote", c.conn.RemoteAddr().String(),
		"dropped", c.dropped.Load(),
		"clients", n)
}

// Broadcast queues msg for every client and returns how many clients
// dropped it.
func (h *Hub) Broadcast(msg []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	drops := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			c.dropped.Add(1)
			drops++
		}
	}
	if drops > 0 {
		h.logger.Debug("stream frame dropped for slow clients", "clients", drops)
	}
	return drops
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

// writePump drains c.send to the connection and keeps it alive with pings.
// It owns all writes to c.conn.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}

// readPump discards client messages; the stream is one-way. A read error
// means the client went away.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
