package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"meme-token-ledger/internal/domain"
)

const (
	writeWait = 5 * time.Second

	// sendBuffer bounds how far a subscriber may fall behind before it
	// is dropped.
	sendBuffer = 64
)

// client is one websocket subscriber. All writes to the connection go
// through the send channel and are performed by a single writer
// goroutine; the connection never sees concurrent writers.
type client struct {
	conn *websocket.Conn
	send chan map[string]any
}

// Hub fans freshly persisted events out to websocket subscribers. A slow
// or broken subscriber is dropped, never blocks the pipeline.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan map[string]any, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	// Reader loop exists only to observe the close.
	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writeLoop is the client's single connection writer. It exits when the
// send channel closes (the client was dropped) or a write fails.
func (h *Hub) writeLoop(c *client) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(payload); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Publish queues one event for every subscriber. Safe for concurrent
// callers: the per-token apply workers all publish through here. A
// subscriber whose buffer is full is dropped rather than blocking.
func (h *Hub) Publish(ev *domain.CanonicalEvent) {
	if ev == nil {
		return
	}
	payload := eventResponse(ev)

	h.mu.Lock()
	var full []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			full = append(full, c)
		}
	}
	h.mu.Unlock()

	for _, c := range full {
		h.drop(c)
	}
}
