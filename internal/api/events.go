package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	eventWriteWait = 10 * time.Second
	eventSendQueue = 16
)

// Event is a named message pushed to attached UI clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub fans daemon events out to websocket-attached UI clients. Clients
// that cannot keep up are dropped rather than blocking the broadcaster.
type Hub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}
	logger  *slog.Logger

	upgrader websocket.Upgrader
}

type hubClient struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			// The listener is loopback-only and auth runs before the
			// upgrade, so origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Broadcast sends an event to every attached client without blocking.
func (h *Hub) Broadcast(event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- Event{Type: event, Payload: payload}:
		default:
			h.logger.Warn("dropping slow event client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount reports the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events until
// the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("event client upgrade failed", "error", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan Event, eventSendQueue)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *hubClient) {
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump drains inbound frames so close and ping handling work, and
// unregisters the client when the connection dies.
func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
