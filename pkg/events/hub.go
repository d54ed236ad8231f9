// Package events broadcasts daemon lifecycle events to websocket
// subscribers. Dashboards and chat-ops tooling subscribe to watch
// sessions start, deliver messages, and finish in real time.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Event names emitted by the daemon
const (
	EventSessionStarted   = "session.started"
	EventSessionScheduled = "session.scheduled"
	EventMessageDelivered = "message.delivered"
	EventSessionFinished  = "session.finished"
	EventReplyCorrelated  = "reply.correlated"
	EventShutdown         = "daemon.shutdown"
)

// Event is the wire format sent to subscribers
type Event struct {
	ID        string      `json:"id"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       int64       `json:"seq"`
}

type client struct {
	id   string
	conn *websocket.Conn

	// Guards writes; gorilla allows only one concurrent writer.
	writeMu sync.Mutex
}

func (c *client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub accepts websocket subscribers and fans events out to them. A client
// that fails a write is dropped rather than allowed to stall the rest.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger
	seq      uint64

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates an event hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger.With().Str("component", "events").Logger(),
		clients: make(map[string]*client),
	}
}

// HandleWebSocket upgrades the request and subscribes the connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate client ID")
		conn.Close()
		return
	}

	c := &client{id: id, conn: conn}
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()

	h.logger.Debug().Str("clientId", id).Str("remote", r.RemoteAddr).Msg("Subscriber connected")

	// Subscribers never send application messages; the read loop only
	// notices disconnects.
	go h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer h.drop(c.id)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(clientID string) {
	h.mu.Lock()
	c, exists := h.clients[clientID]
	if exists {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if exists {
		c.conn.Close()
		h.logger.Debug().Str("clientId", clientID).Msg("Subscriber disconnected")
	}
}

// Broadcast sends an event to all subscribers
func (h *Hub) Broadcast(event string, data interface{}) {
	id, err := gonanoid.New()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate event ID")
		return
	}

	msg := Event{
		ID:        id,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			h.logger.Warn().
				Err(err).
				Str("clientId", c.id).
				Str("event", event).
				Msg("Dropping unresponsive subscriber")
			h.drop(c.id)
		}
	}
}

// Subscribers returns the number of connected subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close notifies subscribers and closes every connection. The hub refuses
// new subscribers afterwards.
func (h *Hub) Close() {
	h.Broadcast(EventShutdown, map[string]interface{}{
		"message": "Daemon is shutting down",
	})

	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
