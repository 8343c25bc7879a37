// Package websocket pushes desk state changes to connected browser tabs.
package websocket

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/model"
)

const (
	TypeQueueUpdated   = "queue_updated"
	TypeSessionChanged = "session_changed"
	TypeThemeChanged   = "theme_changed"
)

// Message is one push notification.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SessionStatus is the session_changed payload. It never carries tokens.
type SessionStatus struct {
	LoggedIn bool       `json:"logged_in"`
	Role     model.Role `json:"role,omitempty"`
	Name     string     `json:"name,omitempty"`
	Paid     bool       `json:"paid"`
}

func QueueUpdated(snap model.QueueSnapshot) Message {
	return Message{Type: TypeQueueUpdated, Data: snap}
}

func SessionChanged(sess *model.Session) Message {
	status := SessionStatus{LoggedIn: sess != nil}
	if sess != nil {
		status.Role = sess.Role
		status.Name = sess.Name
		status.Paid = sess.Paid()
	}
	return Message{Type: TypeSessionChanged, Data: status}
}

func ThemeChanged(theme string) Message {
	return Message{Type: TypeThemeChanged, Data: map[string]string{"theme": theme}}
}

// Hub maintains the set of active clients and broadcasts messages. The last
// message of each type is kept and replayed to clients as they join, so a new
// tab starts from current state instead of waiting for the next change.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	last    map[string][]byte
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		last:    make(map[string][]byte),
		logger:  logger,
	}
}

// Register adds a client and queues the latest message of each type for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	for _, data := range h.last {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every connected client. Clients whose buffer is full
// miss the message rather than block the sender.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("marshal broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[msg.Type] = data

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug().Str("type", msg.Type).Msg("client buffer full, message dropped")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
