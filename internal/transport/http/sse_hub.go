package http

import (
	"sync"

	"github.com/rs/zerolog/log"
	"vn.io.arda/storefront-notifier/internal/domain"
)

// Client represents a connected local SSE client.
type Client struct {
	send chan []byte
}

// Hub fans store and stream updates out to every local SSE client.
// All clients belong to the agent's single session user.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a new SSE Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Register adds a new SSE client.
func (h *Hub) Register(send chan []byte) *Client {
	c := &Client{send: send}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	log.Debug().Int("clients", len(h.clients)).Msg("SSE client connected")
	return c
}

// Unregister removes an SSE client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)

	log.Debug().Int("clients", len(h.clients)).Msg("SSE client disconnected")
}

// BroadcastList sends the full notification list to all clients.
// This satisfies the application.SSEHub interface.
func (h *Hub) BroadcastList(records []domain.Record) {
	h.broadcast(buildSSEMessage("notifications", records))
}

// BroadcastState sends a stream connection state change to all clients.
func (h *Hub) BroadcastState(state domain.ConnectionState) {
	h.broadcast(buildSSEMessage("state", map[string]string{"state": string(state)}))
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Client is slow/disconnected, skip
			log.Warn().Msg("SSE client send buffer full, skipping")
		}
	}
}

// ConnectedCount returns the total number of connected SSE clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
