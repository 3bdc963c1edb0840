// Package websocket streams live snapshots to connected clients. Each
// client owns its own viewer-scoped sync manager, so two clients with
// different roles connected at once never see each other's data.
package websocket

import (
	"log/slog"
	"sync"

	syncpkg "github.com/dukerupert/mizan/internal/sync"
)

// Message is one frame on the wire: the collection that changed and the
// full scoped snapshot after the change. The first frame on every
// connection carries type "snapshot" with the initial state.
type Message struct {
	Type       string           `json:"type"`
	Collection string           `json:"collection,omitempty"`
	Snapshot   syncpkg.Snapshot `json:"snapshot"`
}

// Hub is the registry of live connections. Delivery is per-client; the hub
// only tracks who is connected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
