package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"animegram/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

var (
	ErrServerConnLimit = errors.New("server connection limit reached")
	ErrUserConnLimit   = errors.New("user connection limit reached")
	ErrHubClosed       = errors.New("hub is shut down")
)

// Hub maps a viewer's user ID to the websocket clients it has open.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
	log        *observability.WSLogger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	h := &Hub{conns: make(map[string]map[*Client]struct{})}
	h.log = observability.NewWSLogger(h.Name())
	return h
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "viewer hub" }

// Register adds a connection for userID. It fails when the per-user or total
// connection limit is reached.
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if h.totalConns >= maxTotalConns {
		h.mu.Unlock()
		return nil, ErrServerConnLimit
	}

	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if len(m) >= maxConnsPerUser {
		h.mu.Unlock()
		return nil, ErrUserConnLimit
	}

	client := NewClient(h, conn, userID)
	m[client] = struct{}{}
	h.totalConns++
	total := h.totalConns
	h.mu.Unlock()

	observability.WebSocketConnectionsTotal.Set(float64(total))
	h.log.LogConnect(context.Background(), userID)
	return client, nil
}

// UnregisterClient removes client and closes its outbound channel.
func (h *Hub) UnregisterClient(client *Client) {
	h.mu.Lock()
	removed := false
	if m, ok := h.conns[client.UserID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
			removed = true
		}
		if len(m) == 0 {
			delete(h.conns, client.UserID)
		}
	}
	total := h.totalConns
	h.mu.Unlock()

	if !removed {
		return
	}
	client.close()
	observability.WebSocketConnectionsTotal.Set(float64(total))
	h.log.LogDisconnect(context.Background(), client.UserID, "unregistered")
}

// Send pushes env to every connection of userID. It reports how many
// connections the envelope was queued for.
func (h *Hub) Send(userID string, env Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.LogError(context.Background(), userID, err, string(env.Type))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := h.conns[userID]
	for c := range clients {
		c.TrySend(data)
	}
	return len(clients)
}

// IsOnline reports whether a user currently has at least one connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// Connections is the total number of registered clients.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Shutdown closes every connection and refuses new ones.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := h.conns
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	for userID, userConns := range conns {
		for client := range userConns {
			client.close()
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				h.log.LogError(context.Background(), userID, err, "close_message")
			}
			if err := client.Conn.Close(); err != nil {
				h.log.LogError(context.Background(), userID, err, "close")
			}
		}
	}
	observability.WebSocketConnectionsTotal.Set(0)
	h.log.LogLifecycle(context.Background(), "shutdown", nil)
	return nil
}
