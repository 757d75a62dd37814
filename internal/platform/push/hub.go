// Package push delivers real-time risk-change notifications to clinical
// dashboards over WebSockets. Subscriptions are tenant-scoped: a dashboard
// connects for one tenant and receives every broadcast for that tenant.
package push

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/medassist/triage/internal/domain/risk"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const textMessage = 1 // gorilla/websocket.TextMessage

// Client is one subscribed dashboard connection.
type Client struct {
	ID       string
	TenantID string

	mu   sync.Mutex // serializes writes to conn
	conn Conn
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(textMessage, data)
}

// ConnectionEstablished is sent to every client immediately after register.
type ConnectionEstablished struct {
	Type       string    `json:"type"`
	ClientID   string    `json:"client_id"`
	TenantID   string    `json:"tenant_id"`
	Timestamp  time.Time `json:"timestamp"`
	Disclaimer string    `json:"disclaimer"`
}

// Hub tracks subscribed clients per tenant. Broadcast is synchronous: every
// live subscriber gets the message, and a subscriber whose write fails is
// pruned so one dead dashboard never wedges the fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // tenant -> set of clients
	logger  zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client and sends it the connection-established message.
// Registering an already-registered client is a no-op.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if h.clients[client.TenantID] == nil {
		h.clients[client.TenantID] = make(map[*Client]struct{})
	}
	if _, dup := h.clients[client.TenantID][client]; dup {
		h.mu.Unlock()
		return
	}
	h.clients[client.TenantID][client] = struct{}{}
	h.mu.Unlock()

	hello := ConnectionEstablished{
		Type:       "connection_established",
		ClientID:   client.ID,
		TenantID:   client.TenantID,
		Timestamp:  time.Now().UTC(),
		Disclaimer: risk.Disclaimer,
	}
	if data, err := json.Marshal(hello); err == nil {
		if werr := client.write(data); werr != nil {
			h.Unregister(client)
		}
	}
}

// Unregister removes a client and closes its connection. Idempotent.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	subscribers, ok := h.clients[client.TenantID]
	if ok {
		if _, present := subscribers[client]; !present {
			ok = false
		}
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, client.TenantID)
		}
	}
	h.mu.Unlock()

	if ok {
		client.conn.Close()
	}
}

// Broadcast marshals message and delivers it to every subscriber of the
// tenant. Dead connections found during delivery are pruned; live
// subscribers always receive the message.
func (h *Hub) Broadcast(tenantID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("push payload marshal failed")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[tenantID]))
	for client := range h.clients[tenantID] {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	var dead []*Client
	for _, client := range targets {
		if werr := client.write(data); werr != nil {
			dead = append(dead, client)
		}
	}
	for _, client := range dead {
		h.logger.Debug().
			Str("client_id", client.ID).
			Str("tenant_id", tenantID).
			Msg("pruning dead push subscriber")
		h.Unregister(client)
	}
}

// SubscriberCount reports the number of live subscribers for a tenant.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[tenantID])
}
