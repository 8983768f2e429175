package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/metrics"
	"biotune/backend/services/bridge-service/internal/session"
)

// Message types pushed to clients.
const (
	TypeConnected      = "connected"
	TypeSessionStarted = string(session.EventStarted)
	TypeSessionStopped = string(session.EventStopped)
)

// Message is the JSON envelope written to every client.
type Message struct {
	Type          string     `json:"type"`
	ClientID      string     `json:"client_id,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	Active        bool       `json:"active"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DevicePresent bool       `json:"device_present"`
	Reason        string     `json:"reason,omitempty"`
}

// StatusMessage builds a message of type typ describing st.
func StatusMessage(typ string, st session.Status) Message {
	msg := Message{
		Type:          typ,
		SessionID:     st.ID,
		Active:        st.Active(),
		DevicePresent: st.DevicePresent,
	}
	if !st.StartedAt.IsZero() {
		startedAt := st.StartedAt
		msg.StartedAt = &startedAt
	}
	return msg
}

// Hub tracks notification clients and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewHub builds an empty hub.
func NewHub(logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
		metrics: m,
	}
}

// Add registers new client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.NotifyClients.Set(float64(n))
}

// Remove removes client.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.NotifyClients.Set(float64(n))
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg on every client without blocking.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode notification", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Send(data)
	}
}

// OnSessionEvent forwards session transitions to clients.
func (h *Hub) OnSessionEvent(ev session.Event) {
	msg := StatusMessage(string(ev.Type), ev.Status)
	msg.Reason = ev.Reason
	h.Broadcast(msg)
}

// Run closes every client once ctx is done.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
