package broadcast

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

var (
	ErrHubStopped       = errors.New("hub is stopped")
	ErrAlreadyConnected = errors.New("connection already registered")
)

// frame is the outbound wire shape: {"event": ..., "data": ...}.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub routes encoded events to live connections by ConnectionID.
type Hub struct {
	mu      sync.RWMutex
	clients map[domain.ConnectionID]*clientWriter
	stopped bool
	clock   clockwork.Clock
	metrics *metrics.WebSocketMetrics
}

func NewHub(clock clockwork.Clock, m *metrics.WebSocketMetrics) *Hub {
	return &Hub{
		clients: make(map[domain.ConnectionID]*clientWriter),
		clock:   clock,
		metrics: m,
	}
}

// Register starts a writer for conn under id.
func (h *Hub) Register(id domain.ConnectionID, conn *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrHubStopped
	}
	if _, ok := h.clients[id]; ok {
		return ErrAlreadyConnected
	}

	h.clients[id] = newClientWriter(conn, h.clock, h.metrics)
	h.metrics.ActiveConnections.Inc()
	return nil
}

// Unregister stops the writer for id and closes its connection. Unknown ids are ignored.
func (h *Hub) Unregister(id domain.ConnectionID) {
	h.mu.Lock()
	cw, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		h.metrics.ActiveConnections.Dec()
	}
	h.mu.Unlock()

	if ok {
		cw.stop()
	}
}

// Publish encodes the event once and enqueues it for every recipient still connected.
// Recipients that are gone are skipped; recipients whose buffer is full are evicted.
func (h *Hub) Publish(recipients []domain.ConnectionID, event string, payload any) {
	if len(recipients) == 0 {
		return
	}

	msg, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		slog.Error("Failed to encode outbound event", "event", event, "error", err)
		return
	}

	var slow []domain.ConnectionID
	h.mu.RLock()
	for _, id := range recipients {
		cw, ok := h.clients[id]
		if !ok {
			continue
		}
		if cw.enqueue(msg) {
			h.metrics.MessagesSent.WithLabelValues(event).Inc()
		} else {
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.evict(id)
	}
}

// Send delivers a single event to one connection.
func (h *Hub) Send(id domain.ConnectionID, event string, payload any) {
	h.Publish([]domain.ConnectionID{id}, event, payload)
}

// PublishAll delivers an event to every registered connection.
func (h *Hub) PublishAll(event string, payload any) {
	h.mu.RLock()
	ids := make([]domain.ConnectionID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	h.Publish(ids, event, payload)
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every connection with a close frame and rejects further registrations.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	clients := h.clients
	h.clients = make(map[domain.ConnectionID]*clientWriter)
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, cw := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cw.stopGraceful("Server shutting down")
		}()
		h.metrics.ActiveConnections.Dec()
	}
	wg.Wait()
}

func (h *Hub) evict(id domain.ConnectionID) {
	h.mu.Lock()
	cw, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		h.metrics.ActiveConnections.Dec()
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	h.metrics.SlowClientsEvicted.Inc()
	slog.Warn("Evicting slow client", "connection_id", id)
	go cw.stopGraceful("Client too slow")
}
