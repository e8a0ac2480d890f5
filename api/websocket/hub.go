package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/events"
)

// Hub maintains the set of active clients and fans bus events out to
// them
type Hub struct {
	// Registered clients
	clients map[*Client]bool
	mu      sync.RWMutex

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Broadcast events to clients
	broadcast chan events.Event

	logger *zap.Logger
}

// NewHub creates a new Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan events.Event, 256),
		logger:     logger,
	}
}

// Run runs the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client registered",
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client unregistered",
				zap.Int("total_clients", total))

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// Broadcast hands an event to the hub for fan-out. Never blocks: a full
// hub buffer drops the event.
func (h *Hub) Broadcast(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			zap.String("kind", string(event.Kind())))
	}
}

// broadcastEvent delivers an event to every client whose subscriptions
// cover it. Each client gets the event framed with the topic that
// matched, so per-address room subscribers can tell rooms apart.
func (h *Hub) broadcastEvent(event events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sentCount := 0
	for client := range h.clients {
		topic, want := client.wantsEvent(event)
		if !want {
			continue
		}

		messageBytes, err := encodeEventMessage(topic, event)
		if err != nil {
			h.logger.Error("failed to marshal event", zap.Error(err))
			return
		}

		select {
		case client.send <- messageBytes:
			sentCount++
		default:
			// Client buffer full, evict the connection
			h.logger.Warn("client buffer full, closing connection")
			close(client.send)
			delete(h.clients, client)
		}
	}

	h.logger.Debug("event broadcasted",
		zap.String("kind", string(event.Kind())),
		zap.Int("recipients", sentCount))
}

// encodeEventMessage frames an event for the wire
func encodeEventMessage(topic Topic, event events.Event) ([]byte, error) {
	payload, err := json.Marshal(EventPayload{
		Topic: topic,
		Kind:  event.Kind(),
		Data:  event,
	})
	if err != nil {
		return nil, err
	}

	return json.Marshal(Message{Type: "event", Payload: payload})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub and closes all client connections
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}

	h.logger.Info("hub stopped")
}
