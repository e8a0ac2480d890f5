package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now (should be configured in production)
		return true
	},
}

// Server handles WebSocket connections
type Server struct {
	hub    *Hub
	logger *zap.Logger
}

// NewServer creates a new WebSocket server
func NewServer(logger *zap.Logger) *Server {
	hub := NewHub(logger)
	go hub.Run()

	return &Server{
		hub:    hub,
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(s.hub, conn, s.logger)
	s.hub.register <- client

	go client.WritePump()
	go client.ReadPump()

	s.logger.Info("new websocket connection",
		zap.String("remote_addr", r.RemoteAddr))
}

// Bridge subscribes to the event bus and forwards every event to the
// hub until ctx is canceled. It blocks and should be called in a
// goroutine.
func (s *Server) Bridge(ctx context.Context, bus *events.EventBus) error {
	sub := bus.Subscribe("websocket-hub",
		[]events.EventType{
			events.EventTypeTransaction,
			events.EventTypeGovernance,
			events.EventTypeMetrics,
		}, nil, 1024)
	if sub == nil {
		return errors.New("failed to subscribe websocket hub to event bus")
	}
	defer bus.Unsubscribe(sub.ID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.Channel:
			if !ok {
				return nil
			}
			s.hub.Broadcast(event)
		}
	}
}

// Hub returns the underlying hub (for broadcasting events)
func (s *Server) Hub() *Hub {
	return s.hub
}

// Stop stops the WebSocket server
func (s *Server) Stop() {
	s.hub.Stop()
}
