// Package api serves the derived state store over REST, GraphQL and
// WebSocket.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/api/graphql"
	apimiddleware "github.com/tokenlytics/engine-go/api/middleware"
	"github.com/tokenlytics/engine-go/api/websocket"
	"github.com/tokenlytics/engine-go/engine"
	"github.com/tokenlytics/engine-go/events"
	"github.com/tokenlytics/engine-go/storage"
)

// StatusProvider reports the engine pipeline status
type StatusProvider interface {
	Status() engine.Status
}

// Server represents the API server
type Server struct {
	config   *Config
	logger   *zap.Logger
	storage  storage.Reader
	eventBus *events.EventBus
	status   StatusProvider
	router   *chi.Mux
	server   *http.Server
	wsServer *websocket.Server

	bridgeCancel context.CancelFunc
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, store storage.Reader) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		config:  config,
		logger:  logger,
		storage: store,
		router:  chi.NewRouter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// SetEventBus sets the EventBus for the server (optional). Enables
// WebSocket fan-out and bus stats on health and subscriber endpoints.
func (s *Server) SetEventBus(bus *events.EventBus) {
	s.eventBus = bus
}

// SetStatusProvider attaches the engine so status endpoints report live
// pipeline state (optional)
func (s *Server) SetStatusProvider(sp StatusProvider) {
	s.status = sp
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.Logger(s.logger))
	s.router.Use(middleware.Recoverer)

	if s.config.EnableRateLimit {
		s.router.Use(apimiddleware.RateLimit(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		))
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
}

// corsMiddleware adds CORS headers to all responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, allowedOrigin := range s.config.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, Upgrade, Connection")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "300")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// WebSocket endpoint - registered directly without timeout/compress
	if s.config.EnableWebSocket {
		s.logger.Info("WebSocket API enabled", zap.String("path", s.config.WebSocketPath))

		s.wsServer = websocket.NewServer(s.logger)
		s.router.Get(s.config.WebSocketPath, s.wsServer.ServeHTTP)
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/subscribers", s.handleSubscribers)

	// REST query interface
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/transactions", s.handleTransactions)
		r.Get("/transactions/{hash}", s.handleTransaction)
		r.Get("/address/{address}/transactions", s.handleAddressTransactions)
		r.Get("/analytics/{address}", s.handleAnalytics)
		r.Get("/metrics", s.handleTokenMetrics)
		r.Get("/metrics/history", s.handleTokenMetricsHistory)
		r.Get("/proposals", s.handleProposals)
		r.Get("/proposals/{id}", s.handleProposal)
		r.Get("/proposals/{id}/votes", s.handleProposalVotes)
		r.Get("/holders/top", s.handleTopHolders)
		r.Get("/supply", s.handleSupply)
		r.Get("/status", s.handleStatus)
	})

	// GraphQL endpoint
	if s.config.EnableGraphQL {
		s.logger.Info("GraphQL API enabled", zap.String("path", s.config.GraphQLPath))

		// Late-bound so SetStatusProvider can be called after NewServer
		statusFn := func() *engine.Status {
			if s.status == nil {
				return nil
			}
			st := s.status.Status()
			return &st
		}

		graphqlHandler, err := graphql.NewHandler(s.storage, statusFn, s.logger)
		if err != nil {
			s.logger.Error("failed to create GraphQL handler", zap.Error(err))
		} else {
			s.router.Handle(s.config.GraphQLPath, graphqlHandler)
			s.router.Get(s.config.GraphQLPlaygroundPath, graphqlHandler.PlaygroundHandler())
			s.logger.Info("GraphQL playground enabled", zap.String("path", s.config.GraphQLPlaygroundPath))
		}
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	EventBus  *EventBusHealthInfo `json:"eventbus,omitempty"`
}

// EventBusHealthInfo contains EventBus health information
type EventBusHealthInfo struct {
	Subscribers     int    `json:"subscribers"`
	TotalEvents     uint64 `json:"total_events"`
	TotalDeliveries uint64 `json:"total_deliveries"`
	DroppedEvents   uint64 `json:"dropped_events"`
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	}

	if s.eventBus != nil {
		totalEvents, totalDeliveries, droppedEvents := s.eventBus.Stats()
		response.EventBus = &EventBusHealthInfo{
			Subscribers:     s.eventBus.SubscriberCount(),
			TotalEvents:     totalEvents,
			TotalDeliveries: totalDeliveries,
			DroppedEvents:   droppedEvents,
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"version":"1.0.0","name":"tokenlytics-engine"}`)
}

// SubscribersResponse represents the subscribers list response
type SubscribersResponse struct {
	TotalCount  int                      `json:"total_count"`
	Subscribers []*events.SubscriberInfo `json:"subscribers"`
}

// handleSubscribers handles the subscribers endpoint
func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		writeError(w, http.StatusNotFound, "EventBus not configured")
		return
	}

	// SubscriberInfo carries only counters, so report the websocket hub
	// and relay subscriptions the bus knows about
	var infos []*events.SubscriberInfo
	for _, id := range []events.SubscriptionID{"websocket-hub", "redis-relay", "kafka-relay"} {
		if info := s.eventBus.GetSubscriberInfo(id); info != nil {
			infos = append(infos, info)
		}
	}

	writeJSON(w, http.StatusOK, SubscribersResponse{
		TotalCount:  s.eventBus.SubscriberCount(),
		Subscribers: infos,
	})
}

// Start starts the API server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("graphql", s.config.EnableGraphQL),
		zap.Bool("websocket", s.config.EnableWebSocket),
	)

	// Bridge bus events into the WebSocket hub
	if s.wsServer != nil && s.eventBus != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.bridgeCancel = cancel
		go func() {
			if err := s.wsServer.Bridge(ctx, s.eventBus); err != nil && err != context.Canceled {
				s.logger.Error("websocket bridge stopped", zap.Error(err))
			}
		}()
	}

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.bridgeCancel != nil {
		s.bridgeCancel()
	}
	if s.wsServer != nil {
		s.wsServer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
