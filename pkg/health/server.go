// Package health serves the keep-alive HTTP endpoint plus health,
// metrics, and event-stream routes. Uptime monitors ping the root
// endpoint to keep the host awake.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/banter/internal/observability"
	"github.com/harun/banter/pkg/events"
)

// StatusFunc reports the current active session count
type StatusFunc func() int

// ServerOptions holds server configuration
type ServerOptions struct {
	Host string
	Port int
}

// Server is the keep-alive HTTP server
type Server struct {
	options        ServerOptions
	server         *http.Server
	hub            *events.Hub
	activeSessions StatusFunc
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new keep-alive server
func NewServer(options ServerOptions, hub *events.Hub, activeSessions StatusFunc, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8080
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if activeSessions == nil {
		return nil, fmt.Errorf("active session reporter is required")
	}

	return &Server{
		options:        options,
		hub:            hub,
		activeSessions: activeSessions,
		logger:         logger.With().Str("component", "health").Logger(),
		startTime:      time.Now(),
	}, nil
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	if s.hub != nil {
		mux.HandleFunc("/events", s.hub.HandleWebSocket)
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting keep-alive server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start keep-alive server: %w", err)
	}
	return nil
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.options.Host, fmt.Sprintf("%d", s.options.Port))
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down keep-alive server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown keep-alive server: %w", err)
	}

	s.logger.Info().Msg("Keep-alive server stopped")
	return nil
}

func (s *Server) track(w http.ResponseWriter, r *http.Request, handler func(http.ResponseWriter, *http.Request)) {
	s.shutdownMu.RLock()
	shuttingDown := s.isShuttingDown
	s.shutdownMu.RUnlock()
	if shuttingDown {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()
	handler(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.track(w, r, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("I'm alive!"))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.track(w, r, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		response := map[string]interface{}{
			"status":         "ok",
			"uptime":         time.Since(s.startTime).Seconds(),
			"activeSessions": s.activeSessions(),
			"timestamp":      time.Now().UnixMilli(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	})
}
