// Package server is the accepting side of the transport: an HTTP server
// whose /ws endpoint upgrades adapters to WebSocket after validating their
// handshake, then hands the socket to the shared Router/registry.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dayuer/botlink-go/internal/conn"
	"github.com/dayuer/botlink-go/internal/frame"
	"github.com/dayuer/botlink-go/internal/router"
)

// Config configures the accepting server.
type Config struct {
	Host string
	Port int

	// Tokens maps api_key → expected bearer token. Nil disables token
	// checks; a key absent from a non-nil map is rejected.
	Tokens map[string]string

	Router *router.Router

	QueueSize         int
	MaxForwardDepth   int
	HeartbeatInterval time.Duration // default 10s
}

// Server accepts adapter connections and registers them by RoutingKey.
type Server struct {
	cfg       Config
	router    *router.Router
	mux       *http.ServeMux
	srv       *http.Server
	accepted  atomic.Int64
	rejected  atomic.Int64
	startTime time.Time
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a server bound to the given router.
func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}

	s := &Server{
		cfg:       cfg,
		router:    cfg.Router,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ws", s.handleWS)
	return s
}

// Handler exposes the mux (used by tests to mount the server on httptest).
func (s *Server) Handler() http.Handler { return s.mux }

// Start runs the HTTP server and the heartbeat loop until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.mux,
	}

	log.Printf("[Server] ✅ WebSocket → ws://%s:%d/ws", s.cfg.Host, s.cfg.Port)

	go s.heartbeatLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the HTTP listener down gracefully. Connection teardown is the
// Router's job (Router.Stop).
func (s *Server) Stop() {
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(ctx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","connections":%d,"accepted":%d,"rejected":%d,"uptime":%d}`,
		s.router.Registry().Len(), s.accepted.Load(), s.rejected.Load(),
		int(time.Since(s.startTime).Seconds()))
}

// handshakeKey extracts the RoutingKey the client presents, from headers or
// query parameters.
func handshakeKey(r *http.Request) frame.RoutingKey {
	key := frame.RoutingKey{
		APIKey:   r.Header.Get(conn.HeaderAPIKey),
		Platform: r.Header.Get(conn.HeaderPlatform),
	}
	if key.APIKey == "" {
		key.APIKey = r.URL.Query().Get("api_key")
	}
	if key.Platform == "" {
		key.Platform = r.URL.Query().Get("platform")
	}
	return key
}

// handleWS validates the handshake, upgrades, and registers the connection.
// Failures are rejected with an HTTP status before any application frame is
// exchanged.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key := handshakeKey(r)
	if key.APIKey == "" || key.Platform == "" {
		s.rejected.Add(1)
		log.Printf("[Server] 🚫 Handshake from %s missing api_key/platform", r.RemoteAddr)
		http.Error(w, "missing api_key or platform", http.StatusBadRequest)
		return
	}

	if s.cfg.Tokens != nil {
		expected, ok := s.cfg.Tokens[key.APIKey]
		if !ok || r.Header.Get("Authorization") != "Bearer "+expected {
			s.rejected.Add(1)
			log.Printf("[Server] 🚫 Bad token for %s from %s", key, r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] ⚠️ Upgrade failed for %s: %v", key, err)
		return
	}

	c := conn.Accept(raw, conn.Config{
		Key:             key,
		QueueSize:       s.cfg.QueueSize,
		MaxForwardDepth: s.cfg.MaxForwardDepth,
		OnEnvelope:      s.router.HandleEnvelope,
		OnState:         s.router.HandleState,
	})
	s.router.Registry().Register(key, c)
	s.accepted.Add(1)
	log.Printf("[Server] 🔗 Accepted %s from %s", key, r.RemoteAddr)
}

// heartbeatLoop pings every registered connection so dead peers are
// detected within the read deadline window.
func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.router.Registry().Each(func(key frame.RoutingKey, c *conn.Connection) {
				if err := c.Ping(); err != nil {
					log.Printf("[Server] ⚠️ Heartbeat failed for %s: %v", key, err)
					c.Close()
				}
			})
		}
	}
}
