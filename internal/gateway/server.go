// Package gateway is the WebSocket front door. It upgrades HTTP connections
// with gobwas/ws, reads text frames in one goroutine per connection, and
// hands each frame to the dispatcher. It also serves /healthz and /metrics.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/pairline/pairline/internal/metrics"
)

// Config holds tunable parameters for the gateway.
type Config struct {
	ListenAddr     string
	MaxConnections int
	WriteTimeout   time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":8080",
		MaxConnections: 100000,
		WriteTimeout:   10 * time.Second,
	}
}

// Server accepts WebSocket clients and relays frames to the handler.
type Server struct {
	config       Config
	conns        *manager
	handle       func(userID, text string)
	onDisconnect func(userID string)
	httpServer   *http.Server
	startedAt    time.Time
}

// NewServer creates a Server. handle is called from the connection's read
// goroutine for every inbound text frame.
func NewServer(config Config, handle func(userID, text string)) *Server {
	return &Server{
		config: config,
		conns:  newManager(),
		handle: handle,
	}
}

// SetOnDisconnect registers a callback invoked after a connection is
// removed from the registry.
func (s *Server) SetOnDisconnect(fn func(userID string)) {
	s.onDisconnect = fn
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	log.Printf("[gateway] listening on %s (max_conns=%d)", s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: http server: %w", err)
	}
	return nil
}

// handleUpgrade upgrades the HTTP request and starts the read loop. The
// client identifies itself with the user_id query parameter; without one a
// fresh UUID is assigned and echoed back so the client can persist it.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	userID := r.URL.Query().Get("user_id")
	assigned := userID == ""
	if assigned {
		userID = uuid.New().String()
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	c := &Connection{
		UserID:    userID,
		SessionID: uuid.New().String(),
		Conn:      conn,
		CreatedAt: time.Now(),
	}

	if prev := s.conns.add(c); prev != nil {
		log.Printf("[gateway] user=%s reconnected, closing previous session=%s", userID, prev.SessionID)
		prev.Close()
	}

	if assigned {
		if err := c.WriteText([]byte("Your ID: " + userID)); err != nil {
			log.Printf("[gateway] send assigned id to session=%s: %v", c.SessionID, err)
		}
	}

	log.Printf("[gateway] connected user=%s session=%s (total=%d)", userID, c.SessionID, s.conns.count())
	go s.readLoop(c)
}

// readLoop reads frames until the connection dies. Control frames are
// answered by wsutil; data frames go to the handler.
func (s *Server) readLoop(c *Connection) {
	defer s.removeConnection(c)

	for {
		header, reader, err := wsutil.NextReader(c.Conn, ws.StateServerSide)
		if err != nil {
			return
		}

		if header.OpCode.IsControl() {
			if header.OpCode == ws.OpClose {
				return
			}
			if err := wsutil.ControlFrameHandler(c.Conn, ws.StateServerSide)(header, reader); err != nil {
				return
			}
			continue
		}

		data := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, data); err != nil {
				return
			}
		}
		if len(data) == 0 {
			continue
		}

		s.handle(c.UserID, string(data))
	}
}

func (s *Server) removeConnection(c *Connection) {
	c.Close()
	if !s.conns.remove(c) {
		return
	}
	if s.onDisconnect != nil {
		s.onDisconnect(c.UserID)
	}
	log.Printf("[gateway] disconnected user=%s session=%s (total=%d)", c.UserID, c.SessionID, s.conns.count())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Send writes a text frame to the user's connection. It fails when the user
// is not connected.
func (s *Server) Send(userID, text string) error {
	c := s.conns.get(userID)
	if c == nil {
		return fmt.Errorf("gateway: user %s not connected", userID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteText([]byte(text))
	_ = c.Conn.SetWriteDeadline(time.Time{})

	if err != nil {
		return fmt.Errorf("gateway: write to %s: %w", userID, err)
	}
	return nil
}

// Shutdown stops the listener and closes every connection.
func (s *Server) Shutdown() error {
	log.Printf("[gateway] shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("[gateway] http shutdown: %v", err)
		}
	}

	for _, c := range s.conns.all() {
		c.Close()
	}

	log.Printf("[gateway] stopped, all connections closed")
	return nil
}
