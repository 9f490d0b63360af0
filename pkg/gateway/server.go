// Package gateway exposes the orchestrator over HTTP and WebSocket: query
// and history endpoints under /v1, health and metrics endpoints, and a /ws
// stream carrying progress events. All /v1 routes and /ws require the
// shared secret.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aksel/sage/internal/observability"
	"github.com/aksel/sage/internal/tracing"
	"github.com/aksel/sage/pkg/orchestrator"
	"github.com/aksel/sage/pkg/session"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// QueryService answers queries and exposes conversation history per
// session key. *orchestrator.Service satisfies it.
type QueryService interface {
	RunQuery(ctx context.Context, sessionKey, query string) (*orchestrator.Result, error)
	History(sessionKey string) ([]session.ConversationEntry, error)
	ClearHistory(ctx context.Context, sessionKey string) error
}

// HistoryResponse is the body of GET /v1/history.
type HistoryResponse struct {
	SessionKey string                      `json:"session_key"`
	Entries    []session.ConversationEntry `json:"entries"`
	Count      int                         `json:"count"`
}

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	SharedSecret string
	Service      QueryService

	// Broadcaster delivers frames to websocket clients. Pass the same
	// instance wired as the orchestrator's Observer so query events reach
	// the stream; when nil a detached broadcaster is created and /ws
	// carries results only.
	Broadcaster *Broadcaster

	Logger zerolog.Logger
}

// Server is the gateway server.
type Server struct {
	host         string
	port         int
	sharedSecret string
	service      QueryService
	broadcaster  *Broadcaster
	upgrader     websocket.Upgrader
	logger       zerolog.Logger

	server   *http.Server
	listener net.Listener

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a gateway server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if cfg.Broadcaster == nil {
		cfg.Broadcaster = NewBroadcaster(cfg.Logger)
	}

	return &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		service:      cfg.Service,
		broadcaster:  cfg.Broadcaster,
		logger:       cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{Handler: s.routes()}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight queries and shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	s.broadcaster.Broadcast("server.shutdown", map[string]interface{}{
		"message": "Server is shutting down",
	})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	for _, client := range s.broadcaster.clients.All() {
		_ = client.Conn.Close()
	}

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/query", s.requireAuth(s.handleQuery))
	mux.HandleFunc("/v1/history", s.requireAuth(s.handleHistory))
	mux.HandleFunc("/ws", s.requireAuth(s.handleWebSocket))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	traceID := r.Header.Get("X-Trace-Id")
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	ctx := tracing.WithTraceID(r.Context(), traceID)
	logger := tracing.LoggerFromContext(ctx, s.logger)

	logger.Info().
		Str("session_key", req.SessionKey).
		Msg("Gateway received query request")

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	result, err := s.service.RunQuery(ctx, req.SessionKey, req.Query)
	if err != nil {
		if errors.Is(err, session.ErrInvalidKey) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error().Err(err).Msg("Query execution failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("session_key")
	if key == "" {
		key = orchestrator.DefaultSessionKey
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := s.service.History(key)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrInvalidKey) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, HistoryResponse{
			SessionKey: key,
			Entries:    entries,
			Count:      len(entries),
		})

	case http.MethodDelete:
		if err := s.service.ClearHistory(r.Context(), key); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, session.ErrInvalidKey) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:          clientID,
		Conn:        conn,
		ConnectedAt: time.Now(),
		IPAddress:   r.RemoteAddr,
	}
	s.broadcaster.clients.Add(client)

	s.logger.Info().
		Str("client_id", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Client connected")

	go s.readClient(client)
}

func (s *Server) readClient(client *Client) {
	defer func() {
		_ = client.Conn.Close()
		s.broadcaster.clients.Remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Error().Err(err).Str("client_id", client.ID).Msg("WebSocket error")
			}
			return
		}
		s.handleClientMessage(client, message)
	}
}

func (s *Server) handleClientMessage(client *Client, message []byte) {
	var req QueryRequest
	if err := json.Unmarshal(message, &req); err != nil {
		s.sendErrorFrame(client, "invalid message")
		return
	}

	switch req.Type {
	case "query":
		if strings.TrimSpace(req.Query) == "" {
			s.sendErrorFrame(client, "query is required")
			return
		}
		s.inFlightReqs.Add(1)
		go func() {
			defer s.inFlightReqs.Done()
			s.runStreamedQuery(client, req)
		}()

	default:
		s.sendErrorFrame(client, fmt.Sprintf("unknown message type: %q", req.Type))
	}
}

// runStreamedQuery executes one websocket-initiated query. Progress events
// reach the client through the shared broadcaster; the final result frame
// goes to the requesting client only.
func (s *Server) runStreamedQuery(client *Client, req QueryRequest) {
	ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
	logger := tracing.LoggerFromContext(ctx, s.logger)

	result, err := s.service.RunQuery(ctx, req.SessionKey, req.Query)
	if err != nil {
		logger.Error().Err(err).Str("client_id", client.ID).Msg("Streamed query failed")
		s.sendErrorFrame(client, err.Error())
		return
	}

	if err := s.broadcaster.SendTo(client, StreamMessage{Type: frameResult, Data: result}); err != nil {
		logger.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to send result frame")
	}
}

func (s *Server) sendErrorFrame(client *Client, msg string) {
	if err := s.broadcaster.SendTo(client, StreamMessage{Type: frameError, Error: msg}); err != nil {
		s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to send error frame")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
