// Package httpapi exposes the chat service over HTTP: a JSON endpoint
// for single-shot questions, a websocket endpoint that streams the
// answer in chunks, health and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mfadhlan/selia/internal/metrics"
	"github.com/mfadhlan/selia/pkg/chat"
	"github.com/mfadhlan/selia/pkg/orchestrator"
)

const streamChunkSize = 512

// ChatService answers user questions
type ChatService interface {
	Ask(ctx context.Context, req chat.Request) (*chat.Reply, error)
}

// Server is the HTTP API server
type Server struct {
	server   *http.Server
	upgrader websocket.Upgrader
	chat     ChatService
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// ServerConfig contains dependencies for the HTTP server
type ServerConfig struct {
	Host    string
	Port    int
	Chat    ChatService
	Metrics *metrics.Metrics // Optional
	Logger  zerolog.Logger
}

// NewServer creates the HTTP API server
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("port is required")
	}

	s := &Server{
		chat:    cfg.Chat,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat", s.handleChat)
	mux.HandleFunc("/v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the underlying HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving in the background
func (s *Server) Start() error {
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	reply, err := s.chat.Ask(r.Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrGraphNotReady) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// streamMessage is one frame of the websocket answer stream
type streamMessage struct {
	Type       string `json:"type"` // chunk, done, error
	Content    string `json:"content,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	var req chat.Request
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(streamMessage{Type: "error", Error: "invalid request"})
		return
	}

	reply, err := s.chat.Ask(r.Context(), req)
	if err != nil {
		conn.WriteJSON(streamMessage{Type: "error", Error: err.Error()})
		return
	}

	answer := []rune(reply.Answer)
	for start := 0; start < len(answer); start += streamChunkSize {
		end := start + streamChunkSize
		if end > len(answer) {
			end = len(answer)
		}
		if err := conn.WriteJSON(streamMessage{Type: "chunk", Content: string(answer[start:end])}); err != nil {
			s.logger.Warn().Err(err).Msg("Stream write failed")
			return
		}
	}

	conn.WriteJSON(streamMessage{
		Type:       "done",
		ChatID:     reply.ChatID,
		Iterations: reply.Iterations,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
