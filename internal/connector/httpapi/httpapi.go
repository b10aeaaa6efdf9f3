// Package httpapi exposes the chat workflow over a small JSON HTTP API:
// POST /chat, GET /health and GET /stats.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"curie/internal/bus"
	"curie/internal/connector"
)

func init() {
	connector.Register(&Server{})
}

// Server is the HTTP API connector.
type Server struct {
	rt *connector.Runtime
}

func (s *Server) ID() string { return "http" }

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context, rt *connector.Runtime) error {
	s.rt = rt

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", rt.Config.APIPort),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		log.Println("[API] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[API] listening on http://localhost:%d", rt.Config.APIPort)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Handler builds the route mux; split out so tests can drive it with
// httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

type chatRequest struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	IdempotencyKey string `json:"idempotency_key"`
}

type chatResponse struct {
	Text             string    `json:"text"`
	Timestamp        time.Time `json:"timestamp"`
	ModelUsed        string    `json:"model_used"`
	ProcessingTimeMS float64   `json:"processing_time_ms"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Message == "" {
		http.Error(w, "user_id and message are required", http.StatusBadRequest)
		return
	}
	// Without a client-supplied key every request is a distinct message.
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	turnCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	reply := s.rt.Workflow.Process(turnCtx, bus.NormalizedMessage{
		Platform:       "http",
		ExternalUserID: req.UserID,
		ExternalChatID: req.UserID,
		MessageID:      req.IdempotencyKey,
		Text:           req.Message,
		Timestamp:      time.Now(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		Text:             reply.Text,
		Timestamp:        reply.Timestamp,
		ModelUsed:        reply.ModelUsed,
		ProcessingTimeMS: reply.ProcessingTimeMS,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "online",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.rt.Workflow.Stats())
}
