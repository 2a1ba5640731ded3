// Package server exposes the agent pipeline over HTTP and WebSocket. The
// JSON surface covers ask, health, memory insertion and memory search; the
// WebSocket endpoint streams the same request/response frames over one
// connection.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anigma-ai/anigma/agent"
	"github.com/anigma-ai/anigma/core"
)

// Asker is the slice of the pipeline the server invokes per chat request.
type Asker interface {
	Ask(ctx context.Context, userID, userInput string) *agent.Result
}

// MemoryAccess is the memory surface exposed over the admin endpoints.
type MemoryAccess interface {
	AddContext(ctx context.Context, text string, metadata map[string]any) (bool, error)
	QueryContext(ctx context.Context, text string, k int) ([]core.ContextItem, error)
	Stats(ctx context.Context) (core.MemoryStats, error)
}

// Config wires the server's collaborators and reported capabilities.
type Config struct {
	Pipeline Asker
	Memory   MemoryAccess

	// LocalAvailable and RemoteAvailable feed the health report.
	LocalAvailable  bool
	RemoteAvailable bool
}

// Server handles the HTTP and WebSocket surface.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// ChatRequest is the ask payload, over HTTP POST or a WebSocket frame.
type ChatRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id,omitempty"`
}

// ChatResponse mirrors the pipeline result on the wire.
type ChatResponse struct {
	Reply          string   `json:"reply"`
	ModelUsed      string   `json:"model_used"`
	ContextItems   int      `json:"context_items"`
	ProcessingTime float64  `json:"processing_time"`
	MemorySaved    []string `json:"memory_saved"`
}

// MemoryAddRequest inserts one item into memory.
type MemoryAddRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// New builds a server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/ask", s.handleAsk)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/memory/add", s.handleMemoryAdd)
	s.mux.HandleFunc("/memory/search", s.handleMemorySearch)
	s.mux.HandleFunc("/ws", s.handleWS)

	return s
}

// Handler returns the root handler, usable with httptest or a custom
// http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe blocks serving on addr until the context is cancelled or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[SERVER] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "anigma",
		"message":   "Personal assistant agent is running",
		"endpoints": []string{"/ask", "/health", "/memory/add", "/memory/search", "/ws"},
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	result := s.cfg.Pipeline.Ask(r.Context(), userID(req.UserID), req.Text)
	writeJSON(w, http.StatusOK, toChatResponse(result))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"models_available": map[string]bool{
			"local":  s.cfg.LocalAvailable,
			"remote": s.cfg.RemoteAvailable,
		},
	})
}

func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req MemoryAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}

	metadata := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	if _, ok := metadata["source"]; !ok {
		metadata["source"] = "api"
	}

	inserted, err := s.cfg.Memory.AddContext(r.Context(), req.Text, metadata)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("memory insert failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stored":    inserted,
		"duplicate": !inserted,
	})
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	topK := 5
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	items, err := s.cfg.Memory.QueryContext(r.Context(), query, topK)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("memory search failed: %v", err))
		return
	}
	if items == nil {
		items = []core.ContextItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": items,
	})
}

// handleWS upgrades the connection and serves chat frames until the client
// disconnects. Each frame is one ChatRequest answered with one
// ChatResponse; malformed frames get an error frame and the loop keeps
// going.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[SERVER] WebSocket read failed: %v", err)
			}
			return
		}

		if strings.TrimSpace(req.Text) == "" {
			if err := conn.WriteJSON(map[string]string{"error": "text must not be empty"}); err != nil {
				return
			}
			continue
		}

		result := s.cfg.Pipeline.Ask(r.Context(), userID(req.UserID), req.Text)
		if err := conn.WriteJSON(toChatResponse(result)); err != nil {
			log.Printf("[SERVER] WebSocket write failed: %v", err)
			return
		}
	}
}

func toChatResponse(result *agent.Result) ChatResponse {
	saved := result.MemorySaved
	if saved == nil {
		saved = []string{}
	}
	return ChatResponse{
		Reply:          result.Response,
		ModelUsed:      result.ModelUsed,
		ContextItems:   result.ContextItems,
		ProcessingTime: result.ProcessingTime,
		MemorySaved:    saved,
	}
}

func userID(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[SERVER] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
