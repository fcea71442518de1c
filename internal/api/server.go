// Package api implements Hearth's HTTP server: the WebSocket chat
// endpoint, a one-shot chat endpoint, health and version, read-only
// views of alarms and the journal, and the Hue bridge setup routes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/hearth/internal/actions"
	"github.com/nugget/hearth/internal/alarm"
	"github.com/nugget/hearth/internal/buildinfo"
	"github.com/nugget/hearth/internal/journal"
	"github.com/nugget/hearth/internal/orchestrator"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Chatter runs one chat turn.
type Chatter interface {
	Chat(ctx context.Context, req orchestrator.Request) orchestrator.Result
}

// AlarmLister lists pending alarms.
type AlarmLister interface {
	List() []alarm.Alarm
}

// JournalReader reads recent journal entries.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// SessionCounter reports live WebSocket sessions.
type SessionCounter interface {
	http.Handler
	Count() int
}

// StatsSource reports conversation store statistics.
type StatsSource interface {
	Stats() map[string]any
}

// Server is the HTTP server.
type Server struct {
	address  string
	port     int
	chat     Chatter
	sharedID string
	logger   *slog.Logger
	server   *http.Server

	sessions SessionCounter
	alarms   AlarmLister
	journal  JournalReader
	convs    StatsSource
	hue      HueBridge
}

// NewServer creates a server. sharedID is the conversation used by
// POST /v1/chat when the request names none.
func NewServer(address string, port int, chat Chatter, sharedID string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address:  address,
		port:     port,
		chat:     chat,
		sharedID: sharedID,
		logger:   logger,
	}
}

// SetSessions mounts the WebSocket session manager on /ws.
func (s *Server) SetSessions(m SessionCounter) { s.sessions = m }

// SetAlarms enables GET /v1/alarms.
func (s *Server) SetAlarms(a AlarmLister) { s.alarms = a }

// SetJournal enables GET /v1/journal.
func (s *Server) SetJournal(j JournalReader) { s.journal = j }

// SetConversations adds conversation counts to /health.
func (s *Server) SetConversations(c StatsSource) { s.convs = c }

// SetHue enables the /hue routes.
func (s *Server) SetHue(h HueBridge) { s.hue = h }

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("POST /v1/chat", s.handleChat)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /v1/alarms", s.handleAlarms)
	mux.HandleFunc("GET /v1/journal", s.handleJournal)

	mux.HandleFunc("GET /hue/bridge/discover", s.handleHueDiscover)
	mux.HandleFunc("POST /hue/bridge/link", s.handleHueLink)
	mux.HandleFunc("GET /hue/test", s.handleHueTest)

	return s.withLogging(mux)
}

// Start serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. Hijacked WebSocket connections
// are not tracked by net/http and must be closed by their manager.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "websocket sessions not available")
		return
	}
	s.sessions.ServeHTTP(w, r)
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// handleChat runs one chat turn without a WebSocket. Interim messages
// are not delivered; the response is the final result.
// POST /v1/chat {"message": "turn on the lights"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	convID := req.ConversationID
	if convID == "" {
		convID = s.sharedID
	}

	res := s.chat.Chat(r.Context(), orchestrator.Request{
		ConversationID: convID,
		Text:           req.Message,
		Context:        actions.NewRequestContext(uuid.NewString(), r),
	})

	w.Header().Set("Content-Type", "application/json")
	if res.Type == orchestrator.TypeError && res.ActionResults == nil {
		w.WriteHeader(http.StatusBadGateway)
	}
	writeJSON(w, res, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "healthy", "uptime": buildinfo.Uptime().String()}
	if s.sessions != nil {
		body["sessions"] = s.sessions.Count()
	}
	if s.alarms != nil {
		body["alarms"] = len(s.alarms.List())
	}
	if s.convs != nil {
		for k, v := range s.convs.Stats() {
			body[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, body, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Current(), s.logger)
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	if s.alarms == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "alarms not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"alarms": s.alarms.List()}, s.logger)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.errorResponse(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "journal query failed")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"entries": entries}, s.logger)
}
