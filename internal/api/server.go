// Package api exposes the learning engine over a local HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/a-kowalski/mindkeep/internal/conversation"
	"github.com/a-kowalski/mindkeep/internal/doctor"
	"github.com/a-kowalski/mindkeep/internal/learning"
	"github.com/a-kowalski/mindkeep/internal/version"
	"go.uber.org/zap"
)

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 2 * time.Minute
	requestTimeout = 90 * time.Second
)

// Server serves the learning API over HTTP.
type Server struct {
	service    *learning.Service
	diag       *doctor.Runner
	logger     *zap.Logger
	httpServer *http.Server
	startTime  time.Time
}

// NewServer builds the HTTP server around a learning service. The diagnostic
// runner may be nil, which disables /v1/diagnostics.
func NewServer(service *learning.Service, diag *doctor.Runner, listenAddr string, logger *zap.Logger) *Server {
	s := &Server{
		service: service,
		diag:    diag,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/turns", s.handleTurns)
	mux.HandleFunc("/v1/context", s.handleContext)
	mux.HandleFunc("/v1/facts/relevant", s.handleRelevantFacts)
	mux.HandleFunc("/v1/summary", s.handleLearningSummary)
	mux.HandleFunc("/v1/summaries", s.handleSummaries)
	mux.HandleFunc("/v1/feedback", s.handleFeedback)
	mux.HandleFunc("/v1/consolidate", s.handleConsolidate)
	mux.HandleFunc("/v1/reset", s.handleReset)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/v1/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.startTime = time.Now()
	s.logger.Info("starting learning API server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down learning API server")
	return s.httpServer.Shutdown(ctx)
}

type turnPayload struct {
	MessageType string    `json:"message_type"`
	Content     string    `json:"content"`
	Topics      []string  `json:"topics,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

type turnsRequest struct {
	UserID string        `json:"user_id"`
	Turns  []turnPayload `json:"turns"`
}

// handleTurns ingests a batch of conversation turns. Learning and
// consolidation run in the background; the response only confirms storage.
func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req turnsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}
	if len(req.Turns) == 0 {
		badRequest(w, "turns is required")
		return
	}

	turns := make([]conversation.Turn, len(req.Turns))
	for i, t := range req.Turns {
		turns[i] = conversation.Turn{
			MessageType: t.MessageType,
			Content:     t.Content,
			Topics:      t.Topics,
			Timestamp:   t.Timestamp,
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.service.ProcessNewTurns(ctx, req.UserID, turns); err != nil {
		s.logger.Error("failed to process turns",
			zap.String("user_id", req.UserID), zap.Error(err))
		internalError(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stored": len(turns),
	})
}

// handleContext returns the formatted memory context for a user and query.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	memoryContext := s.service.GetRelevantContext(userID, r.URL.Query().Get("query"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"context": memoryContext,
	})
}

// handleRelevantFacts returns structured scored facts for a query.
func (s *Server) handleRelevantFacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	query := r.URL.Query().Get("query")
	if userID == "" || query == "" {
		badRequest(w, "user_id and query are required")
		return
	}

	scored, err := s.service.RelevantFacts(userID, query, intParam(r, "limit"))
	if err != nil {
		s.logger.Error("relevant fact lookup failed",
			zap.String("user_id", userID), zap.Error(err))
		internalError(w)
		return
	}

	type scoredFact struct {
		ID         string  `json:"id"`
		Type       string  `json:"learning_type"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
		Relevance  float64 `json:"relevance"`
	}
	results := make([]scoredFact, len(scored))
	for i, sf := range scored {
		results[i] = scoredFact{
			ID:         sf.Fact.ID,
			Type:       string(sf.Fact.Type),
			Key:        sf.Fact.Key,
			Value:      sf.Fact.Value,
			Confidence: sf.Fact.Confidence,
			Relevance:  sf.Score,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"facts":   results,
	})
}

func (s *Server) handleLearningSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	summary, err := s.service.GetLearningSummary(userID)
	if err != nil {
		s.logger.Error("failed to build learning summary",
			zap.String("user_id", userID), zap.Error(err))
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleSummaries lists stored summaries (GET) or generates a new narrative
// summary through the configured provider (POST).
func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			badRequest(w, "user_id is required")
			return
		}
		summaries, err := s.service.RecentSummaries(userID, intParam(r, "limit"))
		if err != nil {
			s.logger.Error("failed to list summaries",
				zap.String("user_id", userID), zap.Error(err))
			internalError(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"user_id":   userID,
			"summaries": summaries,
		})

	case http.MethodPost:
		var req struct {
			UserID       string `json:"user_id"`
			MessageCount int    `json:"message_count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		if req.UserID == "" {
			badRequest(w, "user_id is required")
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		if err := s.service.CreateNarrativeSummary(ctx, req.UserID, req.MessageCount); err != nil {
			s.logger.Error("failed to create summary",
				zap.String("user_id", req.UserID), zap.Error(err))
			internalError(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		UserID    string `json:"user_id"`
		MessageID string `json:"message_id"`
		Helpful   bool   `json:"helpful"`
		Text      string `json:"feedback_text,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.MessageID == "" {
		badRequest(w, "user_id and message_id are required")
		return
	}

	if err := s.service.RecordFeedback(req.UserID, req.MessageID, req.Helpful, req.Text); err != nil {
		s.logger.Error("failed to record feedback",
			zap.String("user_id", req.UserID), zap.Error(err))
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleConsolidate forces a consolidation run and reports what changed.
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	report, err := s.service.TriggerConsolidation(ctx, req.UserID)
	if err != nil {
		s.logger.Error("consolidation failed",
			zap.String("user_id", req.UserID), zap.Error(err))
		internalError(w)
		return
	}
	if report == nil {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "already running",
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" {
		badRequest(w, "user_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	facts, summaries, err := s.service.ResetProfile(ctx, req.UserID)
	if err != nil {
		s.logger.Error("profile reset failed",
			zap.String("user_id", req.UserID), zap.Error(err))
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"deleted_facts":     facts,
		"deleted_summaries": summaries,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		badRequest(w, "user_id is required")
		return
	}

	stats, err := s.service.GetStats(userID)
	if err != nil {
		s.logger.Error("failed to build stats",
			zap.String("user_id", userID), zap.Error(err))
		internalError(w)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Version,
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleDiagnostics runs the doctor checks and reports them as JSON.
// Read-only, no side effects.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.diag == nil {
		http.Error(w, "diagnostics not available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.diag.RunAll())
}

func intParam(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func badRequest(w http.ResponseWriter, message string) {
	http.Error(w, message, http.StatusBadRequest)
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func internalError(w http.ResponseWriter) {
	http.Error(w, "Internal error", http.StatusInternalServerError)
}
