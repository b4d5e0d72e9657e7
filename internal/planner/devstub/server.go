// Package devstub implements the sidecar planning-service HTTP contract in
// process, for development (`orange-agent mock-planner`) and integration
// tests. It produces deterministic canned plans from transcript keywords and
// performs no reasoning.
package devstub

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
)

// Server holds the stub's in-memory state: a bounded telemetry buffer,
// mirroring the real sidecar's behavior.
type Server struct {
	logger *zap.Logger

	mu        sync.Mutex
	telemetry []schemas.SessionTelemetryEvent
}

const telemetryHighWater = 5000

// NewServer creates a stub server.
func NewServer(logger *zap.Logger) *Server {
	return &Server{logger: logger.Named("devstub")}
}

// Router mounts the full sidecar API surface.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Post("/v1/plan", s.handlePlan)
	r.Post("/v1/plan/simulate", s.handleSimulate)
	r.Get("/v1/models", s.handleModels)
	r.Post("/v1/verify", s.handleVerify)
	r.Post("/v1/telemetry", s.handleTelemetryPost)
	r.Get("/v1/telemetry", s.handleTelemetryGet)
	r.Get("/v1/events/{sessionID}", s.handleEvents)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req schemas.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	plan := s.cannedPlan(req.SessionID, req.Transcript)
	writeJSON(w, http.StatusOK, plan)
}

// cannedPlan maps transcript keywords to a deterministic plan so downstream
// components can be exercised without a live model.
func (s *Server) cannedPlan(sessionID, transcript string) schemas.ActionPlan {
	lower := strings.ToLower(transcript)
	plan := schemas.ActionPlan{
		SchemaVersion: schemas.SchemaVersionCurrent,
		SessionID:     sessionID,
		Confidence:    0.9,
		RiskLevel:     "low",
		Summary:       "Stub plan for: " + transcript,
	}

	switch {
	case strings.Contains(lower, "reply"):
		plan.RiskLevel = "medium"
		plan.RequiresConfirmation = true
		plan.Actions = []schemas.AgentAction{
			{ID: "a1", Kind: schemas.KindOpenApp, AppBundleID: "com.apple.mail", TimeoutMs: 5000},
			{ID: "a2", Kind: schemas.KindKeyCombo, KeyCombo: "cmd+r", TimeoutMs: 1000},
			{ID: "a3", Kind: schemas.KindType, Text: "Sure, see you at 3 PM.", TimeoutMs: 3000,
				ExpectedOutcome: "reply drafted"},
			{ID: "a4", Kind: schemas.KindKeyCombo, KeyCombo: "cmd+shift+d", TimeoutMs: 1000,
				ExpectedOutcome: "message is sent"},
		}
	case strings.Contains(lower, "open"):
		plan.Actions = []schemas.AgentAction{
			{ID: "a1", Kind: schemas.KindOpenApp, Target: appNameFrom(lower), TimeoutMs: 5000},
		}
	default:
		plan.Confidence = 0.4
		plan.Actions = []schemas.AgentAction{
			{ID: "a1", Kind: schemas.KindWait, TimeoutMs: 100},
		}
	}
	return plan
}

func appNameFrom(lower string) string {
	for _, name := range []string{"mail", "notes", "safari", "calendar", "messages"} {
		if strings.Contains(lower, name) {
			return strings.ToUpper(name[:1]) + name[1:]
		}
	}
	return "Finder"
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req schemas.PlanSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	plan := s.cannedPlan(req.SessionID, req.Transcript)
	writeJSON(w, http.StatusOK, schemas.PlanSimulationResponse{
		SchemaVersion:        schemas.SchemaVersionCurrent,
		SessionID:            req.SessionID,
		IsValid:              true,
		ParseErrors:          []string{},
		RiskLevel:            plan.RiskLevel,
		RequiresConfirmation: plan.RequiresConfirmation,
		Summary:              plan.Summary,
		ProposedActionsCount: len(plan.Actions),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, schemas.ModelsResponse{
		SchemaVersion: schemas.SchemaVersionCurrent,
		Routing: []schemas.ModelRoute{
			{App: "Mail", Model: "stub-complex", Reason: "composition needs larger context"},
			{Model: "stub-simple", Reason: "default route"},
		},
		FeatureFlags: map[string]string{"event_stream": "on"},
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req schemas.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := schemas.VerifyResponse{
		SchemaVersion: schemas.SchemaVersionCurrent,
		SessionID:     req.SessionID,
		Status:        "success",
		Confidence:    0.9,
	}
	if req.ExecutionResult != schemas.ExecutionSuccess {
		resp.Status = "failure"
		resp.Confidence = 0.2
		resp.Reason = "execution did not complete"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTelemetryPost(w http.ResponseWriter, r *http.Request) {
	var event schemas.SessionTelemetryEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.telemetry = append(s.telemetry, event)
	if len(s.telemetry) > telemetryHighWater {
		s.telemetry = s.telemetry[1000:]
	}
	count := len(s.telemetry)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": "accepted", "count": count})
}

func (s *Server) handleTelemetryGet(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	s.mu.Lock()
	start := len(s.telemetry) - limit
	if start < 0 {
		start = 0
	}
	recent := make([]schemas.SessionTelemetryEvent, len(s.telemetry)-start)
	copy(recent, s.telemetry[start:])
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"events": recent})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	stages := []struct {
		event    string
		message  string
		progress int
	}{
		{"planning_started", "Interpreting transcript", 10},
		{"planning_progress", "Selecting actions", 55},
		{"planning_complete", "Plan ready", 100},
	}
	for _, stage := range stages {
		progress := stage.progress
		payload, err := json.Marshal(schemas.PlannerStreamEvent{
			SessionID: sessionID,
			Event:     stage.event,
			Message:   stage.message,
			Progress:  &progress,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			s.logger.Warn("Failed to encode stream event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", stage.event, payload)
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
