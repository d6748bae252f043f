package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
	"github.com/predictalab/quorum/internal/learning"
	"github.com/predictalab/quorum/internal/review"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errs.IsInvalidState(err):
		status = http.StatusConflict
	case errs.IsUpstream(err):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "no such route: " + r.URL.Path})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	check := s.deps.Health.Health(r.Context())
	status := http.StatusOK
	if !check.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, check)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "scheduler not running in this process"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.GetStatus())
}

// --- review queue ---

func (s *Server) handleQueueForReview(w http.ResponseWriter, r *http.Request) {
	var req review.QueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.SignalID = mux.Vars(r)["id"]

	item, err := s.deps.Reviews.QueueForReview(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Metrics.AdmissionDecisions.WithLabelValues("review_queue").Inc()
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handlePendingReviews(w http.ResponseWriter, r *http.Request) {
	var targetID *string
	if v := r.URL.Query().Get("target_id"); v != "" {
		targetID = &v
	}
	items, err := s.deps.Reviews.GetPendingReviews(r.Context(), targetID)
	if err != nil {
		writeError(w, err)
		return
	}
	if targetID == nil {
		s.deps.Metrics.ReviewQueueDepth.Set(float64(len(items)))
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleReviewResponse(w http.ResponseWriter, r *http.Request) {
	var resp review.Response
	if !decodeBody(w, r, &resp) {
		return
	}
	resp.ReviewID = mux.Vars(r)["id"]

	outcome, err := s.deps.Reviews.HandleReviewResponse(r.Context(), resp)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Metrics.ReviewResolutions.WithLabelValues(string(resp.Decision)).Inc()
	writeJSON(w, http.StatusOK, outcome)
}

// --- learnings ---

func (s *Server) handleCreateLearning(w http.ResponseWriter, r *http.Request) {
	var in learning.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	l, err := s.deps.Learnings.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleActiveLearnings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	targetID := q.Get("target_id")
	if targetID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "target_id is required"})
		return
	}
	var minScope *domain.LearningScope
	if v := q.Get("min_scope"); v != "" {
		scope := domain.LearningScope(v)
		minScope = &scope
	}
	var analystID *string
	if v := q.Get("analyst_id"); v != "" {
		analystID = &v
	}

	learnings, err := s.deps.Learnings.GetActiveLearnings(r.Context(), targetID, minScope, analystID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, learnings)
}

type promptContextRequest struct {
	TargetID  string                 `json:"target_id"`
	AnalystID *string                `json:"analyst_id,omitempty"`
	Base      learning.PromptContext `json:"base"`
	MinScope  *domain.LearningScope  `json:"min_scope,omitempty"`
}

type promptContextResponse struct {
	Context    learning.PromptContext `json:"context"`
	AppliedIDs []string               `json:"applied_learning_ids"`
}

func (s *Server) handlePromptContext(w http.ResponseWriter, r *http.Request) {
	var req promptContextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	learnings, err := s.deps.Learnings.GetActiveLearnings(r.Context(), req.TargetID, req.MinScope, req.AnalystID)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, applied := learning.ApplyLearningsToPrompt(learnings, req.Base)
	s.deps.Metrics.LearningsApplied.Add(float64(len(applied)))
	writeJSON(w, http.StatusOK, promptContextResponse{Context: ctx, AppliedIDs: applied})
}

func (s *Server) handleSupersede(w http.ResponseWriter, r *http.Request) {
	var in learning.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	l, err := s.deps.Learnings.Supersede(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

type applicationRequest struct {
	WasHelpful *bool `json:"was_helpful,omitempty"`
}

func (s *Server) handleRecordApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Learnings.RecordApplication(r.Context(), mux.Vars(r)["id"], req.WasHelpful); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- learning queue ---

func (s *Server) handleCreateSuggestion(w http.ResponseWriter, r *http.Request) {
	var in learning.SuggestionInput
	if !decodeBody(w, r, &in) {
		return
	}
	item, err := s.deps.Suggestions.CreateSuggestion(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Metrics.LearningSuggestions.WithLabelValues("api").Inc()
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handlePendingSuggestions(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Suggestions.ListPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type suggestionResponseRequest struct {
	learning.RespondInput
	UserID string `json:"user_id"`
}

func (s *Server) handleSuggestionResponse(w http.ResponseWriter, r *http.Request) {
	var req suggestionResponseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := s.deps.Suggestions.Respond(r.Context(), mux.Vars(r)["id"], req.RespondInput, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// --- strategy ---

func (s *Server) handleAppliedStrategy(w http.ResponseWriter, r *http.Request) {
	applied, err := s.deps.Strategies.GetAppliedStrategy(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

type applyStrategyRequest struct {
	StrategyID string `json:"strategy_id"`
}

func (s *Server) handleApplyStrategy(w http.ResponseWriter, r *http.Request) {
	var req applyStrategyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	applied, err := s.deps.Strategies.ApplyStrategy(r.Context(), mux.Vars(r)["id"], req.StrategyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleRecommendStrategy(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Strategies.RecommendStrategy(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCompareStrategies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, b := q.Get("a"), q.Get("b")
	if a == "" || b == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "query params a and b are required"})
		return
	}
	cmp, err := s.deps.Strategies.CompareStrategies(r.Context(), a, b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// --- analyst portfolios ---

func (s *Server) handlePerformanceContext(w http.ResponseWriter, r *http.Request) {
	fork := domain.ForkType(r.URL.Query().Get("fork"))
	if fork == "" {
		fork = domain.ForkAI
	}
	pc, err := s.deps.Portfolios.BuildPerformanceContext(r.Context(), mux.Vars(r)["id"], fork)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pc)
}

func (s *Server) handleEvaluateStatus(w http.ResponseWriter, r *http.Request) {
	tr, err := s.deps.Portfolios.EvaluateAndUpdateStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if tr == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.deps.Metrics.PortfolioTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	writeJSON(w, http.StatusOK, tr)
}

type recoveryEligibility struct {
	Eligible      bool    `json:"eligible"`
	PaperPnlRatio float64 `json:"paper_pnl_percent"`
}

func (s *Server) handleRecoveryEligibility(w http.ResponseWriter, r *http.Request) {
	ok, pnl, err := s.deps.Portfolios.CheckRecoveryEligibility(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recoveryEligibility{Eligible: ok, PaperPnlRatio: pnl})
}

func (s *Server) handleProcessRecovery(w http.ResponseWriter, r *http.Request) {
	tr, err := s.deps.Portfolios.ProcessRecovery(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if tr == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.deps.Metrics.PortfolioTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
	writeJSON(w, http.StatusOK, tr)
}

// --- snapshots and moves ---

type captureSnapshotRequest struct {
	Value     float64           `json:"value"`
	ValueType string            `json:"value_type,omitempty"`
	Source    string            `json:"source,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleCaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	var req captureSnapshotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := s.deps.Snapshots.CaptureSnapshot(r.Context(), mux.Vars(r)["id"], req.Value, req.ValueType, req.Source, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Snapshots.GetLatestValue(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid from timestamp, want RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid to timestamp, want RFC3339"})
		return
	}
	change, err := s.deps.Snapshots.CalculateChange(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (s *Server) handleTargetMoves(w http.ResponseWriter, r *http.Request) {
	moves, err := s.deps.Detector.DetectMoves(r.Context(), mux.Vars(r)["id"], nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

func (s *Server) handleUniverseMoves(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Detector.DetectMovesInUniverse(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
