// Package httpapi exposes the ensemble core over HTTP: review queue
// operations, learning lifecycle, strategy resolution, portfolio status and
// snapshot queries. JSON in, JSON out.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/learning"
	"github.com/predictalab/quorum/internal/motivation"
	"github.com/predictalab/quorum/internal/persistence"
	"github.com/predictalab/quorum/internal/review"
	"github.com/predictalab/quorum/internal/scheduler"
	"github.com/predictalab/quorum/internal/snapshot"
	"github.com/predictalab/quorum/internal/strategy"
	"github.com/predictalab/quorum/internal/telemetry"
)

// Deps carries the services the API fronts. Scheduler may be nil when the
// API runs without background sweeps.
type Deps struct {
	Reviews     *review.Service
	Learnings   *learning.Store
	Suggestions *learning.Queue
	Strategies  *strategy.Resolver
	Portfolios  *motivation.Service
	Snapshots   *snapshot.Service
	Detector    *snapshot.Detector
	Health      persistence.Health
	Metrics     *telemetry.Metrics
	Scheduler   *scheduler.Scheduler
}

// Config holds the server settings.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the ensemble core.
type Server struct {
	router *mux.Router
	server *http.Server
	deps   Deps
	cfg    Config
}

// NewServer builds the server and registers all routes.
func NewServer(cfg Config, deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		cfg:    cfg,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/scheduler/status", s.handleSchedulerStatus).Methods("GET")

	s.router.HandleFunc("/signals/{id}/review", s.handleQueueForReview).Methods("POST")
	s.router.HandleFunc("/reviews/pending", s.handlePendingReviews).Methods("GET")
	s.router.HandleFunc("/reviews/{id}/response", s.handleReviewResponse).Methods("POST")

	s.router.HandleFunc("/learnings", s.handleCreateLearning).Methods("POST")
	s.router.HandleFunc("/learnings/active", s.handleActiveLearnings).Methods("GET")
	s.router.HandleFunc("/learnings/prompt-context", s.handlePromptContext).Methods("POST")
	s.router.HandleFunc("/learnings/{id}/supersede", s.handleSupersede).Methods("POST")
	s.router.HandleFunc("/learnings/{id}/application", s.handleRecordApplication).Methods("POST")

	s.router.HandleFunc("/learning-queue", s.handleCreateSuggestion).Methods("POST")
	s.router.HandleFunc("/learning-queue/pending", s.handlePendingSuggestions).Methods("GET")
	s.router.HandleFunc("/learning-queue/{id}/response", s.handleSuggestionResponse).Methods("POST")

	s.router.HandleFunc("/universes/{id}/strategy", s.handleAppliedStrategy).Methods("GET")
	s.router.HandleFunc("/universes/{id}/strategy", s.handleApplyStrategy).Methods("POST")
	s.router.HandleFunc("/universes/{id}/strategy/recommendation", s.handleRecommendStrategy).Methods("GET")
	s.router.HandleFunc("/strategies/compare", s.handleCompareStrategies).Methods("GET")

	s.router.HandleFunc("/analysts/{id}/performance", s.handlePerformanceContext).Methods("GET")
	s.router.HandleFunc("/analysts/{id}/evaluate", s.handleEvaluateStatus).Methods("POST")
	s.router.HandleFunc("/analysts/{id}/recovery", s.handleRecoveryEligibility).Methods("GET")
	s.router.HandleFunc("/analysts/{id}/recovery", s.handleProcessRecovery).Methods("POST")

	s.router.HandleFunc("/targets/{id}/snapshots", s.handleCaptureSnapshot).Methods("POST")
	s.router.HandleFunc("/targets/{id}/snapshots/latest", s.handleLatestSnapshot).Methods("GET")
	s.router.HandleFunc("/targets/{id}/change", s.handleChange).Methods("GET")
	s.router.HandleFunc("/targets/{id}/moves", s.handleTargetMoves).Methods("GET")
	s.router.HandleFunc("/universes/{id}/moves", s.handleUniverseMoves).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(handleNotFound)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.ListenAddr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		id, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
