// Package persistence declares the repository contracts the ensemble core
// depends on. Implementations guarantee atomicity per single-record write;
// cross-record coupling is handled by the services with compensating cleanup.
package persistence

import (
	"context"
	"time"

	"github.com/predictalab/quorum/internal/domain"
)

// TimeRange is a half-open [From, To) query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// UniverseRepo provides universe lookups and threshold override writes.
type UniverseRepo interface {
	// GetByID returns the universe or errs.NotFound.
	GetByID(ctx context.Context, id string) (*domain.Universe, error)

	// List returns all universes, active first.
	List(ctx context.Context) ([]domain.Universe, error)

	// UpdateThresholds replaces the universe's threshold override snapshot.
	UpdateThresholds(ctx context.Context, id string, t *domain.ThresholdOverrides) error
}

// StrategyRepo provides read access to the strategy catalog.
type StrategyRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Strategy, error)

	// GetBySlug returns the strategy with the given slug or errs.NotFound.
	GetBySlug(ctx context.Context, slug string) (*domain.Strategy, error)

	List(ctx context.Context) ([]domain.Strategy, error)
}

// TargetRepo provides target lookups for sweeps and scope resolution.
type TargetRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Target, error)

	// ListActiveByUniverse returns active targets for a universe sweep.
	ListActiveByUniverse(ctx context.Context, universeID string) ([]domain.Target, error)
}

// SnapshotRepo stores the immutable per-target observation series.
type SnapshotRepo interface {
	// Insert appends one snapshot row. Snapshots are never updated.
	Insert(ctx context.Context, snap domain.TargetSnapshot) error

	// Latest returns the most recent snapshot for a target, or errs.NotFound
	// when the target has no observations yet.
	Latest(ctx context.Context, targetID string) (*domain.TargetSnapshot, error)

	// AtOrBefore returns the newest snapshot captured at or before ts.
	AtOrBefore(ctx context.Context, targetID string, ts time.Time) (*domain.TargetSnapshot, error)

	// ListRange returns snapshots in [From, To) ordered by captured_at ascending.
	ListRange(ctx context.Context, targetID string, tr TimeRange) ([]domain.TargetSnapshot, error)

	// DeleteOlderThan removes snapshots captured strictly before cutoff and
	// returns the number of rows removed.
	DeleteOlderThan(ctx context.Context, targetID string, cutoff time.Time) (int64, error)
}

// SignalRepo provides signal reads and disposition transitions.
type SignalRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Signal, error)

	Insert(ctx context.Context, sig domain.Signal) error

	// SetDisposition writes the signal's disposition and, when reviewQueueID
	// is non-nil, the review back-reference, as one row update.
	SetDisposition(ctx context.Context, id string, d domain.SignalDisposition, reviewQueueID *string) error
}

// ReviewRepo stores pending and resolved review queue items.
type ReviewRepo interface {
	Insert(ctx context.Context, item domain.ReviewQueueItem) error

	GetByID(ctx context.Context, id string) (*domain.ReviewQueueItem, error)

	// ListPending returns pending items oldest-first; targetID narrows when
	// non-nil.
	ListPending(ctx context.Context, targetID *string) ([]domain.ReviewQueueItem, error)

	// Resolve marks the item resolved with the decision fields. It must only
	// be called after the decision's effects have been applied.
	Resolve(ctx context.Context, id string, decision domain.ReviewDecision, decidedBy string, decidedAt time.Time, notes string) error

	// Delete removes an item; used only as compensating cleanup when the
	// paired signal write fails during admission.
	Delete(ctx context.Context, id string) error
}

// PredictorRepo stores predictors derived from approved signals.
type PredictorRepo interface {
	Insert(ctx context.Context, p domain.Predictor) error

	// ListActiveByTarget returns non-expired active predictors for a target.
	ListActiveByTarget(ctx context.Context, targetID string) ([]domain.Predictor, error)

	// ExpireStale marks active predictors whose expires_at is before now as
	// expired and returns the number transitioned.
	ExpireStale(ctx context.Context, universeID string, now time.Time) (int64, error)
}

// LearningScopeQuery narrows an active-learnings lookup. The scope chain is
// the target's ancestry: runner, its domain, its universe, the target itself.
type LearningScopeQuery struct {
	DomainID   string
	UniverseID string
	TargetID   string
	MinTier    *domain.LearningScope
	AnalystID  *string
}

// LearningRepo stores versioned learnings.
type LearningRepo interface {
	Insert(ctx context.Context, l domain.Learning) error

	GetByID(ctx context.Context, id string) (*domain.Learning, error)

	// ListActiveForScope returns learnings whose scope chain contains the
	// query, filtered to status=active and superseded_by IS NULL.
	ListActiveForScope(ctx context.Context, q LearningScopeQuery) ([]domain.Learning, error)

	// SetSupersededBy links old -> new. Called only after the new row is
	// durably created.
	SetSupersededBy(ctx context.Context, oldID, newID string) error

	// IncrementUsage bumps times_applied, and times_helpful when helpful.
	IncrementUsage(ctx context.Context, id string, helpful bool) error

	// Delete removes a learning row outright. Supersession is the normal
	// retirement path; Delete backs out a row whose surrounding operation
	// failed after the insert.
	Delete(ctx context.Context, id string) error
}

// LearningQueueRepo stores learning suggestions awaiting disposition.
type LearningQueueRepo interface {
	Insert(ctx context.Context, item domain.LearningQueueItem) error

	GetByID(ctx context.Context, id string) (*domain.LearningQueueItem, error)

	ListPending(ctx context.Context) ([]domain.LearningQueueItem, error)

	// Resolve stamps the disposition, the chosen final_* fields and the
	// created learning id (nil on rejection).
	Resolve(ctx context.Context, item domain.LearningQueueItem) error
}

// PortfolioRepo stores analyst incentive ledgers.
type PortfolioRepo interface {
	// GetByAnalyst returns the analyst's portfolio, or nil with no error when
	// none exists (the evaluation sweep treats a missing ledger as a no-op).
	GetByAnalyst(ctx context.Context, analystID string) (*domain.AnalystPortfolio, error)

	// ListByFork returns all portfolios of one fork type.
	ListByFork(ctx context.Context, fork domain.ForkType) ([]domain.AnalystPortfolio, error)

	// ListByStatus returns portfolios currently in the given status.
	ListByStatus(ctx context.Context, fork domain.ForkType, status domain.PortfolioStatus) ([]domain.AnalystPortfolio, error)

	// CompareAndSetStatus transitions status only if the row still holds
	// prev, returning false when another writer got there first.
	CompareAndSetStatus(ctx context.Context, analystID string, prev, next domain.PortfolioStatus, at time.Time) (bool, error)
}

// PerspectiveRepo stores immutable standing-instruction versions.
type PerspectiveRepo interface {
	// LatestVersion returns the newest version for an analyst/tier, or nil
	// with no error when none exists yet.
	LatestVersion(ctx context.Context, analystID string, tier domain.PerspectiveTier) (*domain.PerspectiveVersion, error)

	Insert(ctx context.Context, v domain.PerspectiveVersion) error
}

// Repository aggregates the persistence contracts for wiring.
type Repository struct {
	Universes     UniverseRepo
	Strategies    StrategyRepo
	Targets       TargetRepo
	Snapshots     SnapshotRepo
	Signals       SignalRepo
	Reviews       ReviewRepo
	Predictors    PredictorRepo
	Learnings     LearningRepo
	LearningQueue LearningQueueRepo
	Portfolios    PortfolioRepo
	Perspectives  PerspectiveRepo
}

// HealthCheck reports persistence layer health.
type HealthCheck struct {
	Healthy        bool      `json:"healthy"`
	Errors         []string  `json:"errors,omitempty"`
	LastCheck      time.Time `json:"last_check"`
	ResponseTimeMS int64     `json:"response_time_ms"`
}

// Health is implemented by backends that can report connectivity.
type Health interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) HealthCheck
}
