// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx. Every call runs under a per-call timeout; not-found rows surface as
// errs.NotFound so services can branch on kind.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/predictalab/quorum/internal/persistence"
)

// DefaultTimeout bounds a single repository call.
const DefaultTimeout = 5 * time.Second

// Connect opens a pooled connection and verifies it.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewRepository wires all postgres-backed repositories over one pool.
func NewRepository(db *sqlx.DB) *persistence.Repository {
	return &persistence.Repository{
		Universes:     NewUniverseRepo(db, DefaultTimeout),
		Strategies:    NewStrategyRepo(db, DefaultTimeout),
		Targets:       NewTargetRepo(db, DefaultTimeout),
		Snapshots:     NewSnapshotRepo(db, DefaultTimeout),
		Signals:       NewSignalRepo(db, DefaultTimeout),
		Reviews:       NewReviewRepo(db, DefaultTimeout),
		Predictors:    NewPredictorRepo(db, DefaultTimeout),
		Learnings:     NewLearningRepo(db, DefaultTimeout),
		LearningQueue: NewLearningQueueRepo(db, DefaultTimeout),
		Portfolios:    NewPortfolioRepo(db, DefaultTimeout),
		Perspectives:  NewPerspectiveRepo(db, DefaultTimeout),
	}
}

// health implements persistence.Health over the pool.
type health struct {
	db *sqlx.DB
}

// NewHealth returns a connectivity reporter for the pool.
func NewHealth(db *sqlx.DB) persistence.Health {
	return &health{db: db}
}

func (h *health) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return h.db.PingContext(ctx)
}

func (h *health) Health(ctx context.Context) persistence.HealthCheck {
	start := time.Now()
	check := persistence.HealthCheck{Healthy: true, LastCheck: start}
	if err := h.Ping(ctx); err != nil {
		check.Healthy = false
		check.Errors = append(check.Errors, err.Error())
	}
	check.ResponseTimeMS = time.Since(start).Milliseconds()
	return check
}
