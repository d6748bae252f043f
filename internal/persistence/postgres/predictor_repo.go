package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/persistence"
)

type predictorRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPredictorRepo creates a PostgreSQL predictor repository.
func NewPredictorRepo(db *sqlx.DB, timeout time.Duration) persistence.PredictorRepo {
	return &predictorRepo{db: db, timeout: timeout}
}

func (r *predictorRepo) Insert(ctx context.Context, p domain.Predictor) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO predictors (id, target_id, signal_id, direction, strength, confidence,
		 reasoning, analyst_slug, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.TargetID, p.SignalID, p.Direction, p.Strength, p.Confidence,
		p.Reasoning, p.AnalystSlug, p.Status, p.ExpiresAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert predictor: %w", err)
	}
	return nil
}

func (r *predictorRepo) ListActiveByTarget(ctx context.Context, targetID string) ([]domain.Predictor, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var preds []domain.Predictor
	err := r.db.SelectContext(ctx, &preds,
		`SELECT id, target_id, signal_id, direction, strength, confidence,
		 reasoning, analyst_slug, status, expires_at, created_at
		 FROM predictors
		 WHERE target_id = $1 AND status = 'active' AND expires_at > now()
		 ORDER BY created_at DESC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("list active predictors: %w", err)
	}
	return preds, nil
}

func (r *predictorRepo) ExpireStale(ctx context.Context, universeID string, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE predictors SET status = 'expired'
		 WHERE status = 'active' AND expires_at < $2
		 AND target_id IN (SELECT id FROM targets WHERE universe_id = $1)`,
		universeID, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale predictors: %w", err)
	}
	return res.RowsAffected()
}
