package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
	"github.com/predictalab/quorum/internal/persistence"
)

type targetRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTargetRepo creates a PostgreSQL target repository.
func NewTargetRepo(db *sqlx.DB, timeout time.Duration) persistence.TargetRepo {
	return &targetRepo{db: db, timeout: timeout}
}

func (r *targetRepo) GetByID(ctx context.Context, id string) (*domain.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var t domain.Target
	err := r.db.GetContext(ctx, &t,
		`SELECT id, universe_id, symbol, context, active, created_at
		 FROM targets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("target", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return &t, nil
}

func (r *targetRepo) ListActiveByUniverse(ctx context.Context, universeID string) ([]domain.Target, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var targets []domain.Target
	err := r.db.SelectContext(ctx, &targets,
		`SELECT id, universe_id, symbol, context, active, created_at
		 FROM targets WHERE universe_id = $1 AND active ORDER BY symbol`, universeID)
	if err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}
	return targets, nil
}
