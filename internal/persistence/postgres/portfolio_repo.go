package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/persistence"
)

type portfolioRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPortfolioRepo creates a PostgreSQL portfolio repository.
func NewPortfolioRepo(db *sqlx.DB, timeout time.Duration) persistence.PortfolioRepo {
	return &portfolioRepo{db: db, timeout: timeout}
}

const portfolioColumns = `id, analyst_id, fork_type, initial_balance, current_balance,
	realized_pnl, unrealized_pnl, win_count, loss_count, status, status_changed_at`

func (r *portfolioRepo) GetByAnalyst(ctx context.Context, analystID string) (*domain.AnalystPortfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var p domain.AnalystPortfolio
	err := r.db.GetContext(ctx, &p,
		`SELECT `+portfolioColumns+` FROM analyst_portfolios WHERE analyst_id = $1`, analystID)
	if errors.Is(err, sql.ErrNoRows) {
		// Missing ledger is a no-op for the sweeps, not an error.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	return &p, nil
}

func (r *portfolioRepo) ListByFork(ctx context.Context, fork domain.ForkType) ([]domain.AnalystPortfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.AnalystPortfolio
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+portfolioColumns+` FROM analyst_portfolios
		 WHERE fork_type = $1 ORDER BY analyst_id`, fork)
	if err != nil {
		return nil, fmt.Errorf("list portfolios by fork: %w", err)
	}
	return out, nil
}

func (r *portfolioRepo) ListByStatus(ctx context.Context, fork domain.ForkType, status domain.PortfolioStatus) ([]domain.AnalystPortfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out []domain.AnalystPortfolio
	err := r.db.SelectContext(ctx, &out,
		`SELECT `+portfolioColumns+` FROM analyst_portfolios
		 WHERE fork_type = $1 AND status = $2 ORDER BY analyst_id`, fork, status)
	if err != nil {
		return nil, fmt.Errorf("list portfolios by status: %w", err)
	}
	return out, nil
}

// CompareAndSetStatus serializes racing sweeps: the update only lands when
// the row still holds the status the caller observed.
func (r *portfolioRepo) CompareAndSetStatus(ctx context.Context, analystID string, prev, next domain.PortfolioStatus, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE analyst_portfolios
		 SET status = $3, status_changed_at = $4
		 WHERE analyst_id = $1 AND status = $2`,
		analystID, prev, next, at)
	if err != nil {
		return false, fmt.Errorf("compare-and-set portfolio status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare-and-set rows affected: %w", err)
	}
	return n == 1, nil
}
