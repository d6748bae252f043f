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

type strategyRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStrategyRepo creates a PostgreSQL strategy repository.
func NewStrategyRepo(db *sqlx.DB, timeout time.Duration) persistence.StrategyRepo {
	return &strategyRepo{db: db, timeout: timeout}
}

type strategyRow struct {
	ID                    string    `db:"id"`
	Slug                  string    `db:"slug"`
	Name                  string    `db:"name"`
	Description           string    `db:"description"`
	RiskProfile           string    `db:"risk_profile"`
	MinPredictors         int       `db:"min_predictors"`
	MinCombinedStrength   int       `db:"min_combined_strength"`
	MinDirectionConsensus float64   `db:"min_direction_consensus"`
	PredictorTTLHours     int       `db:"predictor_ttl_hours"`
	UrgentThreshold       float64   `db:"urgent_threshold"`
	NotableThreshold      float64   `db:"notable_threshold"`
	System                bool      `db:"system"`
	CreatedAt             time.Time `db:"created_at"`
}

func (r strategyRow) toDomain() *domain.Strategy {
	return &domain.Strategy{
		ID:          r.ID,
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		RiskProfile: r.RiskProfile,
		Parameters: domain.StrategyParameters{
			MinPredictors:         r.MinPredictors,
			MinCombinedStrength:   r.MinCombinedStrength,
			MinDirectionConsensus: r.MinDirectionConsensus,
			PredictorTTLHours:     r.PredictorTTLHours,
			UrgentThreshold:       r.UrgentThreshold,
			NotableThreshold:      r.NotableThreshold,
		},
		System:    r.System,
		CreatedAt: r.CreatedAt,
	}
}

const strategyColumns = `id, slug, name, description, risk_profile,
	min_predictors, min_combined_strength, min_direction_consensus,
	predictor_ttl_hours, urgent_threshold, notable_threshold, system, created_at`

func (r *strategyRepo) GetByID(ctx context.Context, id string) (*domain.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row strategyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+strategyColumns+` FROM strategies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("strategy", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy: %w", err)
	}
	return row.toDomain(), nil
}

func (r *strategyRepo) GetBySlug(ctx context.Context, slug string) (*domain.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row strategyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+strategyColumns+` FROM strategies WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("strategy", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy by slug: %w", err)
	}
	return row.toDomain(), nil
}

func (r *strategyRepo) List(ctx context.Context) ([]domain.Strategy, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []strategyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+strategyColumns+` FROM strategies ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}

	out := make([]domain.Strategy, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}
