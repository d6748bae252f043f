package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
	"github.com/predictalab/quorum/internal/persistence"
)

type universeRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUniverseRepo creates a PostgreSQL universe repository.
func NewUniverseRepo(db *sqlx.DB, timeout time.Duration) persistence.UniverseRepo {
	return &universeRepo{db: db, timeout: timeout}
}

type universeRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	Domain     string         `db:"domain"`
	StrategyID sql.NullString `db:"strategy_id"`
	Thresholds []byte         `db:"thresholds"`
	Active     bool           `db:"active"`
	CreatedAt  time.Time      `db:"created_at"`
}

func (r universeRow) toDomain() (*domain.Universe, error) {
	u := &domain.Universe{
		ID:        r.ID,
		Name:      r.Name,
		Domain:    domain.UniverseDomain(r.Domain),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
	if r.StrategyID.Valid {
		u.StrategyID = &r.StrategyID.String
	}
	if len(r.Thresholds) > 0 {
		var t domain.ThresholdOverrides
		if err := json.Unmarshal(r.Thresholds, &t); err != nil {
			return nil, fmt.Errorf("decode universe thresholds: %w", err)
		}
		u.Thresholds = &t
	}
	return u, nil
}

func (r *universeRepo) GetByID(ctx context.Context, id string) (*domain.Universe, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row universeRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, name, domain, strategy_id, thresholds, active, created_at
		 FROM universes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("universe", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get universe: %w", err)
	}
	return row.toDomain()
}

func (r *universeRepo) List(ctx context.Context) ([]domain.Universe, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []universeRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, domain, strategy_id, thresholds, active, created_at
		 FROM universes ORDER BY active DESC, created_at`)
	if err != nil {
		return nil, fmt.Errorf("list universes: %w", err)
	}

	out := make([]domain.Universe, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

func (r *universeRepo) UpdateThresholds(ctx context.Context, id string, t *domain.ThresholdOverrides) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var payload []byte
	if t != nil {
		var err error
		payload, err = json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode thresholds: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE universes SET thresholds = $2 WHERE id = $1`, id, payload)
	if err != nil {
		return fmt.Errorf("update universe thresholds: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("universe", id)
	}
	return nil
}
