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

type perspectiveRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPerspectiveRepo creates a PostgreSQL perspective version repository.
func NewPerspectiveRepo(db *sqlx.DB, timeout time.Duration) persistence.PerspectiveRepo {
	return &perspectiveRepo{db: db, timeout: timeout}
}

func (r *perspectiveRepo) LatestVersion(ctx context.Context, analystID string, tier domain.PerspectiveTier) (*domain.PerspectiveVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var v domain.PerspectiveVersion
	err := r.db.GetContext(ctx, &v,
		`SELECT id, analyst_id, tier, instructions, change_reason, version, created_at
		 FROM perspective_versions
		 WHERE analyst_id = $1 AND tier = $2
		 ORDER BY version DESC LIMIT 1`, analystID, tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest perspective version: %w", err)
	}
	return &v, nil
}

func (r *perspectiveRepo) Insert(ctx context.Context, v domain.PerspectiveVersion) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO perspective_versions (id, analyst_id, tier, instructions, change_reason, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.AnalystID, v.Tier, v.Instructions, v.ChangeReason, v.Version, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert perspective version: %w", err)
	}
	return nil
}
