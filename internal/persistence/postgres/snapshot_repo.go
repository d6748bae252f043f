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

type snapshotRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSnapshotRepo creates a PostgreSQL snapshot repository.
func NewSnapshotRepo(db *sqlx.DB, timeout time.Duration) persistence.SnapshotRepo {
	return &snapshotRepo{db: db, timeout: timeout}
}

type snapshotRow struct {
	ID         string    `db:"id"`
	TargetID   string    `db:"target_id"`
	Value      float64   `db:"value"`
	ValueType  string    `db:"value_type"`
	Source     string    `db:"source"`
	Metadata   []byte    `db:"metadata"`
	CapturedAt time.Time `db:"captured_at"`
}

func (r snapshotRow) toDomain() (*domain.TargetSnapshot, error) {
	s := &domain.TargetSnapshot{
		ID:         r.ID,
		TargetID:   r.TargetID,
		Value:      r.Value,
		ValueType:  r.ValueType,
		Source:     r.Source,
		CapturedAt: r.CapturedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode snapshot metadata: %w", err)
		}
	}
	return s, nil
}

func (r *snapshotRepo) Insert(ctx context.Context, snap domain.TargetSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var metadata []byte
	if snap.Metadata != nil {
		var err error
		metadata, err = json.Marshal(snap.Metadata)
		if err != nil {
			return fmt.Errorf("encode snapshot metadata: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO target_snapshots (id, target_id, value, value_type, source, metadata, captured_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.ID, snap.TargetID, snap.Value, snap.ValueType, snap.Source, metadata, snap.CapturedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context, targetID string) (*domain.TargetSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row snapshotRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, target_id, value, value_type, source, metadata, captured_at
		 FROM target_snapshots WHERE target_id = $1
		 ORDER BY captured_at DESC LIMIT 1`, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("snapshot", targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return row.toDomain()
}

func (r *snapshotRepo) AtOrBefore(ctx context.Context, targetID string, ts time.Time) (*domain.TargetSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row snapshotRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, target_id, value, value_type, source, metadata, captured_at
		 FROM target_snapshots WHERE target_id = $1 AND captured_at <= $2
		 ORDER BY captured_at DESC LIMIT 1`, targetID, ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("snapshot", targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot at time: %w", err)
	}
	return row.toDomain()
}

func (r *snapshotRepo) ListRange(ctx context.Context, targetID string, tr persistence.TimeRange) ([]domain.TargetSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []snapshotRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, target_id, value, value_type, source, metadata, captured_at
		 FROM target_snapshots
		 WHERE target_id = $1 AND captured_at >= $2 AND captured_at < $3
		 ORDER BY captured_at`, targetID, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	out := make([]domain.TargetSnapshot, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *snapshotRepo) DeleteOlderThan(ctx context.Context, targetID string, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`DELETE FROM target_snapshots WHERE target_id = $1 AND captured_at < $2`,
		targetID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	return res.RowsAffected()
}
