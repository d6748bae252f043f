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

type signalRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSignalRepo creates a PostgreSQL signal repository.
func NewSignalRepo(db *sqlx.DB, timeout time.Duration) persistence.SignalRepo {
	return &signalRepo{db: db, timeout: timeout}
}

type signalRow struct {
	ID            string          `db:"id"`
	TargetID      string          `db:"target_id"`
	Direction     string          `db:"direction"`
	Summary       string          `db:"summary"`
	AnalystSlug   sql.NullString  `db:"analyst_slug"`
	EvalDirection sql.NullString  `db:"eval_direction"`
	Confidence    sql.NullFloat64 `db:"confidence"`
	Reasoning     sql.NullString  `db:"reasoning"`
	Disposition   string          `db:"disposition"`
	ReviewQueueID sql.NullString  `db:"review_queue_id"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r signalRow) toDomain() *domain.Signal {
	s := &domain.Signal{
		ID:          r.ID,
		TargetID:    r.TargetID,
		Direction:   domain.Direction(r.Direction),
		Summary:     r.Summary,
		Disposition: domain.SignalDisposition(r.Disposition),
		CreatedAt:   r.CreatedAt,
	}
	if r.ReviewQueueID.Valid {
		s.ReviewQueueID = &r.ReviewQueueID.String
	}
	if r.AnalystSlug.Valid {
		s.Evaluation = &domain.EvaluationResult{
			AnalystSlug: r.AnalystSlug.String,
			Direction:   domain.Direction(r.EvalDirection.String),
			Confidence:  r.Confidence.Float64,
			Reasoning:   r.Reasoning.String,
		}
	}
	return s
}

const signalColumns = `id, target_id, direction, summary, analyst_slug,
	eval_direction, confidence, reasoning, disposition, review_queue_id, created_at`

func (r *signalRepo) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row signalRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("signal", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get signal: %w", err)
	}
	return row.toDomain(), nil
}

func (r *signalRepo) Insert(ctx context.Context, sig domain.Signal) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var analystSlug, evalDirection, reasoning *string
	var confidence *float64
	if sig.Evaluation != nil {
		analystSlug = &sig.Evaluation.AnalystSlug
		d := string(sig.Evaluation.Direction)
		evalDirection = &d
		confidence = &sig.Evaluation.Confidence
		reasoning = &sig.Evaluation.Reasoning
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO signals (`+signalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sig.ID, sig.TargetID, sig.Direction, sig.Summary,
		analystSlug, evalDirection, confidence, reasoning,
		sig.Disposition, sig.ReviewQueueID, sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

func (r *signalRepo) SetDisposition(ctx context.Context, id string, d domain.SignalDisposition, reviewQueueID *string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var res sql.Result
	var err error
	if reviewQueueID != nil {
		res, err = r.db.ExecContext(ctx,
			`UPDATE signals SET disposition = $2, review_queue_id = $3 WHERE id = $1`,
			id, d, *reviewQueueID)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE signals SET disposition = $2 WHERE id = $1`, id, d)
	}
	if err != nil {
		return fmt.Errorf("set signal disposition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("signal", id)
	}
	return nil
}
