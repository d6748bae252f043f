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

type reviewRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReviewRepo creates a PostgreSQL review queue repository.
func NewReviewRepo(db *sqlx.DB, timeout time.Duration) persistence.ReviewRepo {
	return &reviewRepo{db: db, timeout: timeout}
}

type reviewRow struct {
	ID                string         `db:"id"`
	SignalID          string         `db:"signal_id"`
	TargetID          string         `db:"target_id"`
	Confidence        float64        `db:"confidence"`
	RecommendedAction string         `db:"recommended_action"`
	AssessmentSummary string         `db:"assessment_summary"`
	AnalystReasoning  sql.NullString `db:"analyst_reasoning"`
	Status            string         `db:"status"`
	Decision          sql.NullString `db:"decision"`
	DecidedBy         sql.NullString `db:"decided_by"`
	DecidedAt         sql.NullTime   `db:"decided_at"`
	Notes             sql.NullString `db:"notes"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r reviewRow) toDomain() *domain.ReviewQueueItem {
	item := &domain.ReviewQueueItem{
		ID:                r.ID,
		SignalID:          r.SignalID,
		TargetID:          r.TargetID,
		Confidence:        r.Confidence,
		RecommendedAction: domain.ReviewDecision(r.RecommendedAction),
		AssessmentSummary: r.AssessmentSummary,
		AnalystReasoning:  r.AnalystReasoning.String,
		Status:            domain.ReviewStatus(r.Status),
		Notes:             r.Notes.String,
		CreatedAt:         r.CreatedAt,
	}
	if r.Decision.Valid {
		d := domain.ReviewDecision(r.Decision.String)
		item.Decision = &d
	}
	if r.DecidedBy.Valid {
		item.DecidedBy = &r.DecidedBy.String
	}
	if r.DecidedAt.Valid {
		item.DecidedAt = &r.DecidedAt.Time
	}
	return item
}

const reviewColumns = `id, signal_id, target_id, confidence, recommended_action,
	assessment_summary, analyst_reasoning, status, decision, decided_by, decided_at,
	notes, created_at`

func (r *reviewRepo) Insert(ctx context.Context, item domain.ReviewQueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO review_queue (id, signal_id, target_id, confidence, recommended_action,
		 assessment_summary, analyst_reasoning, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.SignalID, item.TargetID, item.Confidence, item.RecommendedAction,
		item.AssessmentSummary, item.AnalystReasoning, item.Status, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert review item: %w", err)
	}
	return nil
}

func (r *reviewRepo) GetByID(ctx context.Context, id string) (*domain.ReviewQueueItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row reviewRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+reviewColumns+` FROM review_queue WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("review", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review item: %w", err)
	}
	return row.toDomain(), nil
}

func (r *reviewRepo) ListPending(ctx context.Context, targetID *string) ([]domain.ReviewQueueItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + reviewColumns + ` FROM review_queue WHERE status = 'pending'`
	args := []any{}
	if targetID != nil {
		query += ` AND target_id = $1`
		args = append(args, *targetID)
	}
	query += ` ORDER BY created_at` // FIFO fairness

	var rows []reviewRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}

	out := make([]domain.ReviewQueueItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

// Resolve transitions pending -> resolved exactly once: the status predicate
// in the update makes a lost race surface as InvalidState.
func (r *reviewRepo) Resolve(ctx context.Context, id string, decision domain.ReviewDecision, decidedBy string, decidedAt time.Time, notes string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE review_queue
		 SET status = 'resolved', decision = $2, decided_by = $3, decided_at = $4, notes = $5
		 WHERE id = $1 AND status = 'pending'`,
		id, decision, decidedBy, decidedAt, notes)
	if err != nil {
		return fmt.Errorf("resolve review item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.InvalidState("review", fmt.Sprintf("item %s is not pending", id))
	}
	return nil
}

func (r *reviewRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM review_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete review item: %w", err)
	}
	return nil
}
