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

type learningQueueRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLearningQueueRepo creates a PostgreSQL learning queue repository.
func NewLearningQueueRepo(db *sqlx.DB, timeout time.Duration) persistence.LearningQueueRepo {
	return &learningQueueRepo{db: db, timeout: timeout}
}

type learningQueueRow struct {
	ID               string         `db:"id"`
	TargetID         string         `db:"target_id"`
	SourceContext    string         `db:"source_context"`
	Confidence       float64        `db:"confidence"`
	SuggestedScope   string         `db:"suggested_scope"`
	SuggestedType    string         `db:"suggested_type"`
	SuggestedTitle   string         `db:"suggested_title"`
	SuggestedDesc    string         `db:"suggested_description"`
	FinalScope       sql.NullString `db:"final_scope"`
	FinalType        sql.NullString `db:"final_type"`
	FinalTitle       sql.NullString `db:"final_title"`
	FinalDesc        sql.NullString `db:"final_description"`
	Status           string         `db:"status"`
	LearningID       sql.NullString `db:"learning_id"`
	ReviewedAt       sql.NullTime   `db:"reviewed_at"`
	ReviewedByUserID sql.NullString `db:"reviewed_by_user_id"`
	ReviewerNotes    sql.NullString `db:"reviewer_notes"`
	CreatedAt        time.Time      `db:"created_at"`
}

func (r learningQueueRow) toDomain() *domain.LearningQueueItem {
	item := &domain.LearningQueueItem{
		ID:             r.ID,
		TargetID:       r.TargetID,
		SourceContext:  r.SourceContext,
		Confidence:     r.Confidence,
		SuggestedScope: domain.LearningScope(r.SuggestedScope),
		SuggestedType:  domain.LearningType(r.SuggestedType),
		SuggestedTitle: r.SuggestedTitle,
		SuggestedDesc:  r.SuggestedDesc,
		Status:         domain.QueueStatus(r.Status),
		ReviewerNotes:  r.ReviewerNotes.String,
		CreatedAt:      r.CreatedAt,
	}
	if r.FinalScope.Valid {
		s := domain.LearningScope(r.FinalScope.String)
		item.FinalScope = &s
	}
	if r.FinalType.Valid {
		t := domain.LearningType(r.FinalType.String)
		item.FinalType = &t
	}
	if r.FinalTitle.Valid {
		item.FinalTitle = &r.FinalTitle.String
	}
	if r.FinalDesc.Valid {
		item.FinalDesc = &r.FinalDesc.String
	}
	if r.LearningID.Valid {
		item.LearningID = &r.LearningID.String
	}
	if r.ReviewedAt.Valid {
		item.ReviewedAt = &r.ReviewedAt.Time
	}
	if r.ReviewedByUserID.Valid {
		item.ReviewedByUserID = &r.ReviewedByUserID.String
	}
	return item
}

const learningQueueColumns = `id, target_id, source_context, confidence,
	suggested_scope, suggested_type, suggested_title, suggested_description,
	final_scope, final_type, final_title, final_description,
	status, learning_id, reviewed_at, reviewed_by_user_id, reviewer_notes, created_at`

func (r *learningQueueRepo) Insert(ctx context.Context, item domain.LearningQueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO learning_queue (id, target_id, source_context, confidence,
		 suggested_scope, suggested_type, suggested_title, suggested_description,
		 status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.TargetID, item.SourceContext, item.Confidence,
		item.SuggestedScope, item.SuggestedType, item.SuggestedTitle, item.SuggestedDesc,
		item.Status, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert learning queue item: %w", err)
	}
	return nil
}

func (r *learningQueueRepo) GetByID(ctx context.Context, id string) (*domain.LearningQueueItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row learningQueueRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+learningQueueColumns+` FROM learning_queue WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("learning_queue", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get learning queue item: %w", err)
	}
	return row.toDomain(), nil
}

func (r *learningQueueRepo) ListPending(ctx context.Context) ([]domain.LearningQueueItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []learningQueueRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+learningQueueColumns+` FROM learning_queue
		 WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending learning queue: %w", err)
	}

	out := make([]domain.LearningQueueItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toDomain())
	}
	return out, nil
}

func (r *learningQueueRepo) Resolve(ctx context.Context, item domain.LearningQueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE learning_queue
		 SET status = $2, final_scope = $3, final_type = $4, final_title = $5,
		     final_description = $6, learning_id = $7, reviewed_at = $8,
		     reviewed_by_user_id = $9, reviewer_notes = $10
		 WHERE id = $1 AND status = 'pending'`,
		item.ID, item.Status, item.FinalScope, item.FinalType, item.FinalTitle,
		item.FinalDesc, item.LearningID, item.ReviewedAt,
		item.ReviewedByUserID, item.ReviewerNotes)
	if err != nil {
		return fmt.Errorf("resolve learning queue item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.InvalidState("learning_queue", fmt.Sprintf("item %s is not pending", item.ID))
	}
	return nil
}
