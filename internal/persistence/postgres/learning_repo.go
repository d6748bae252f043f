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

type learningRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLearningRepo creates a PostgreSQL learning repository.
func NewLearningRepo(db *sqlx.DB, timeout time.Duration) persistence.LearningRepo {
	return &learningRepo{db: db, timeout: timeout}
}

// scopeRank orders scope levels widest-first for the min-tier filter.
var scopeRank = map[domain.LearningScope]int{
	domain.ScopeRunner:   1,
	domain.ScopeDomain:   2,
	domain.ScopeUniverse: 3,
	domain.ScopeTarget:   4,
}

type learningRow struct {
	ID           string         `db:"id"`
	ScopeLevel   string         `db:"scope_level"`
	ScopeID      string         `db:"scope_id"`
	AnalystID    sql.NullString `db:"analyst_id"`
	LearningType string         `db:"learning_type"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	Config       []byte         `db:"config"`
	SourceType   string         `db:"source_type"`
	Status       string         `db:"status"`
	Version      int            `db:"version"`
	SupersededBy sql.NullString `db:"superseded_by"`
	TimesApplied int            `db:"times_applied"`
	TimesHelpful int            `db:"times_helpful"`
	CreatedAt    time.Time      `db:"created_at"`
}

func (r learningRow) toDomain() (*domain.Learning, error) {
	l := &domain.Learning{
		ID:           r.ID,
		ScopeLevel:   domain.LearningScope(r.ScopeLevel),
		ScopeID:      r.ScopeID,
		LearningType: domain.LearningType(r.LearningType),
		Title:        r.Title,
		Description:  r.Description,
		SourceType:   domain.LearningSource(r.SourceType),
		Status:       domain.LearningStatus(r.Status),
		Version:      r.Version,
		TimesApplied: r.TimesApplied,
		TimesHelpful: r.TimesHelpful,
		CreatedAt:    r.CreatedAt,
	}
	if r.AnalystID.Valid {
		l.AnalystID = &r.AnalystID.String
	}
	if r.SupersededBy.Valid {
		l.SupersededBy = &r.SupersededBy.String
	}
	if len(r.Config) > 0 {
		if err := json.Unmarshal(r.Config, &l.Config); err != nil {
			return nil, fmt.Errorf("decode learning config: %w", err)
		}
	}
	return l, nil
}

const learningColumns = `id, scope_level, scope_id, analyst_id, learning_type, title,
	description, config, source_type, status, version, superseded_by,
	times_applied, times_helpful, created_at`

func (r *learningRepo) Insert(ctx context.Context, l domain.Learning) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var config []byte
	if l.Config != nil {
		var err error
		config, err = json.Marshal(l.Config)
		if err != nil {
			return fmt.Errorf("encode learning config: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO learnings (`+learningColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.ScopeLevel, l.ScopeID, l.AnalystID, l.LearningType, l.Title,
		l.Description, config, l.SourceType, l.Status, l.Version, l.SupersededBy,
		l.TimesApplied, l.TimesHelpful, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert learning: %w", err)
	}
	return nil
}

func (r *learningRepo) GetByID(ctx context.Context, id string) (*domain.Learning, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row learningRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+learningColumns+` FROM learnings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("learning", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get learning: %w", err)
	}
	return row.toDomain()
}

// ListActiveForScope unions the scope chain (runner, domain, universe,
// target), keeps only active non-superseded rows, and applies the optional
// min-tier and analyst filters. The superseded_by IS NULL predicate is what
// keeps superseded audit rows out of active lookups.
func (r *learningRepo) ListActiveForScope(ctx context.Context, q persistence.LearningScopeQuery) ([]domain.Learning, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + learningColumns + ` FROM learnings
		 WHERE status = 'active' AND superseded_by IS NULL
		 AND (
			scope_level = 'runner'
			OR (scope_level = 'domain' AND scope_id = $1)
			OR (scope_level = 'universe' AND scope_id = $2)
			OR (scope_level = 'target' AND scope_id = $3)
		 )`
	args := []any{q.DomainID, q.UniverseID, q.TargetID}

	if q.AnalystID != nil {
		query += fmt.Sprintf(` AND (analyst_id IS NULL OR analyst_id = $%d)`, len(args)+1)
		args = append(args, *q.AnalystID)
	} else {
		query += ` AND analyst_id IS NULL`
	}
	query += ` ORDER BY scope_level, created_at`

	var rows []learningRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list active learnings: %w", err)
	}

	out := make([]domain.Learning, 0, len(rows))
	for _, row := range rows {
		l, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		if q.MinTier != nil && scopeRank[l.ScopeLevel] < scopeRank[*q.MinTier] {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (r *learningRepo) SetSupersededBy(ctx context.Context, oldID, newID string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE learnings SET superseded_by = $2 WHERE id = $1 AND superseded_by IS NULL`,
		oldID, newID)
	if err != nil {
		return fmt.Errorf("link superseded learning: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.InvalidState("learning", fmt.Sprintf("learning %s is absent or already superseded", oldID))
	}
	return nil
}

func (r *learningRepo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM learnings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete learning: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("learning", id)
	}
	return nil
}

func (r *learningRepo) IncrementUsage(ctx context.Context, id string, helpful bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	helpfulDelta := 0
	if helpful {
		helpfulDelta = 1
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE learnings
		 SET times_applied = times_applied + 1, times_helpful = times_helpful + $2
		 WHERE id = $1`, id, helpfulDelta)
	if err != nil {
		return fmt.Errorf("increment learning usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.NotFound("learning", id)
	}
	return nil
}
