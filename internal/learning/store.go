// Package learning persists versioned, scoped behavioral guidance and routes
// new suggestions through human review before they become durable learnings.
package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
	"github.com/predictalab/quorum/internal/persistence"
)

// CreateInput is the payload for creating a learning row.
type CreateInput struct {
	ScopeLevel   domain.LearningScope `json:"scope_level"`
	ScopeID      string               `json:"scope_id"`
	AnalystID    *string              `json:"analyst_id,omitempty"`
	LearningType domain.LearningType  `json:"learning_type"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Config       map[string]string    `json:"config,omitempty"`
	SourceType   domain.LearningSource `json:"source_type"`
}

// Store owns the learning lifecycle: creation, scoped lookup, supersession
// and usage accounting.
type Store struct {
	learnings persistence.LearningRepo
	targets   persistence.TargetRepo
	universes persistence.UniverseRepo
	nowFn     func() time.Time
}

// NewStore wires the learning store.
func NewStore(learnings persistence.LearningRepo, targets persistence.TargetRepo, universes persistence.UniverseRepo) *Store {
	return &Store{learnings: learnings, targets: targets, universes: universes, nowFn: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Store) WithNow(fn func() time.Time) *Store {
	s.nowFn = fn
	return s
}

// Create inserts a new learning at version 1.
func (s *Store) Create(ctx context.Context, in CreateInput) (*domain.Learning, error) {
	if in.Title == "" {
		return nil, errs.Validation("learning", "title is required")
	}
	l := domain.Learning{
		ID:           uuid.NewString(),
		ScopeLevel:   in.ScopeLevel,
		ScopeID:      in.ScopeID,
		AnalystID:    in.AnalystID,
		LearningType: in.LearningType,
		Title:        in.Title,
		Description:  in.Description,
		Config:       in.Config,
		SourceType:   in.SourceType,
		Status:       domain.LearningActive,
		Version:      1,
		CreatedAt:    s.nowFn(),
	}
	if err := s.learnings.Insert(ctx, l); err != nil {
		return nil, fmt.Errorf("insert learning: %w", err)
	}
	return &l, nil
}

// GetActiveLearnings returns the learnings active for a target: the union of
// learnings along the target's scope chain (runner, the universe's domain,
// the universe, the target), filtered to active, non-superseded rows, and
// optionally narrowed by minimum tier and analyst.
func (s *Store) GetActiveLearnings(ctx context.Context, targetID string, minTier *domain.LearningScope, analystID *string) ([]domain.Learning, error) {
	target, err := s.targets.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	uni, err := s.universes.GetByID(ctx, target.UniverseID)
	if err != nil {
		return nil, err
	}
	return s.learnings.ListActiveForScope(ctx, persistence.LearningScopeQuery{
		DomainID:   string(uni.Domain),
		UniverseID: uni.ID,
		TargetID:   target.ID,
		MinTier:    minTier,
		AnalystID:  analystID,
	})
}

// Supersede retires old in favor of a new row at version old+1. The new row
// is created first; only once it is durable does the old row get its
// superseded_by link. The old row is retained for audit and drops out of
// active lookups via the superseded_by filter.
func (s *Store) Supersede(ctx context.Context, oldID string, in CreateInput) (*domain.Learning, error) {
	old, err := s.learnings.GetByID(ctx, oldID)
	if err != nil {
		return nil, err
	}
	if old.SupersededBy != nil {
		return nil, errs.InvalidState("learning", fmt.Sprintf("learning %s is already superseded by %s", old.ID, *old.SupersededBy))
	}

	next := domain.Learning{
		ID:           uuid.NewString(),
		ScopeLevel:   in.ScopeLevel,
		ScopeID:      in.ScopeID,
		AnalystID:    in.AnalystID,
		LearningType: in.LearningType,
		Title:        in.Title,
		Description:  in.Description,
		Config:       in.Config,
		SourceType:   in.SourceType,
		Status:       domain.LearningActive,
		Version:      old.Version + 1,
		CreatedAt:    s.nowFn(),
	}
	if err := s.learnings.Insert(ctx, next); err != nil {
		return nil, fmt.Errorf("insert superseding learning: %w", err)
	}
	if err := s.learnings.SetSupersededBy(ctx, old.ID, next.ID); err != nil {
		return nil, fmt.Errorf("link superseded learning: %w", err)
	}

	log.Info().Str("old_id", old.ID).Str("new_id", next.ID).Int("version", next.Version).
		Msg("learning superseded")
	return &next, nil
}

// discard removes a learning row outright. Supersession is the normal
// retirement path; discard backs out a row whose surrounding operation
// failed after the insert.
func (s *Store) discard(ctx context.Context, id string) error {
	return s.learnings.Delete(ctx, id)
}

// RecordApplication bumps times_applied, and times_helpful only on an
// explicit true. A false and an absent verdict are both "no increment".
func (s *Store) RecordApplication(ctx context.Context, id string, wasHelpful *bool) error {
	helpful := wasHelpful != nil && *wasHelpful
	if err := s.learnings.IncrementUsage(ctx, id, helpful); err != nil {
		return fmt.Errorf("record learning application: %w", err)
	}
	return nil
}
