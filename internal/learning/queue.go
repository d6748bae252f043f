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

// SuggestionInput proposes a learning for human disposition.
type SuggestionInput struct {
	TargetID      string               `json:"target_id"`
	SourceContext string               `json:"source_context"`
	Confidence    float64              `json:"confidence"`
	Scope         domain.LearningScope `json:"scope"`
	Type          domain.LearningType  `json:"type"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
}

// RespondInput is the human disposition of a suggestion. Final fields are
// per-field overrides: a nil field keeps the suggested value.
type RespondInput struct {
	Status           domain.QueueStatus    `json:"status"`
	FinalScope       *domain.LearningScope `json:"final_scope,omitempty"`
	FinalType        *domain.LearningType  `json:"final_type,omitempty"`
	FinalTitle       *string               `json:"final_title,omitempty"`
	FinalDescription *string               `json:"final_description,omitempty"`
	ReviewerNotes    string                `json:"reviewer_notes,omitempty"`
}

// finals is the per-field merge of a response over a suggestion. The merge is
// explicit field by field so the override semantics stay auditable.
type finals struct {
	scope       domain.LearningScope
	typ         domain.LearningType
	title       string
	description string
}

func finalize(item *domain.LearningQueueItem, in RespondInput) finals {
	f := finals{
		scope:       item.SuggestedScope,
		typ:         item.SuggestedType,
		title:       item.SuggestedTitle,
		description: item.SuggestedDesc,
	}
	if in.FinalScope != nil {
		f.scope = *in.FinalScope
	}
	if in.FinalType != nil {
		f.typ = *in.FinalType
	}
	if in.FinalTitle != nil {
		f.title = *in.FinalTitle
	}
	if in.FinalDescription != nil {
		f.description = *in.FinalDescription
	}
	return f
}

// Queue routes learning suggestions through human review.
type Queue struct {
	queue     persistence.LearningQueueRepo
	targets   persistence.TargetRepo
	universes persistence.UniverseRepo
	store     *Store
	nowFn     func() time.Time
}

// NewQueue wires the learning queue over the store it resolves into.
func NewQueue(queue persistence.LearningQueueRepo, targets persistence.TargetRepo, universes persistence.UniverseRepo, store *Store) *Queue {
	return &Queue{queue: queue, targets: targets, universes: universes, store: store, nowFn: time.Now}
}

// WithNow overrides the clock, for tests.
func (q *Queue) WithNow(fn func() time.Time) *Queue {
	q.nowFn = fn
	return q
}

// CreateSuggestion inserts a pending suggestion.
func (q *Queue) CreateSuggestion(ctx context.Context, in SuggestionInput) (*domain.LearningQueueItem, error) {
	if in.Title == "" {
		return nil, errs.Validation("learning_queue", "title is required")
	}
	item := domain.LearningQueueItem{
		ID:             uuid.NewString(),
		TargetID:       in.TargetID,
		SourceContext:  in.SourceContext,
		Confidence:     in.Confidence,
		SuggestedScope: in.Scope,
		SuggestedType:  in.Type,
		SuggestedTitle: in.Title,
		SuggestedDesc:  in.Description,
		Status:         domain.QueuePending,
		CreatedAt:      q.nowFn(),
	}
	if err := q.queue.Insert(ctx, item); err != nil {
		return nil, fmt.Errorf("insert learning suggestion: %w", err)
	}
	return &item, nil
}

// SuggestFromReview enqueues a suggestion emitted by a review decision.
// Implements the review service's suggester contract.
func (q *Queue) SuggestFromReview(ctx context.Context, targetID, sourceContext string, confidence float64, title, description string) error {
	_, err := q.CreateSuggestion(ctx, SuggestionInput{
		TargetID:      targetID,
		SourceContext: sourceContext,
		Confidence:    confidence,
		Scope:         domain.ScopeTarget,
		Type:          domain.LearningRule,
		Title:         title,
		Description:   description,
	})
	return err
}

// ListPending returns suggestions awaiting disposition.
func (q *Queue) ListPending(ctx context.Context) ([]domain.LearningQueueItem, error) {
	return q.queue.ListPending(ctx)
}

// Respond applies a human disposition to a pending suggestion. approved and
// modified create a learning from the per-field finalized payload; rejected
// creates nothing. All branches stamp the reviewer fields.
func (q *Queue) Respond(ctx context.Context, id string, in RespondInput, userID string) (*domain.LearningQueueItem, error) {
	item, err := q.queue.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.QueuePending {
		return nil, errs.InvalidState("learning_queue", fmt.Sprintf("item %s already %s", item.ID, item.Status))
	}

	now := q.nowFn()
	resolved := *item
	resolved.Status = in.Status
	resolved.ReviewedAt = &now
	resolved.ReviewedByUserID = &userID
	resolved.ReviewerNotes = in.ReviewerNotes

	switch in.Status {
	case domain.QueueApproved, domain.QueueModified:
		f := finalize(item, in)
		scopeID, err := q.scopeID(ctx, f.scope, item.TargetID)
		if err != nil {
			return nil, fmt.Errorf("bind learning scope: %w", err)
		}
		created, err := q.store.Create(ctx, CreateInput{
			ScopeLevel:   f.scope,
			ScopeID:      scopeID,
			LearningType: f.typ,
			Title:        f.title,
			Description:  f.description,
			SourceType:   domain.SourceAIApproved,
		})
		if err != nil {
			return nil, fmt.Errorf("create learning from suggestion: %w", err)
		}
		resolved.LearningID = &created.ID
		resolved.FinalScope = &f.scope
		resolved.FinalType = &f.typ
		resolved.FinalTitle = &f.title
		resolved.FinalDesc = &f.description
	case domain.QueueRejected:
		// nothing created
	default:
		return nil, errs.Validation("learning_queue", fmt.Sprintf("status %q is not a disposition", in.Status))
	}

	if err := q.queue.Resolve(ctx, resolved); err != nil {
		// The item is still pending, so a retry would create a second
		// learning; back out the one we just created.
		if resolved.LearningID != nil {
			if delErr := q.store.discard(ctx, *resolved.LearningID); delErr != nil {
				log.Error().Str("queue_id", item.ID).Str("learning_id", *resolved.LearningID).
					Err(delErr).Msg("failed to back out learning after resolve failure")
			}
		}
		return nil, fmt.Errorf("resolve learning suggestion: %w", err)
	}

	log.Info().Str("queue_id", item.ID).Str("status", string(in.Status)).
		Str("reviewed_by", userID).Msg("learning suggestion resolved")
	return &resolved, nil
}

// scopeID maps a scope level to the id the learning binds to. Target scope
// binds to the target; universe scope to its universe; domain scope to the
// universe's domain name; runner scope is global. A failed lookup is an
// error: binding the wrong id would silently mislabel the learning's scope.
func (q *Queue) scopeID(ctx context.Context, scope domain.LearningScope, targetID string) (string, error) {
	switch scope {
	case domain.ScopeTarget:
		return targetID, nil
	case domain.ScopeUniverse, domain.ScopeDomain:
		target, err := q.targets.GetByID(ctx, targetID)
		if err != nil {
			return "", fmt.Errorf("look up target %s: %w", targetID, err)
		}
		if scope == domain.ScopeUniverse {
			return target.UniverseID, nil
		}
		uni, err := q.universes.GetByID(ctx, target.UniverseID)
		if err != nil {
			return "", fmt.Errorf("look up universe %s: %w", target.UniverseID, err)
		}
		return string(uni.Domain), nil
	default:
		return "runner", nil
	}
}
