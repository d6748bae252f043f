// Package review implements confidence-band admission control: borderline
// signals are gated to a human review queue, and the human decision is the
// only path that transitions them out of it.
package review

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
	"github.com/predictalab/quorum/internal/persistence"
	"github.com/predictalab/quorum/internal/strategy"
)

// Admission band: confidence in [BandLow, BandHigh] (closed interval) goes to
// a human; below it the signal is auto-rejected elsewhere, above it the
// signal is acted on autonomously.
const (
	BandLow  = 0.4
	BandHigh = 0.7
)

// Default TTL applied when the universe's strategy cannot be resolved.
const fallbackTTLHours = 72

// LearningSuggester accepts ancillary learning suggestions emitted by review
// decisions. Failures here are logged and absorbed, never propagated.
type LearningSuggester interface {
	SuggestFromReview(ctx context.Context, targetID, sourceContext string, confidence float64, title, description string) error
}

// QueueRequest is the payload for admitting a signal to the review queue.
type QueueRequest struct {
	SignalID          string                `json:"signal_id"`
	TargetID          string                `json:"target_id"`
	Confidence        float64               `json:"confidence"`
	RecommendedAction domain.ReviewDecision `json:"recommended_action"`
	AssessmentSummary string                `json:"assessment_summary"`
	AnalystReasoning  string                `json:"analyst_reasoning,omitempty"`
}

// Response is a human decision on a pending review item.
type Response struct {
	ReviewID         string                `json:"review_id"`
	Decision         domain.ReviewDecision `json:"decision"`
	DecidedBy        string                `json:"decided_by"`
	Notes            string                `json:"notes,omitempty"`
	StrengthOverride *int                  `json:"strength_override,omitempty"`
	LearningNote     string                `json:"learning_note,omitempty"`
}

// Outcome reports what a review response produced.
type Outcome struct {
	Item      *domain.ReviewQueueItem `json:"item"`
	Predictor *domain.Predictor       `json:"predictor,omitempty"`
}

// Service owns the review queue lifecycle.
type Service struct {
	signals    persistence.SignalRepo
	reviews    persistence.ReviewRepo
	predictors persistence.PredictorRepo
	targets    persistence.TargetRepo
	resolver   *strategy.Resolver
	suggester  LearningSuggester
	nowFn      func() time.Time
}

// NewService wires the review service. suggester may be nil when learning
// capture is disabled.
func NewService(
	signals persistence.SignalRepo,
	reviews persistence.ReviewRepo,
	predictors persistence.PredictorRepo,
	targets persistence.TargetRepo,
	resolver *strategy.Resolver,
	suggester LearningSuggester,
) *Service {
	return &Service{
		signals:    signals,
		reviews:    reviews,
		predictors: predictors,
		targets:    targets,
		resolver:   resolver,
		suggester:  suggester,
		nowFn:      time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	s.nowFn = fn
	return s
}

// ShouldQueueForReview reports whether a confidence falls inside the closed
// admission band.
func ShouldQueueForReview(confidence float64) bool {
	return confidence >= BandLow && confidence <= BandHigh
}

// DeriveStrength maps confidence to predictor strength:
// clamp(round(confidence*10), 1, 10). Rounding is half-up (math.Round;
// confidence is non-negative), so 0.55 derives strength 6.
func DeriveStrength(confidence float64) int {
	strength := int(math.Round(confidence * 10))
	if strength < 1 {
		return 1
	}
	if strength > 10 {
		return 10
	}
	return strength
}

// QueueForReview inserts a pending item and marks the source signal
// review_pending with the back-reference. The two writes are one logical
// admission event: if the signal write fails, the queue row is removed again.
func (s *Service) QueueForReview(ctx context.Context, req QueueRequest) (*domain.ReviewQueueItem, error) {
	if !ShouldQueueForReview(req.Confidence) {
		return nil, errs.Validation("review", fmt.Sprintf("confidence %.2f outside admission band [%.2f, %.2f]", req.Confidence, BandLow, BandHigh))
	}
	sig, err := s.signals.GetByID(ctx, req.SignalID)
	if err != nil {
		return nil, err
	}
	if sig.Disposition != domain.DispositionEvaluated {
		return nil, errs.InvalidState("signal", fmt.Sprintf("disposition %q cannot be admitted to review", sig.Disposition))
	}

	item := domain.ReviewQueueItem{
		ID:                uuid.NewString(),
		SignalID:          req.SignalID,
		TargetID:          req.TargetID,
		Confidence:        req.Confidence,
		RecommendedAction: req.RecommendedAction,
		AssessmentSummary: req.AssessmentSummary,
		AnalystReasoning:  req.AnalystReasoning,
		Status:            domain.ReviewPending,
		CreatedAt:         s.nowFn(),
	}
	if err := s.reviews.Insert(ctx, item); err != nil {
		return nil, fmt.Errorf("insert review item: %w", err)
	}
	if err := s.signals.SetDisposition(ctx, sig.ID, domain.DispositionReviewPending, &item.ID); err != nil {
		// Compensate: a signal without review_pending must not leave an
		// orphaned queue row behind.
		if delErr := s.reviews.Delete(ctx, item.ID); delErr != nil {
			log.Error().Str("review_id", item.ID).Err(delErr).
				Msg("compensating delete failed, orphaned review item")
		}
		return nil, fmt.Errorf("mark signal review_pending: %w", err)
	}

	log.Info().Str("signal_id", sig.ID).Str("review_id", item.ID).
		Float64("confidence", req.Confidence).Msg("signal admitted to review queue")
	return &item, nil
}

// GetPendingReviews returns pending items oldest-first. targetID narrows the
// listing when non-nil.
func (s *Service) GetPendingReviews(ctx context.Context, targetID *string) ([]domain.ReviewQueueItem, error) {
	return s.reviews.ListPending(ctx, targetID)
}

// HandleReviewResponse applies a human decision. It is the sole transition
// out of pending, and resolution is terminal: a second response to the same
// item fails with InvalidState. The item's resolved status is written last,
// after the predictor/rejection effects have been applied; the handling is
// not retried on partial failure, so callers re-read the item status before
// resubmitting.
func (s *Service) HandleReviewResponse(ctx context.Context, resp Response) (*Outcome, error) {
	item, err := s.reviews.GetByID(ctx, resp.ReviewID)
	if err != nil {
		return nil, err
	}
	if item.Status != domain.ReviewPending {
		return nil, errs.InvalidState("review", fmt.Sprintf("item %s already %s", item.ID, item.Status))
	}
	sig, err := s.signals.GetByID(ctx, item.SignalID)
	if err != nil {
		return nil, err
	}

	now := s.nowFn()
	outcome := &Outcome{}

	switch resp.Decision {
	case domain.DecisionApprove, domain.DecisionModify:
		pred, err := s.createPredictor(ctx, item, sig, resp, now)
		if err != nil {
			return nil, err
		}
		outcome.Predictor = pred
		if err := s.signals.SetDisposition(ctx, sig.ID, domain.DispositionPredictorCreated, nil); err != nil {
			return nil, fmt.Errorf("mark signal predictor_created: %w", err)
		}
	case domain.DecisionReject:
		if err := s.signals.SetDisposition(ctx, sig.ID, domain.DispositionRejected, nil); err != nil {
			return nil, fmt.Errorf("mark signal rejected: %w", err)
		}
	default:
		return nil, errs.Validation("review", fmt.Sprintf("unknown decision %q", resp.Decision))
	}

	// Human commentary is always worth capturing, whatever the decision.
	// A failed suggestion must not roll back the committed decision.
	if resp.LearningNote != "" && s.suggester != nil {
		err := s.suggester.SuggestFromReview(ctx, item.TargetID,
			fmt.Sprintf("review %s (%s)", item.ID, resp.Decision), 0.9,
			"Reviewer note", resp.LearningNote)
		if err != nil {
			log.Warn().Str("review_id", item.ID).Err(err).
				Msg("learning suggestion from review note failed, decision stands")
		}
	}

	if err := s.reviews.Resolve(ctx, item.ID, resp.Decision, resp.DecidedBy, now, resp.Notes); err != nil {
		return nil, fmt.Errorf("resolve review item: %w", err)
	}

	resolved := *item
	resolved.Status = domain.ReviewResolved
	resolved.Decision = &resp.Decision
	resolved.DecidedBy = &resp.DecidedBy
	resolved.DecidedAt = &now
	resolved.Notes = resp.Notes
	outcome.Item = &resolved

	log.Info().Str("review_id", item.ID).Str("decision", string(resp.Decision)).
		Str("decided_by", resp.DecidedBy).Msg("review resolved")
	return outcome, nil
}

// createPredictor derives a predictor from the signal's prior evaluation.
// modify supplies a strength override; both paths clamp to [1, 10].
func (s *Service) createPredictor(ctx context.Context, item *domain.ReviewQueueItem, sig *domain.Signal, resp Response, now time.Time) (*domain.Predictor, error) {
	if sig.Evaluation == nil {
		return nil, errs.Validation("signal", "signal has no evaluation to derive a predictor from")
	}

	strength := DeriveStrength(item.Confidence)
	if resp.Decision == domain.DecisionModify {
		if resp.StrengthOverride == nil {
			return nil, errs.Validation("review", "modify decision requires strength_override")
		}
		strength = clampStrength(*resp.StrengthOverride)
	} else if resp.StrengthOverride != nil {
		strength = clampStrength(*resp.StrengthOverride)
	}

	pred := domain.Predictor{
		ID:          uuid.NewString(),
		TargetID:    item.TargetID,
		SignalID:    sig.ID,
		Direction:   sig.Evaluation.Direction,
		Strength:    strength,
		Confidence:  item.Confidence,
		Reasoning:   sig.Evaluation.Reasoning,
		AnalystSlug: sig.Evaluation.AnalystSlug,
		Status:      domain.PredictorActive,
		ExpiresAt:   now.Add(time.Duration(s.predictorTTLHours(ctx, item.TargetID)) * time.Hour),
		CreatedAt:   now,
	}
	if err := s.predictors.Insert(ctx, pred); err != nil {
		return nil, fmt.Errorf("insert predictor: %w", err)
	}
	return &pred, nil
}

// predictorTTLHours resolves the TTL from the target's universe strategy,
// falling back when resolution is unavailable.
func (s *Service) predictorTTLHours(ctx context.Context, targetID string) int {
	if s.resolver == nil || s.targets == nil {
		return fallbackTTLHours
	}
	target, err := s.targets.GetByID(ctx, targetID)
	if err != nil {
		return fallbackTTLHours
	}
	applied, err := s.resolver.GetAppliedStrategy(ctx, target.UniverseID)
	if err != nil {
		log.Warn().Str("target_id", targetID).Err(err).Msg("strategy resolution failed, using fallback TTL")
		return fallbackTTLHours
	}
	return applied.Parameters.PredictorTTLHours
}

func clampStrength(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}
