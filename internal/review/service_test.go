package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
)

type fakeSignals struct {
	ops     *[]string
	signals map[string]*domain.Signal
	failSet bool
}

func (f *fakeSignals) GetByID(ctx context.Context, id string) (*domain.Signal, error) {
	sig, ok := f.signals[id]
	if !ok {
		return nil, errs.NotFound("signal", id)
	}
	cp := *sig
	return &cp, nil
}

func (f *fakeSignals) Insert(ctx context.Context, sig domain.Signal) error {
	f.signals[sig.ID] = &sig
	return nil
}

func (f *fakeSignals) SetDisposition(ctx context.Context, id string, d domain.SignalDisposition, reviewQueueID *string) error {
	if f.failSet {
		return errors.New("signal write failed")
	}
	*f.ops = append(*f.ops, "signal:"+string(d))
	sig := f.signals[id]
	sig.Disposition = d
	if reviewQueueID != nil {
		sig.ReviewQueueID = reviewQueueID
	}
	return nil
}

type fakeReviews struct {
	ops     *[]string
	items   map[string]*domain.ReviewQueueItem
	deleted []string
}

func (f *fakeReviews) Insert(ctx context.Context, item domain.ReviewQueueItem) error {
	*f.ops = append(*f.ops, "review:insert")
	f.items[item.ID] = &item
	return nil
}

func (f *fakeReviews) GetByID(ctx context.Context, id string) (*domain.ReviewQueueItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, errs.NotFound("review", id)
	}
	cp := *item
	return &cp, nil
}

func (f *fakeReviews) ListPending(ctx context.Context, targetID *string) ([]domain.ReviewQueueItem, error) {
	var out []domain.ReviewQueueItem
	for _, item := range f.items {
		if item.Status != domain.ReviewPending {
			continue
		}
		if targetID != nil && item.TargetID != *targetID {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (f *fakeReviews) Resolve(ctx context.Context, id string, decision domain.ReviewDecision, decidedBy string, decidedAt time.Time, notes string) error {
	*f.ops = append(*f.ops, "review:resolve")
	item := f.items[id]
	item.Status = domain.ReviewResolved
	item.Decision = &decision
	item.DecidedBy = &decidedBy
	item.DecidedAt = &decidedAt
	item.Notes = notes
	return nil
}

func (f *fakeReviews) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.items, id)
	return nil
}

type fakePredictors struct {
	ops      *[]string
	inserted []domain.Predictor
}

func (f *fakePredictors) Insert(ctx context.Context, p domain.Predictor) error {
	*f.ops = append(*f.ops, "predictor:insert")
	f.inserted = append(f.inserted, p)
	return nil
}

func (f *fakePredictors) ListActiveByTarget(ctx context.Context, targetID string) ([]domain.Predictor, error) {
	return nil, nil
}

func (f *fakePredictors) ExpireStale(ctx context.Context, universeID string, now time.Time) (int64, error) {
	return 0, nil
}

type suggestCall struct {
	targetID   string
	confidence float64
	desc       string
}

type fakeSuggester struct {
	ops   *[]string
	calls []suggestCall
	fail  bool
}

func (f *fakeSuggester) SuggestFromReview(ctx context.Context, targetID, sourceContext string, confidence float64, title, description string) error {
	*f.ops = append(*f.ops, "suggest")
	if f.fail {
		return errors.New("suggestion failed")
	}
	f.calls = append(f.calls, suggestCall{targetID: targetID, confidence: confidence, desc: description})
	return nil
}

type harness struct {
	svc        *Service
	signals    *fakeSignals
	reviews    *fakeReviews
	predictors *fakePredictors
	suggester  *fakeSuggester
	ops        []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	h.signals = &fakeSignals{ops: &h.ops, signals: map[string]*domain.Signal{}}
	h.reviews = &fakeReviews{ops: &h.ops, items: map[string]*domain.ReviewQueueItem{}}
	h.predictors = &fakePredictors{ops: &h.ops}
	h.suggester = &fakeSuggester{ops: &h.ops}
	h.svc = NewService(h.signals, h.reviews, h.predictors, nil, nil, h.suggester).
		WithNow(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return h
}

func (h *harness) seedSignal(id string, disposition domain.SignalDisposition) {
	h.signals.signals[id] = &domain.Signal{
		ID:          id,
		TargetID:    "btc-usd",
		Direction:   domain.DirectionBullish,
		Disposition: disposition,
		Evaluation: &domain.EvaluationResult{
			AnalystSlug: "contrarian",
			Direction:   domain.DirectionBullish,
			Confidence:  0.55,
			Reasoning:   "funding divergence",
		},
	}
}

func (h *harness) queue(t *testing.T, confidence float64) *domain.ReviewQueueItem {
	t.Helper()
	item, err := h.svc.QueueForReview(context.Background(), QueueRequest{
		SignalID:          "sig-1",
		TargetID:          "btc-usd",
		Confidence:        confidence,
		RecommendedAction: domain.DecisionApprove,
		AssessmentSummary: "borderline",
	})
	require.NoError(t, err)
	return item
}

func TestShouldQueueForReviewBand(t *testing.T) {
	cases := []struct {
		confidence float64
		want       bool
	}{
		{0.39, false},
		{0.40, true},
		{0.55, true},
		{0.70, true},
		{0.71, false},
		{0.0, false},
		{1.0, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ShouldQueueForReview(tc.confidence), "confidence %.2f", tc.confidence)
	}
}

func TestDeriveStrength(t *testing.T) {
	cases := []struct {
		confidence float64
		want       int
	}{
		{0.55, 6},
		{0.40, 4},
		{0.70, 7},
		{0.04, 1},
		{0.0, 1},
		{0.99, 10},
		{1.2, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DeriveStrength(tc.confidence), "confidence %.2f", tc.confidence)
	}
}

func TestQueueForReviewAdmits(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)

	item := h.queue(t, 0.55)

	assert.Equal(t, domain.ReviewPending, item.Status)
	assert.Equal(t, "sig-1", item.SignalID)

	sig := h.signals.signals["sig-1"]
	assert.Equal(t, domain.DispositionReviewPending, sig.Disposition)
	require.NotNil(t, sig.ReviewQueueID)
	assert.Equal(t, item.ID, *sig.ReviewQueueID)
}

func TestQueueForReviewRejectsOutsideBand(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)

	for _, confidence := range []float64{0.39, 0.71, 0.95} {
		_, err := h.svc.QueueForReview(context.Background(), QueueRequest{
			SignalID:   "sig-1",
			TargetID:   "btc-usd",
			Confidence: confidence,
		})
		assert.True(t, errs.IsValidation(err), "confidence %.2f", confidence)
	}
}

func TestQueueForReviewRejectsWrongDisposition(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionReviewPending)

	_, err := h.svc.QueueForReview(context.Background(), QueueRequest{
		SignalID:   "sig-1",
		TargetID:   "btc-usd",
		Confidence: 0.5,
	})
	assert.True(t, errs.IsInvalidState(err))
}

func TestQueueForReviewCompensatesOnSignalFailure(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	h.signals.failSet = true

	_, err := h.svc.QueueForReview(context.Background(), QueueRequest{
		SignalID:   "sig-1",
		TargetID:   "btc-usd",
		Confidence: 0.5,
	})
	require.Error(t, err)
	require.Len(t, h.reviews.deleted, 1, "orphaned queue row must be removed")
	assert.Empty(t, h.reviews.items)
}

func TestHandleReviewResponseApprove(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	outcome, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:  item.ID,
		Decision:  domain.DecisionApprove,
		DecidedBy: "ops",
	})
	require.NoError(t, err)

	require.NotNil(t, outcome.Predictor)
	assert.Equal(t, 6, outcome.Predictor.Strength, "0.55 derives strength 6")
	assert.Equal(t, domain.DirectionBullish, outcome.Predictor.Direction)
	assert.Equal(t, "contrarian", outcome.Predictor.AnalystSlug)
	assert.Equal(t, domain.PredictorActive, outcome.Predictor.Status)

	assert.Equal(t, domain.DispositionPredictorCreated, h.signals.signals["sig-1"].Disposition)
	assert.Equal(t, domain.ReviewResolved, outcome.Item.Status)
}

func TestHandleReviewResponseUsesFallbackTTL(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	outcome, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:  item.ID,
		Decision:  domain.DecisionApprove,
		DecidedBy: "ops",
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(72*time.Hour), outcome.Predictor.ExpiresAt)
}

func TestHandleReviewResponseOverrideWins(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	override := 9
	outcome, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:         item.ID,
		Decision:         domain.DecisionApprove,
		DecidedBy:        "ops",
		StrengthOverride: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, 9, outcome.Predictor.Strength)
}

func TestHandleReviewResponseModifyRequiresOverride(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	_, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:  item.ID,
		Decision:  domain.DecisionModify,
		DecidedBy: "ops",
	})
	assert.True(t, errs.IsValidation(err))
}

func TestHandleReviewResponseModifyClampsOverride(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	override := 15
	outcome, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:         item.ID,
		Decision:         domain.DecisionModify,
		DecidedBy:        "ops",
		StrengthOverride: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, outcome.Predictor.Strength)
}

func TestHandleReviewResponseReject(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	outcome, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:  item.ID,
		Decision:  domain.DecisionReject,
		DecidedBy: "ops",
	})
	require.NoError(t, err)

	assert.Nil(t, outcome.Predictor)
	assert.Empty(t, h.predictors.inserted)
	assert.Equal(t, domain.DispositionRejected, h.signals.signals["sig-1"].Disposition)
}

func TestHandleReviewResponseIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)

	resp := Response{ReviewID: item.ID, Decision: domain.DecisionReject, DecidedBy: "ops"}
	_, err := h.svc.HandleReviewResponse(context.Background(), resp)
	require.NoError(t, err)

	_, err = h.svc.HandleReviewResponse(context.Background(), resp)
	assert.True(t, errs.IsInvalidState(err), "second response must fail")
}

func TestLearningNoteAlwaysSuggests(t *testing.T) {
	for _, decision := range []domain.ReviewDecision{domain.DecisionApprove, domain.DecisionReject} {
		h := newHarness(t)
		h.seedSignal("sig-1", domain.DispositionEvaluated)
		item := h.queue(t, 0.55)

		_, err := h.svc.HandleReviewResponse(context.Background(), Response{
			ReviewID:     item.ID,
			Decision:     decision,
			DecidedBy:    "ops",
			LearningNote: "watch funding flips near expiry",
		})
		require.NoError(t, err)

		require.Len(t, h.suggester.calls, 1, "decision %s", decision)
		call := h.suggester.calls[0]
		assert.Equal(t, "btc-usd", call.targetID)
		assert.Equal(t, 0.9, call.confidence)
		assert.Equal(t, "watch funding flips near expiry", call.desc)
	}
}

func TestLearningNoteFailureDoesNotBlockResolution(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)
	h.suggester.fail = true

	outcome, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:     item.ID,
		Decision:     domain.DecisionApprove,
		DecidedBy:    "ops",
		LearningNote: "note",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewResolved, outcome.Item.Status)
	assert.Equal(t, domain.ReviewResolved, h.reviews.items[item.ID].Status)
}

func TestResolutionHappensLast(t *testing.T) {
	h := newHarness(t)
	h.seedSignal("sig-1", domain.DispositionEvaluated)
	item := h.queue(t, 0.55)
	h.ops = nil

	_, err := h.svc.HandleReviewResponse(context.Background(), Response{
		ReviewID:     item.ID,
		Decision:     domain.DecisionApprove,
		DecidedBy:    "ops",
		LearningNote: "note",
	})
	require.NoError(t, err)

	require.NotEmpty(t, h.ops)
	assert.Equal(t, "review:resolve", h.ops[len(h.ops)-1], "resolution must be the final write")
	assert.Equal(t, []string{"predictor:insert", "signal:predictor_created", "suggest", "review:resolve"}, h.ops)
}
