package learning

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

type fakeQueueRepo struct {
	items      map[string]*domain.LearningQueueItem
	resolveErr error
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{items: map[string]*domain.LearningQueueItem{}}
}

func (f *fakeQueueRepo) Insert(ctx context.Context, item domain.LearningQueueItem) error {
	f.items[item.ID] = &item
	return nil
}

func (f *fakeQueueRepo) GetByID(ctx context.Context, id string) (*domain.LearningQueueItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, errs.NotFound("learning_queue", id)
	}
	cp := *item
	return &cp, nil
}

func (f *fakeQueueRepo) ListPending(ctx context.Context) ([]domain.LearningQueueItem, error) {
	var out []domain.LearningQueueItem
	for _, item := range f.items {
		if item.Status == domain.QueuePending {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeQueueRepo) Resolve(ctx context.Context, item domain.LearningQueueItem) error {
	if f.resolveErr != nil {
		return f.resolveErr
	}
	f.items[item.ID] = &item
	return nil
}

func newTestQueue() (*Queue, *fakeQueueRepo, *fakeLearnings) {
	store, learnings := newTestStore()
	repo := newFakeQueueRepo()
	targets := &fakeTargets{targets: map[string]*domain.Target{
		"btc-usd": {ID: "btc-usd", UniverseID: "uni-crypto", Symbol: "BTC-USD", Active: true},
	}}
	universes := &fakeUniverses{universes: map[string]*domain.Universe{
		"uni-crypto": {ID: "uni-crypto", Domain: domain.DomainCrypto, Active: true},
	}}
	q := NewQueue(repo, targets, universes, store).WithNow(func() time.Time { return storeNow })
	return q, repo, learnings
}

func suggest(t *testing.T, q *Queue) *domain.LearningQueueItem {
	t.Helper()
	item, err := q.CreateSuggestion(context.Background(), SuggestionInput{
		TargetID:      "btc-usd",
		SourceContext: "missed move 2026-02-27",
		Confidence:    0.6,
		Scope:         domain.ScopeTarget,
		Type:          domain.LearningPattern,
		Title:         "Pre-halving drift",
		Description:   "Momentum accumulates quietly before halvings",
	})
	require.NoError(t, err)
	return item
}

func TestCreateSuggestionPending(t *testing.T) {
	q, repo, _ := newTestQueue()
	item := suggest(t, q)

	assert.Equal(t, domain.QueuePending, item.Status)
	assert.Nil(t, item.LearningID)
	assert.Len(t, repo.items, 1)
}

func TestCreateSuggestionRequiresTitle(t *testing.T) {
	q, _, _ := newTestQueue()
	_, err := q.CreateSuggestion(context.Background(), SuggestionInput{TargetID: "btc-usd"})
	assert.True(t, errs.IsValidation(err))
}

func TestSuggestFromReviewBindsTargetScope(t *testing.T) {
	q, repo, _ := newTestQueue()

	err := q.SuggestFromReview(context.Background(), "btc-usd", "review r-1 (approve)", 0.9, "Reviewer note", "watch the basis")
	require.NoError(t, err)

	require.Len(t, repo.items, 1)
	for _, item := range repo.items {
		assert.Equal(t, domain.ScopeTarget, item.SuggestedScope)
		assert.Equal(t, domain.LearningRule, item.SuggestedType)
		assert.Equal(t, 0.9, item.Confidence)
	}
}

func TestRespondApproveCreatesLearningFromSuggestion(t *testing.T) {
	q, repo, learnings := newTestQueue()
	item := suggest(t, q)

	resolved, err := q.Respond(context.Background(), item.ID, RespondInput{Status: domain.QueueApproved}, "ops")
	require.NoError(t, err)

	require.NotNil(t, resolved.LearningID)
	created := learnings.rows[*resolved.LearningID]
	require.NotNil(t, created)
	assert.Equal(t, domain.ScopeTarget, created.ScopeLevel)
	assert.Equal(t, "btc-usd", created.ScopeID)
	assert.Equal(t, "Pre-halving drift", created.Title)
	assert.Equal(t, domain.SourceAIApproved, created.SourceType)

	stored := repo.items[item.ID]
	assert.Equal(t, domain.QueueApproved, stored.Status)
	require.NotNil(t, stored.ReviewedByUserID)
	assert.Equal(t, "ops", *stored.ReviewedByUserID)
	require.NotNil(t, stored.FinalTitle)
	assert.Equal(t, "Pre-halving drift", *stored.FinalTitle, "approve keeps the suggested payload")
}

func TestRespondModifiedMergesPerField(t *testing.T) {
	q, _, learnings := newTestQueue()
	item := suggest(t, q)

	scope := domain.ScopeUniverse
	title := "Universal pre-event drift"
	resolved, err := q.Respond(context.Background(), item.ID, RespondInput{
		Status:     domain.QueueModified,
		FinalScope: &scope,
		FinalTitle: &title,
	}, "ops")
	require.NoError(t, err)

	created := learnings.rows[*resolved.LearningID]
	assert.Equal(t, domain.ScopeUniverse, created.ScopeLevel)
	assert.Equal(t, "uni-crypto", created.ScopeID, "universe scope binds to the target's universe")
	assert.Equal(t, "Universal pre-event drift", created.Title)
	assert.Equal(t, domain.LearningPattern, created.LearningType, "unspecified fields keep the suggested value")
	assert.Equal(t, item.SuggestedDesc, created.Description)
}

func TestRespondDomainScopeBindsDomainName(t *testing.T) {
	q, _, learnings := newTestQueue()
	item := suggest(t, q)

	scope := domain.ScopeDomain
	resolved, err := q.Respond(context.Background(), item.ID, RespondInput{
		Status:     domain.QueueApproved,
		FinalScope: &scope,
	}, "ops")
	require.NoError(t, err)

	created := learnings.rows[*resolved.LearningID]
	assert.Equal(t, "crypto", created.ScopeID)
}

func TestRespondFailedScopeLookupCreatesNothing(t *testing.T) {
	q, repo, learnings := newTestQueue()
	item, err := q.CreateSuggestion(context.Background(), SuggestionInput{
		TargetID: "delisted",
		Scope:    domain.ScopeTarget,
		Type:     domain.LearningPattern,
		Title:    "Orphaned suggestion",
	})
	require.NoError(t, err)

	scope := domain.ScopeUniverse
	_, err = q.Respond(context.Background(), item.ID, RespondInput{
		Status:     domain.QueueApproved,
		FinalScope: &scope,
	}, "ops")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err), "the lookup failure surfaces instead of mislabeling the scope")

	assert.Empty(t, learnings.rows)
	assert.Equal(t, domain.QueuePending, repo.items[item.ID].Status, "the item stays open for a retry")
}

func TestRespondResolveFailureBacksOutLearning(t *testing.T) {
	q, repo, learnings := newTestQueue()
	item := suggest(t, q)

	repo.resolveErr = errors.New("connection reset")
	_, err := q.Respond(context.Background(), item.ID, RespondInput{Status: domain.QueueApproved}, "ops")
	require.Error(t, err)
	assert.Empty(t, learnings.rows, "the created learning is backed out when the resolve fails")
	assert.Equal(t, domain.QueuePending, repo.items[item.ID].Status)

	repo.resolveErr = nil
	resolved, err := q.Respond(context.Background(), item.ID, RespondInput{Status: domain.QueueApproved}, "ops")
	require.NoError(t, err)
	require.NotNil(t, resolved.LearningID)
	assert.Len(t, learnings.rows, 1, "the retry leaves exactly one learning")
}

func TestRespondRejectCreatesNothing(t *testing.T) {
	q, repo, learnings := newTestQueue()
	item := suggest(t, q)

	resolved, err := q.Respond(context.Background(), item.ID, RespondInput{
		Status:        domain.QueueRejected,
		ReviewerNotes: "too speculative",
	}, "ops")
	require.NoError(t, err)

	assert.Nil(t, resolved.LearningID)
	assert.Empty(t, learnings.rows)
	stored := repo.items[item.ID]
	assert.Equal(t, domain.QueueRejected, stored.Status)
	assert.Equal(t, "too speculative", stored.ReviewerNotes)
	require.NotNil(t, stored.ReviewedAt)
}

func TestRespondIsTerminal(t *testing.T) {
	q, _, _ := newTestQueue()
	item := suggest(t, q)

	_, err := q.Respond(context.Background(), item.ID, RespondInput{Status: domain.QueueRejected}, "ops")
	require.NoError(t, err)

	_, err = q.Respond(context.Background(), item.ID, RespondInput{Status: domain.QueueApproved}, "ops")
	assert.True(t, errs.IsInvalidState(err))
}

func TestRespondRejectsNonDispositionStatus(t *testing.T) {
	q, _, _ := newTestQueue()
	item := suggest(t, q)

	_, err := q.Respond(context.Background(), item.ID, RespondInput{Status: domain.QueuePending}, "ops")
	assert.True(t, errs.IsValidation(err))
}
