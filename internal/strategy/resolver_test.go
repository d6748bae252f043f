package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
)

type fakeUniverses struct {
	universes map[string]*domain.Universe
	updates   map[string]*domain.ThresholdOverrides
}

func newFakeUniverses() *fakeUniverses {
	return &fakeUniverses{
		universes: map[string]*domain.Universe{},
		updates:   map[string]*domain.ThresholdOverrides{},
	}
}

func (f *fakeUniverses) GetByID(ctx context.Context, id string) (*domain.Universe, error) {
	u, ok := f.universes[id]
	if !ok {
		return nil, errs.NotFound("universe", id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUniverses) List(ctx context.Context) ([]domain.Universe, error) {
	var out []domain.Universe
	for _, u := range f.universes {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUniverses) UpdateThresholds(ctx context.Context, id string, t *domain.ThresholdOverrides) error {
	if _, ok := f.universes[id]; !ok {
		return errs.NotFound("universe", id)
	}
	f.updates[id] = t
	f.universes[id].Thresholds = t
	return nil
}

type fakeStrategies struct {
	byID   map[string]*domain.Strategy
	bySlug map[string]*domain.Strategy
}

func newFakeStrategies() *fakeStrategies {
	return &fakeStrategies{byID: map[string]*domain.Strategy{}, bySlug: map[string]*domain.Strategy{}}
}

func (f *fakeStrategies) add(s domain.Strategy) {
	f.byID[s.ID] = &s
	f.bySlug[s.Slug] = &s
}

func (f *fakeStrategies) GetByID(ctx context.Context, id string) (*domain.Strategy, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, errs.NotFound("strategy", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStrategies) GetBySlug(ctx context.Context, slug string) (*domain.Strategy, error) {
	s, ok := f.bySlug[slug]
	if !ok {
		return nil, errs.NotFound("strategy", slug)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStrategies) List(ctx context.Context) ([]domain.Strategy, error) {
	var out []domain.Strategy
	for _, s := range f.byID {
		out = append(out, *s)
	}
	return out, nil
}

func aggressiveParams() domain.StrategyParameters {
	return domain.StrategyParameters{
		MinPredictors:         2,
		MinCombinedStrength:   8,
		MinDirectionConsensus: 0.5,
		PredictorTTLHours:     24,
		UrgentThreshold:       0.8,
		NotableThreshold:      0.65,
	}
}

func TestGetAppliedStrategyPackageDefaults(t *testing.T) {
	universes := newFakeUniverses()
	universes.universes["u1"] = &domain.Universe{ID: "u1", Domain: domain.DomainCrypto}
	r := NewResolver(universes, newFakeStrategies())

	applied, err := r.GetAppliedStrategy(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, applied.Source)
	assert.Equal(t, DefaultParameters(), applied.Parameters)
	assert.Nil(t, applied.Strategy)
}

func TestGetAppliedStrategyDefaultSlugFallback(t *testing.T) {
	universes := newFakeUniverses()
	universes.universes["u1"] = &domain.Universe{ID: "u1", Domain: domain.DomainCrypto}
	strategies := newFakeStrategies()
	strategies.add(domain.Strategy{ID: "s-def", Slug: DefaultStrategySlug, Parameters: aggressiveParams(), System: true})
	r := NewResolver(universes, strategies)

	applied, err := r.GetAppliedStrategy(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, SourceStrategy, applied.Source)
	assert.Equal(t, 24, applied.Parameters.PredictorTTLHours)
}

func TestGetAppliedStrategyUniverseStrategy(t *testing.T) {
	strategies := newFakeStrategies()
	strategies.add(domain.Strategy{ID: "s1", Slug: "momentum-aggressive", Parameters: aggressiveParams()})
	universes := newFakeUniverses()
	sid := "s1"
	universes.universes["u1"] = &domain.Universe{ID: "u1", Domain: domain.DomainCrypto, StrategyID: &sid}
	r := NewResolver(universes, strategies)

	applied, err := r.GetAppliedStrategy(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, SourceStrategy, applied.Source)
	require.NotNil(t, applied.Strategy)
	assert.Equal(t, "momentum-aggressive", applied.Strategy.Slug)
}

func TestGetAppliedStrategyUniverseOverridesWin(t *testing.T) {
	strategies := newFakeStrategies()
	strategies.add(domain.Strategy{ID: "s1", Slug: "momentum-aggressive", Parameters: aggressiveParams()})
	universes := newFakeUniverses()
	sid := "s1"
	ttl := 12
	universes.universes["u1"] = &domain.Universe{
		ID:         "u1",
		Domain:     domain.DomainCrypto,
		StrategyID: &sid,
		Thresholds: &domain.ThresholdOverrides{PredictorTTLHours: &ttl},
	}
	r := NewResolver(universes, strategies)

	applied, err := r.GetAppliedStrategy(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, SourceUniverse, applied.Source)
	assert.Equal(t, 12, applied.Parameters.PredictorTTLHours, "override field wins")
	assert.Equal(t, 2, applied.Parameters.MinPredictors, "unset fields fall through to the strategy")
}

func TestGetAppliedStrategyEmptyOverridesDoNotClaimSource(t *testing.T) {
	strategies := newFakeStrategies()
	strategies.add(domain.Strategy{ID: "s1", Slug: "momentum-aggressive", Parameters: aggressiveParams()})
	universes := newFakeUniverses()
	sid := "s1"
	universes.universes["u1"] = &domain.Universe{
		ID:         "u1",
		Domain:     domain.DomainCrypto,
		StrategyID: &sid,
		Thresholds: &domain.ThresholdOverrides{},
	}
	r := NewResolver(universes, strategies)

	applied, err := r.GetAppliedStrategy(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, SourceStrategy, applied.Source, "an all-nil override block contributes nothing")
}

func TestApplyStrategySnapshotsParameters(t *testing.T) {
	strategies := newFakeStrategies()
	strategies.add(domain.Strategy{ID: "s1", Slug: "momentum-aggressive", Parameters: aggressiveParams()})
	universes := newFakeUniverses()
	universes.universes["u1"] = &domain.Universe{ID: "u1", Domain: domain.DomainCrypto}
	r := NewResolver(universes, strategies)

	applied, err := r.ApplyStrategy(context.Background(), "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, SourceUniverse, applied.Source)

	saved := universes.updates["u1"]
	require.NotNil(t, saved)
	require.NotNil(t, saved.PredictorTTLHours)
	assert.Equal(t, 24, *saved.PredictorTTLHours)
	require.NotNil(t, saved.MinPredictors)
	assert.Equal(t, 2, *saved.MinPredictors, "every field is snapshotted verbatim")
}

func TestApplyStrategyUnknownIDs(t *testing.T) {
	universes := newFakeUniverses()
	universes.universes["u1"] = &domain.Universe{ID: "u1"}
	r := NewResolver(universes, newFakeStrategies())

	_, err := r.ApplyStrategy(context.Background(), "ghost", "s1")
	assert.True(t, errs.IsNotFound(err))

	_, err = r.ApplyStrategy(context.Background(), "u1", "ghost")
	assert.True(t, errs.IsNotFound(err))
}

func TestCompareStrategies(t *testing.T) {
	strategies := newFakeStrategies()
	strategies.add(domain.Strategy{ID: "s1", Slug: "a", Parameters: aggressiveParams()})
	b := aggressiveParams()
	b.PredictorTTLHours = 72
	b.NotableThreshold = 0.7
	strategies.add(domain.Strategy{ID: "s2", Slug: "b", Parameters: b})
	r := NewResolver(newFakeUniverses(), strategies)

	cmp, err := r.CompareStrategies(context.Background(), "s1", "s2")
	require.NoError(t, err)
	assert.False(t, cmp.Identical)
	require.Len(t, cmp.Differences, 2)
	assert.Equal(t, "predictor_ttl_hours", cmp.Differences[0].Field)
	assert.Equal(t, "24", cmp.Differences[0].A)
	assert.Equal(t, "72", cmp.Differences[0].B)

	same, err := r.CompareStrategies(context.Background(), "s1", "s1")
	require.NoError(t, err)
	assert.True(t, same.Identical)
	assert.Empty(t, same.Differences)
}

func TestRecommendStrategyByDomain(t *testing.T) {
	universes := newFakeUniverses()
	universes.universes["crypto"] = &domain.Universe{ID: "crypto", Domain: domain.DomainCrypto}
	universes.universes["stocks"] = &domain.Universe{ID: "stocks", Domain: domain.DomainStocks}
	universes.universes["elections"] = &domain.Universe{ID: "elections", Domain: domain.DomainElections}
	universes.universes["custom"] = &domain.Universe{ID: "custom", Domain: domain.DomainCustom}
	r := NewResolver(universes, newFakeStrategies())

	cases := map[string]string{
		"crypto":    "momentum-aggressive",
		"stocks":    "balanced",
		"elections": "consensus-strict",
		"custom":    DefaultStrategySlug,
	}
	for universeID, wantSlug := range cases {
		rec, err := r.RecommendStrategy(context.Background(), universeID)
		require.NoError(t, err)
		assert.Equal(t, wantSlug, rec.Slug, "universe %s", universeID)
		assert.NotEmpty(t, rec.Rationale)
	}
}
