// Package strategy resolves the effective decision parameters for a universe
// from the layered override hierarchy: universe threshold overrides, then the
// universe's strategy, then package defaults.
package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/persistence"
)

// DefaultStrategySlug is the system fallback consulted when a universe names
// no strategy of its own.
const DefaultStrategySlug = "default"

// Source identifies which layer supplied the resolved parameters.
type Source string

const (
	SourceUniverse Source = "universe"
	SourceStrategy Source = "strategy"
	SourceDefault  Source = "default"
)

// Applied is the result of resolving a universe's decision parameters.
type Applied struct {
	Strategy   *domain.Strategy          `json:"strategy,omitempty"`
	Parameters domain.StrategyParameters `json:"effective_parameters"`
	Source     Source                    `json:"source"`
}

// Difference describes one field-wise divergence between two strategies.
type Difference struct {
	Field string `json:"field"`
	A     string `json:"a"`
	B     string `json:"b"`
}

// Comparison is the result of a field-wise strategy comparison.
type Comparison struct {
	Identical   bool         `json:"identical"`
	Differences []Difference `json:"differences"`
}

// Recommendation maps a universe to a suggested strategy slug with rationale.
type Recommendation struct {
	Slug      string `json:"slug"`
	Rationale string `json:"rationale"`
}

// DefaultParameters returns the hard-coded package fallback used when neither
// universe overrides nor a strategy row are available.
func DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		MinPredictors:         3,
		MinCombinedStrength:   12,
		MinDirectionConsensus: 0.6,
		PredictorTTLHours:     72,
		UrgentThreshold:       0.85,
		NotableThreshold:      0.7,
	}
}

// recommendationTable is a fixed policy table, not a learned model. Keyed by
// universe domain.
var recommendationTable = map[domain.UniverseDomain]Recommendation{
	domain.DomainCrypto: {
		Slug:      "momentum-aggressive",
		Rationale: "Crypto universes move fast and around the clock; a short TTL with a lower consensus bar captures momentum before it decays.",
	},
	domain.DomainStocks: {
		Slug:      "balanced",
		Rationale: "Equities trade in sessions with slower drift; the balanced profile trades fewer, higher-conviction predictors.",
	},
	domain.DomainElections: {
		Slug:      "consensus-strict",
		Rationale: "Election markets are thin and narrative-driven; requiring strong consensus filters out single-analyst noise.",
	},
	domain.DomainPolymarket: {
		Slug:      "consensus-strict",
		Rationale: "Prediction-market prices already aggregate crowd belief; only act when the ensemble clearly disagrees.",
	},
	domain.DomainSports: {
		Slug:      "balanced",
		Rationale: "Sports lines resolve quickly; the balanced profile keeps TTLs aligned with event horizons.",
	},
}

// Resolver resolves, applies, compares and recommends strategies.
type Resolver struct {
	universes  persistence.UniverseRepo
	strategies persistence.StrategyRepo
}

// NewResolver wires a resolver over the universe and strategy repositories.
func NewResolver(universes persistence.UniverseRepo, strategies persistence.StrategyRepo) *Resolver {
	return &Resolver{universes: universes, strategies: strategies}
}

// GetAppliedStrategy resolves the effective parameters for a universe.
// Universe overrides merge over the base strategy field by field; the source
// reports the outermost layer that contributed.
func (r *Resolver) GetAppliedStrategy(ctx context.Context, universeID string) (*Applied, error) {
	uni, err := r.universes.GetByID(ctx, universeID)
	if err != nil {
		return nil, err
	}

	base, strat := r.baseParameters(ctx, uni)

	applied := &Applied{Strategy: strat, Parameters: base}
	switch {
	case uni.Thresholds != nil && mergeOverrides(&applied.Parameters, uni.Thresholds):
		applied.Source = SourceUniverse
	case strat != nil:
		applied.Source = SourceStrategy
	default:
		applied.Source = SourceDefault
	}
	return applied, nil
}

// baseParameters resolves the pre-override layer: the universe's strategy if
// set, else the default-slug system strategy, else package defaults.
func (r *Resolver) baseParameters(ctx context.Context, uni *domain.Universe) (domain.StrategyParameters, *domain.Strategy) {
	if uni.StrategyID != nil {
		strat, err := r.strategies.GetByID(ctx, *uni.StrategyID)
		if err == nil {
			return strat.Parameters, strat
		}
		log.Warn().Str("universe_id", uni.ID).Str("strategy_id", *uni.StrategyID).Err(err).
			Msg("universe strategy unresolvable, falling back")
	}
	if strat, err := r.strategies.GetBySlug(ctx, DefaultStrategySlug); err == nil {
		return strat.Parameters, strat
	}
	return DefaultParameters(), nil
}

// ApplyStrategy snapshots a strategy's parameters into the universe's
// threshold overrides verbatim. The copy is not a live link: later strategy
// edits do not propagate.
func (r *Resolver) ApplyStrategy(ctx context.Context, universeID, strategyID string) (*Applied, error) {
	if _, err := r.universes.GetByID(ctx, universeID); err != nil {
		return nil, err
	}
	strat, err := r.strategies.GetByID(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	p := strat.Parameters
	overrides := &domain.ThresholdOverrides{
		MinPredictors:         &p.MinPredictors,
		MinCombinedStrength:   &p.MinCombinedStrength,
		MinDirectionConsensus: &p.MinDirectionConsensus,
		PredictorTTLHours:     &p.PredictorTTLHours,
		UrgentThreshold:       &p.UrgentThreshold,
		NotableThreshold:      &p.NotableThreshold,
	}
	if err := r.universes.UpdateThresholds(ctx, universeID, overrides); err != nil {
		return nil, fmt.Errorf("persist universe thresholds: %w", err)
	}

	log.Info().Str("universe_id", universeID).Str("strategy", strat.Slug).Msg("strategy applied to universe")
	return &Applied{Strategy: strat, Parameters: p, Source: SourceUniverse}, nil
}

// CompareStrategies returns a field-wise comparison of two strategies.
func (r *Resolver) CompareStrategies(ctx context.Context, idA, idB string) (*Comparison, error) {
	a, err := r.strategies.GetByID(ctx, idA)
	if err != nil {
		return nil, err
	}
	b, err := r.strategies.GetByID(ctx, idB)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Differences: []Difference{}}
	pa, pb := a.Parameters, b.Parameters
	addInt := func(field string, va, vb int) {
		if va != vb {
			cmp.Differences = append(cmp.Differences, Difference{Field: field, A: fmt.Sprintf("%d", va), B: fmt.Sprintf("%d", vb)})
		}
	}
	addFloat := func(field string, va, vb float64) {
		if va != vb {
			cmp.Differences = append(cmp.Differences, Difference{Field: field, A: fmt.Sprintf("%g", va), B: fmt.Sprintf("%g", vb)})
		}
	}
	addInt("min_predictors", pa.MinPredictors, pb.MinPredictors)
	addInt("min_combined_strength", pa.MinCombinedStrength, pb.MinCombinedStrength)
	addFloat("min_direction_consensus", pa.MinDirectionConsensus, pb.MinDirectionConsensus)
	addInt("predictor_ttl_hours", pa.PredictorTTLHours, pb.PredictorTTLHours)
	addFloat("urgent_threshold", pa.UrgentThreshold, pb.UrgentThreshold)
	addFloat("notable_threshold", pa.NotableThreshold, pb.NotableThreshold)

	cmp.Identical = len(cmp.Differences) == 0
	return cmp, nil
}

// RecommendStrategy suggests a strategy slug for the universe's domain.
func (r *Resolver) RecommendStrategy(ctx context.Context, universeID string) (*Recommendation, error) {
	uni, err := r.universes.GetByID(ctx, universeID)
	if err != nil {
		return nil, err
	}
	if rec, ok := recommendationTable[uni.Domain]; ok {
		return &rec, nil
	}
	return &Recommendation{
		Slug:      DefaultStrategySlug,
		Rationale: fmt.Sprintf("No tuned profile for domain %q; the default system strategy is the conservative choice.", uni.Domain),
	}, nil
}

// mergeOverrides applies non-nil override fields onto p and reports whether
// any field was applied.
func mergeOverrides(p *domain.StrategyParameters, t *domain.ThresholdOverrides) bool {
	applied := false
	if t.MinPredictors != nil {
		p.MinPredictors = *t.MinPredictors
		applied = true
	}
	if t.MinCombinedStrength != nil {
		p.MinCombinedStrength = *t.MinCombinedStrength
		applied = true
	}
	if t.MinDirectionConsensus != nil {
		p.MinDirectionConsensus = *t.MinDirectionConsensus
		applied = true
	}
	if t.PredictorTTLHours != nil {
		p.PredictorTTLHours = *t.PredictorTTLHours
		applied = true
	}
	if t.UrgentThreshold != nil {
		p.UrgentThreshold = *t.UrgentThreshold
		applied = true
	}
	if t.NotableThreshold != nil {
		p.NotableThreshold = *t.NotableThreshold
		applied = true
	}
	return applied
}
