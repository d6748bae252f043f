// Package motivation maps each analyst's portfolio performance onto a
// participation state machine: the balance ratio classifies the analyst into
// active/warning/probation/suspended, the state scales the analyst's
// ensemble weight, and degraded-state entry rewrites the analyst's standing
// instructions (boss feedback).
package motivation

import "github.com/predictalab/quorum/internal/domain"

// Balance-ratio band edges. Lower edges are inclusive: r=0.80 is active,
// r=0.40 is probation.
const (
	activeFloor    = 0.80
	warningFloor   = 0.60
	probationFloor = 0.40
)

// Recovery requires a suspended analyst's paper P&L to reach +20%.
const recoveryPnlPercent = 20.0

// DetermineStatus is the pure classification of balance ratio into status.
// It is a total step function of current/initial.
func DetermineStatus(currentBalance, initialBalance float64) domain.PortfolioStatus {
	if initialBalance <= 0 {
		return domain.PortfolioSuspended
	}
	r := currentBalance / initialBalance
	switch {
	case r >= activeFloor:
		return domain.PortfolioActive
	case r >= warningFloor:
		return domain.PortfolioWarning
	case r >= probationFloor:
		return domain.PortfolioProbation
	default:
		return domain.PortfolioSuspended
	}
}

// weightMultiplier is the per-status participation multiplier.
var weightMultiplier = map[domain.PortfolioStatus]float64{
	domain.PortfolioActive:    1.0,
	domain.PortfolioWarning:   1.0,
	domain.PortfolioProbation: 0.5,
	domain.PortfolioSuspended: 0.0,
}

// GetEffectiveWeight scales a base ensemble weight by the analyst's status.
func GetEffectiveWeight(baseWeight float64, status domain.PortfolioStatus) float64 {
	return baseWeight * weightMultiplier[status]
}

// ShouldIncludeInEnsemble reports whether the analyst participates at all.
func ShouldIncludeInEnsemble(status domain.PortfolioStatus) bool {
	return status != domain.PortfolioSuspended
}

// sideEffect names a transition side effect.
type sideEffect string

const (
	// effectCautionDirective inserts an IMPORTANT cautionary directive into
	// the analyst's silver-tier instructions.
	effectCautionDirective sideEffect = "caution_directive"
	// effectCriticalDirective inserts a CRITICAL directive.
	effectCriticalDirective sideEffect = "critical_directive"
)

// transitionKey identifies one edge of the state machine.
type transitionKey struct {
	from domain.PortfolioStatus
	to   domain.PortfolioStatus
}

// transitionEffects is the explicit (from, to) -> side effects table.
// Falling into probation or suspension mutates the analyst's context;
// warning is reporting-only, and the upward suspended -> probation recovery
// edge mutates nothing. Adding a state or effect is a table edit, not a new
// branch.
var transitionEffects = map[transitionKey][]sideEffect{}

func init() {
	downgrades := []domain.PortfolioStatus{
		domain.PortfolioActive,
		domain.PortfolioWarning,
		domain.PortfolioProbation,
	}
	for _, from := range downgrades {
		if from != domain.PortfolioProbation {
			transitionEffects[transitionKey{from, domain.PortfolioProbation}] = []sideEffect{effectCautionDirective}
		}
		transitionEffects[transitionKey{from, domain.PortfolioSuspended}] = []sideEffect{effectCriticalDirective}
	}
}

// effectsFor returns the side effects of a transition, empty for edges that
// only affect reporting.
func effectsFor(from, to domain.PortfolioStatus) []sideEffect {
	return transitionEffects[transitionKey{from, to}]
}

// paperPnlPercent is the paper P&L of a portfolio as a percentage of its
// initial balance.
func paperPnlPercent(p *domain.AnalystPortfolio) float64 {
	if p.InitialBalance == 0 {
		return 0
	}
	return (p.CurrentBalance - p.InitialBalance) / p.InitialBalance * 100
}
