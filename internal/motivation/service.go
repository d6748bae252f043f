package motivation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/persistence"
)

// Transition reports one applied status change.
type Transition struct {
	AnalystID string                 `json:"analyst_id"`
	From      domain.PortfolioStatus `json:"from"`
	To        domain.PortfolioStatus `json:"to"`
	Reason    string                 `json:"reason"`
	At        time.Time              `json:"at"`
}

// Service evaluates portfolio status, applies boss-feedback side effects and
// runs the periodic sweeps.
type Service struct {
	portfolios   persistence.PortfolioRepo
	perspectives persistence.PerspectiveRepo
	nowFn        func() time.Time
}

// NewService wires the motivation service.
func NewService(portfolios persistence.PortfolioRepo, perspectives persistence.PerspectiveRepo) *Service {
	return &Service{portfolios: portfolios, perspectives: perspectives, nowFn: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	s.nowFn = fn
	return s
}

// EvaluateAndUpdateStatus recomputes one analyst's status from the current
// balances. A missing portfolio and an unchanged status both return nil with
// no error. A changed status is persisted compare-and-set against the
// previously observed status, so two racing sweeps cannot double-apply the
// same transition; losing the race is a no-op.
func (s *Service) EvaluateAndUpdateStatus(ctx context.Context, analystID string) (*Transition, error) {
	p, err := s.portfolios.GetByAnalyst(ctx, analystID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	next := DetermineStatus(p.CurrentBalance, p.InitialBalance)
	if next == p.Status {
		return nil, nil
	}

	now := s.nowFn()
	applied, err := s.portfolios.CompareAndSetStatus(ctx, analystID, p.Status, next, now)
	if err != nil {
		return nil, fmt.Errorf("persist status transition: %w", err)
	}
	if !applied {
		log.Debug().Str("analyst_id", analystID).Msg("status transition lost CAS race, skipping")
		return nil, nil
	}

	tr := &Transition{
		AnalystID: analystID,
		From:      p.Status,
		To:        next,
		Reason:    fmt.Sprintf("balance ratio %.2f", ratio(p)),
		At:        now,
	}
	log.Info().Str("analyst_id", analystID).
		Str("from", string(tr.From)).Str("to", string(tr.To)).
		Float64("balance_ratio", ratio(p)).Msg("portfolio status transition")

	s.applySideEffects(ctx, p, tr)
	return tr, nil
}

// applySideEffects runs the transition table's boss-feedback mutations. A
// failed mutation is logged and absorbed: the status transition has already
// been committed and must stand.
func (s *Service) applySideEffects(ctx context.Context, p *domain.AnalystPortfolio, tr *Transition) {
	for _, effect := range effectsFor(tr.From, tr.To) {
		var directive string
		switch effect {
		case effectCautionDirective:
			directive = fmt.Sprintf(
				"IMPORTANT: Your portfolio has fallen to %.0f%% of its initial balance and you are on probation. Reduce position conviction, favor your historically strongest setups, and cite concrete evidence for every directional call.",
				ratio(p)*100)
		case effectCriticalDirective:
			directive = fmt.Sprintf(
				"CRITICAL: Your portfolio has fallen to %.0f%% of its initial balance and you are suspended from the ensemble. Your judgments are recorded but carry no weight until recovery. Re-examine your losing theses before proposing new ones.",
				ratio(p)*100)
		default:
			continue
		}
		if err := s.appendPerspective(ctx, p.AnalystID, directive, tr); err != nil {
			log.Error().Str("analyst_id", p.AnalystID).Err(err).
				Msg("boss feedback context mutation failed, transition stands")
		}
	}
}

// appendPerspective writes a new immutable silver-tier instruction version
// with the directive prepended to the prior instructions.
func (s *Service) appendPerspective(ctx context.Context, analystID, directive string, tr *Transition) error {
	prev, err := s.perspectives.LatestVersion(ctx, analystID, domain.TierSilver)
	if err != nil {
		return err
	}
	version := 1
	instructions := directive
	if prev != nil {
		version = prev.Version + 1
		instructions = directive + "\n\n" + prev.Instructions
	}
	return s.perspectives.Insert(ctx, domain.PerspectiveVersion{
		ID:           uuid.NewString(),
		AnalystID:    analystID,
		Tier:         domain.TierSilver,
		Instructions: instructions,
		ChangeReason: fmt.Sprintf("status transition %s -> %s", tr.From, tr.To),
		Version:      version,
		CreatedAt:    tr.At,
	})
}

// EvaluateAllAiPortfolios sweeps every ai-fork portfolio and returns the
// transitions that actually happened. A failure on one analyst is logged and
// excluded; it never halts the sweep.
func (s *Service) EvaluateAllAiPortfolios(ctx context.Context) ([]Transition, error) {
	portfolios, err := s.portfolios.ListByFork(ctx, domain.ForkAI)
	if err != nil {
		return nil, fmt.Errorf("list ai portfolios: %w", err)
	}

	transitions := []Transition{}
	for _, p := range portfolios {
		tr, err := s.EvaluateAndUpdateStatus(ctx, p.AnalystID)
		if err != nil {
			log.Warn().Str("analyst_id", p.AnalystID).Err(err).
				Msg("portfolio evaluation failed, continuing sweep")
			continue
		}
		if tr != nil {
			transitions = append(transitions, *tr)
		}
	}
	return transitions, nil
}

// CheckRecoveryEligibility reports whether a suspended analyst has earned
// the graduated step back to probation. Only suspended analysts are
// considered; eligibility requires paper P&L of at least +20%.
func (s *Service) CheckRecoveryEligibility(ctx context.Context, analystID string) (bool, float64, error) {
	p, err := s.portfolios.GetByAnalyst(ctx, analystID)
	if err != nil {
		return false, 0, err
	}
	if p == nil {
		return false, 0, nil
	}
	pnl := paperPnlPercent(p)
	if p.Status != domain.PortfolioSuspended {
		return false, pnl, nil
	}
	return pnl >= recoveryPnlPercent, pnl, nil
}

// ProcessRecovery applies the graduated recovery transition for one analyst:
// suspended -> probation, never straight back to active.
func (s *Service) ProcessRecovery(ctx context.Context, analystID string) (*Transition, error) {
	eligible, pnl, err := s.CheckRecoveryEligibility(ctx, analystID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, nil
	}

	now := s.nowFn()
	applied, err := s.portfolios.CompareAndSetStatus(ctx, analystID, domain.PortfolioSuspended, domain.PortfolioProbation, now)
	if err != nil {
		return nil, fmt.Errorf("persist recovery transition: %w", err)
	}
	if !applied {
		return nil, nil
	}

	tr := &Transition{
		AnalystID: analystID,
		From:      domain.PortfolioSuspended,
		To:        domain.PortfolioProbation,
		Reason:    fmt.Sprintf("Recovery: paper P&L %.1f%% cleared the %.0f%% bar", pnl, recoveryPnlPercent),
		At:        now,
	}
	log.Info().Str("analyst_id", analystID).Float64("paper_pnl_pct", pnl).
		Msg("suspended analyst recovered to probation")
	return tr, nil
}

// ProcessAllRecoveries sweeps all suspended ai portfolios, isolating
// per-analyst failures like the evaluation sweep does.
func (s *Service) ProcessAllRecoveries(ctx context.Context) ([]Transition, error) {
	suspended, err := s.portfolios.ListByStatus(ctx, domain.ForkAI, domain.PortfolioSuspended)
	if err != nil {
		return nil, fmt.Errorf("list suspended portfolios: %w", err)
	}

	transitions := []Transition{}
	for _, p := range suspended {
		tr, err := s.ProcessRecovery(ctx, p.AnalystID)
		if err != nil {
			log.Warn().Str("analyst_id", p.AnalystID).Err(err).
				Msg("recovery processing failed, continuing sweep")
			continue
		}
		if tr != nil {
			transitions = append(transitions, *tr)
		}
	}
	return transitions, nil
}

func ratio(p *domain.AnalystPortfolio) float64 {
	if p.InitialBalance == 0 {
		return 0
	}
	return p.CurrentBalance / p.InitialBalance
}
