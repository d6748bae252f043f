package motivation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
)

// PeerStanding is one row of the ai-fork leaderboard.
type PeerStanding struct {
	AnalystID string  `json:"analyst_id"`
	PnlAmount float64 `json:"pnl_amount"`
	IsSelf    bool    `json:"is_self"`
}

// PerformanceContext summarizes an analyst's ledger for prompt injection.
type PerformanceContext struct {
	AnalystID     string                 `json:"analyst_id"`
	ForkType      domain.ForkType        `json:"fork_type"`
	Status        domain.PortfolioStatus `json:"status"`
	PnlAmount     float64                `json:"pnl_amount"`
	PnlPercent    float64                `json:"pnl_percent"`
	WinRate       float64                `json:"win_rate"`
	Wins          int                    `json:"wins"`
	Losses        int                    `json:"losses"`
	Rank          int                    `json:"rank,omitempty"`
	TotalAnalysts int                    `json:"total_analysts,omitempty"`
	Peers         []PeerStanding         `json:"peers,omitempty"`
}

// BuildPerformanceContext computes the analyst's performance summary. The
// win rate is zero when there are no settled trades. For the ai fork it adds
// a peer ranking against all other ai analysts by P&L amount descending.
func (s *Service) BuildPerformanceContext(ctx context.Context, analystID string, fork domain.ForkType) (*PerformanceContext, error) {
	p, err := s.portfolios.GetByAnalyst(ctx, analystID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errs.NotFound("portfolio", analystID)
	}

	pc := &PerformanceContext{
		AnalystID:  analystID,
		ForkType:   fork,
		Status:     p.Status,
		PnlAmount:  p.CurrentBalance - p.InitialBalance,
		PnlPercent: paperPnlPercent(p),
		Wins:       p.WinCount,
		Losses:     p.LossCount,
	}
	if total := p.WinCount + p.LossCount; total > 0 {
		pc.WinRate = float64(p.WinCount) / float64(total)
	}

	if fork == domain.ForkAI {
		if err := s.rankAgainstPeers(ctx, pc); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func (s *Service) rankAgainstPeers(ctx context.Context, pc *PerformanceContext) error {
	peers, err := s.portfolios.ListByFork(ctx, domain.ForkAI)
	if err != nil {
		return fmt.Errorf("list peer portfolios: %w", err)
	}

	standings := make([]PeerStanding, 0, len(peers))
	for _, peer := range peers {
		standings = append(standings, PeerStanding{
			AnalystID: peer.AnalystID,
			PnlAmount: peer.CurrentBalance - peer.InitialBalance,
			IsSelf:    peer.AnalystID == pc.AnalystID,
		})
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].PnlAmount > standings[j].PnlAmount
	})

	pc.TotalAnalysts = len(standings)
	pc.Peers = standings
	for i, st := range standings {
		if st.IsSelf {
			pc.Rank = i + 1
			break
		}
	}
	return nil
}

// FormatPerformanceContextForPrompt renders the context as fixed-format
// prose. A Performance Notice block appears only at warning or worse, with
// severity language escalating through probation and suspension.
func FormatPerformanceContextForPrompt(pc *PerformanceContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Your trading performance: P&L %+.2f (%+.1f%%), win rate %.0f%% (%d wins, %d losses).\n",
		pc.PnlAmount, pc.PnlPercent, pc.WinRate*100, pc.Wins, pc.Losses)

	if pc.ForkType == domain.ForkAI && pc.TotalAnalysts > 0 {
		fmt.Fprintf(&b, "You rank #%d of %d analysts by P&L.\n", pc.Rank, pc.TotalAnalysts)
		for _, peer := range pc.Peers {
			marker := ""
			if peer.IsSelf {
				marker = " (you)"
			}
			fmt.Fprintf(&b, "  - %s: %+.2f%s\n", peer.AnalystID, peer.PnlAmount, marker)
		}
	}

	switch pc.Status {
	case domain.PortfolioWarning:
		b.WriteString("\nPerformance Notice: your balance is declining. Tighten your evidence standards before it worsens.\n")
	case domain.PortfolioProbation:
		b.WriteString("\nPerformance Notice: you are on PROBATION. Your ensemble weight is halved. Only high-conviction, well-evidenced calls.\n")
	case domain.PortfolioSuspended:
		b.WriteString("\nPerformance Notice: you are SUSPENDED. Your judgments carry no ensemble weight until you demonstrate recovery.\n")
	}

	return b.String()
}
