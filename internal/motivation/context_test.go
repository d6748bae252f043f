package motivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
)

func TestBuildPerformanceContextMissingPortfolio(t *testing.T) {
	svc := newTestService(newFakePortfolios(), newFakePerspectives())
	_, err := svc.BuildPerformanceContext(context.Background(), "ghost", domain.ForkAI)
	assert.True(t, errs.IsNotFound(err))
}

func TestBuildPerformanceContextZeroTrades(t *testing.T) {
	portfolios := newFakePortfolios()
	seedPortfolio(portfolios, "a1", 1000, domain.PortfolioActive)
	svc := newTestService(portfolios, newFakePerspectives())

	pc, err := svc.BuildPerformanceContext(context.Background(), "a1", domain.ForkHuman)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pc.WinRate, "no settled trades means zero win rate, not NaN")
	assert.Equal(t, 0.0, pc.PnlAmount)
	assert.Empty(t, pc.Peers, "human fork skips peer ranking")
}

func TestBuildPerformanceContextRanksAiPeers(t *testing.T) {
	portfolios := newFakePortfolios()
	seedPortfolio(portfolios, "alpha", 1500, domain.PortfolioActive)
	seedPortfolio(portfolios, "beta", 1200, domain.PortfolioActive)
	seedPortfolio(portfolios, "gamma", 800, domain.PortfolioWarning)
	svc := newTestService(portfolios, newFakePerspectives())

	pc, err := svc.BuildPerformanceContext(context.Background(), "beta", domain.ForkAI)
	require.NoError(t, err)

	assert.Equal(t, 2, pc.Rank)
	assert.Equal(t, 3, pc.TotalAnalysts)
	require.Len(t, pc.Peers, 3)
	assert.Equal(t, "alpha", pc.Peers[0].AnalystID, "peers sorted by P&L descending")
	assert.True(t, pc.Peers[1].IsSelf)
}

func TestBuildPerformanceContextWinRate(t *testing.T) {
	portfolios := newFakePortfolios()
	seedPortfolio(portfolios, "a1", 1100, domain.PortfolioActive)
	portfolios.byAnalyst["a1"].WinCount = 3
	portfolios.byAnalyst["a1"].LossCount = 1
	svc := newTestService(portfolios, newFakePerspectives())

	pc, err := svc.BuildPerformanceContext(context.Background(), "a1", domain.ForkHuman)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, pc.WinRate, 1e-9)
}

func TestFormatPerformanceContextNoticeEscalation(t *testing.T) {
	pc := &PerformanceContext{
		AnalystID:  "a1",
		ForkType:   domain.ForkHuman,
		Status:     domain.PortfolioActive,
		PnlAmount:  50,
		PnlPercent: 5,
		WinRate:    0.6,
		Wins:       3,
		Losses:     2,
	}

	out := FormatPerformanceContextForPrompt(pc)
	assert.NotContains(t, out, "Performance Notice", "healthy analysts get no notice")

	pc.Status = domain.PortfolioWarning
	assert.Contains(t, FormatPerformanceContextForPrompt(pc), "your balance is declining")

	pc.Status = domain.PortfolioProbation
	assert.Contains(t, FormatPerformanceContextForPrompt(pc), "PROBATION")

	pc.Status = domain.PortfolioSuspended
	assert.Contains(t, FormatPerformanceContextForPrompt(pc), "SUSPENDED")
}

func TestFormatPerformanceContextPeerBlock(t *testing.T) {
	pc := &PerformanceContext{
		AnalystID:     "beta",
		ForkType:      domain.ForkAI,
		Status:        domain.PortfolioActive,
		Rank:          2,
		TotalAnalysts: 2,
		Peers: []PeerStanding{
			{AnalystID: "alpha", PnlAmount: 500},
			{AnalystID: "beta", PnlAmount: 200, IsSelf: true},
		},
	}
	out := FormatPerformanceContextForPrompt(pc)
	assert.Contains(t, out, "You rank #2 of 2")
	assert.Contains(t, out, "beta: +200.00 (you)")
}
