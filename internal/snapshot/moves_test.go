package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictalab/quorum/internal/domain"
)

func TestForDomainSelectsProfile(t *testing.T) {
	profiles := DefaultMoveProfiles()

	cases := []struct {
		dom  domain.UniverseDomain
		want MoveConfig
	}{
		{domain.DomainCrypto, profiles.Crypto},
		{domain.DomainStocks, profiles.Stocks},
		{domain.DomainElections, profiles.Elections},
		{domain.DomainPolymarket, profiles.Polymarket},
		{domain.DomainSports, profiles.Sports},
		{domain.DomainCustom, profiles.Default},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, profiles.ForDomain(tc.dom), "domain %s", tc.dom)
	}
}

func TestDefaultMoveProfilesSensitivity(t *testing.T) {
	profiles := DefaultMoveProfiles()

	assert.Equal(t, 8.0, profiles.Crypto.MinChangePercent)
	assert.Equal(t, 12*time.Hour, profiles.Crypto.MaxWindow)
	assert.Equal(t, 4.0, profiles.Stocks.MinChangePercent)
	assert.Equal(t, 10.0, profiles.Polymarket.MinChangePercent)
	assert.Equal(t, 6*time.Hour, profiles.Sports.MaxWindow)
	assert.Equal(t, 7*24*time.Hour, profiles.Elections.Lookback)
}

func TestLoadMoveProfilesMissingFileFallsBack(t *testing.T) {
	cfg, err := LoadMoveProfiles(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMoveProfiles(), cfg)
}

func TestLoadMoveProfilesMergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moves.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crypto:\n  min_change_percent: 12.5\n"), 0o644))

	cfg, err := LoadMoveProfiles(path)
	require.NoError(t, err)

	assert.Equal(t, 12.5, cfg.Crypto.MinChangePercent)
	// Fields absent from the file keep their built-in values.
	assert.Equal(t, 12*time.Hour, cfg.Crypto.MaxWindow)
	assert.Equal(t, DefaultMoveProfiles().Stocks, cfg.Stocks)
}

func TestLoadMoveProfilesMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moves.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crypto: [not a mapping"), 0o644))

	_, err := LoadMoveProfiles(path)
	assert.Error(t, err)
}

func series(targetID string, start time.Time, step time.Duration, values ...float64) []domain.TargetSnapshot {
	snaps := make([]domain.TargetSnapshot, 0, len(values))
	for i, v := range values {
		snaps = append(snaps, domain.TargetSnapshot{
			TargetID:   targetID,
			Value:      v,
			CapturedAt: start.Add(time.Duration(i) * step),
		})
	}
	return snaps
}

func TestDetectFirstCrossingPair(t *testing.T) {
	start := snapNow.Add(-6 * time.Hour)
	cfg := MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour}

	// 104 is only +4%, the first crossing endpoint is 109.
	moves := detect("btc-usd", series("btc-usd", start, time.Hour, 100, 104, 109), cfg)

	require.Len(t, moves, 1)
	assert.Equal(t, 100.0, moves[0].StartValue)
	assert.Equal(t, 109.0, moves[0].EndValue)
	assert.InDelta(t, 9.0, moves[0].ChangePercent, 1e-9)
	assert.Equal(t, domain.DirectionBullish, moves[0].Direction)
	assert.Equal(t, start, moves[0].WindowStart)
	assert.Equal(t, start.Add(2*time.Hour), moves[0].WindowEnd)
}

func TestDetectResumesAfterWindowEnd(t *testing.T) {
	start := snapNow.Add(-8 * time.Hour)
	cfg := MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour}

	// The second move must start from the first unconsumed snapshot, not
	// re-read the endpoint of the first move.
	moves := detect("btc-usd", series("btc-usd", start, time.Hour, 100, 109, 118, 130), cfg)

	require.Len(t, moves, 2)
	assert.Equal(t, 100.0, moves[0].StartValue)
	assert.Equal(t, 109.0, moves[0].EndValue)
	assert.Equal(t, 118.0, moves[1].StartValue)
	assert.Equal(t, 130.0, moves[1].EndValue)
}

func TestDetectBearish(t *testing.T) {
	start := snapNow.Add(-4 * time.Hour)
	cfg := MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour}

	moves := detect("btc-usd", series("btc-usd", start, time.Hour, 100, 96, 90), cfg)

	require.Len(t, moves, 1)
	assert.Equal(t, domain.DirectionBearish, moves[0].Direction)
	assert.InDelta(t, -10.0, moves[0].ChangePercent, 1e-9)
}

func TestDetectSkipsZeroStart(t *testing.T) {
	start := snapNow.Add(-4 * time.Hour)
	cfg := MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour}

	moves := detect("btc-usd", series("btc-usd", start, time.Hour, 0, 100, 109), cfg)

	require.Len(t, moves, 1)
	assert.Equal(t, 100.0, moves[0].StartValue)
}

func TestDetectRespectsMaxWindow(t *testing.T) {
	start := snapNow.Add(-20 * time.Hour)
	cfg := MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour}

	// A 20% change spread over 13 hours is outside the window.
	snaps := []domain.TargetSnapshot{
		{TargetID: "btc-usd", Value: 100, CapturedAt: start},
		{TargetID: "btc-usd", Value: 120, CapturedAt: start.Add(13 * time.Hour)},
	}
	assert.Empty(t, detect("btc-usd", snaps, cfg))
}

func TestDetectNoCrossing(t *testing.T) {
	start := snapNow.Add(-4 * time.Hour)
	cfg := MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour}

	moves := detect("btc-usd", series("btc-usd", start, time.Hour, 100, 103, 101, 105), cfg)
	assert.Empty(t, moves)
	assert.NotNil(t, moves)
}

func newTestDetector(snaps *fakeSnapshots, targets *fakeTargets, unis *fakeUniverses) *Detector {
	return NewDetector(snaps, targets, unis, DefaultMoveProfiles()).
		WithNow(func() time.Time { return snapNow })
}

func TestDetectMovesUsesDomainProfile(t *testing.T) {
	snaps := newFakeSnapshots()
	targets := newFakeTargets()
	unis := newFakeUniverses()
	unis.add("uni-crypto", domain.DomainCrypto)
	targets.add("btc-usd", "uni-crypto")
	// +5% inside the window: below the crypto threshold of 8%.
	seedSeries(snaps, "btc-usd", snapNow.Add(-3*time.Hour), time.Hour, 100, 105)
	det := newTestDetector(snaps, targets, unis)

	moves, err := det.DetectMoves(context.Background(), "btc-usd", nil)
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestDetectMovesOverrideWins(t *testing.T) {
	snaps := newFakeSnapshots()
	targets := newFakeTargets()
	unis := newFakeUniverses()
	unis.add("uni-crypto", domain.DomainCrypto)
	targets.add("btc-usd", "uni-crypto")
	seedSeries(snaps, "btc-usd", snapNow.Add(-3*time.Hour), time.Hour, 100, 105)
	det := newTestDetector(snaps, targets, unis)

	override := &MoveConfig{MinChangePercent: 3.0, MaxWindow: 12 * time.Hour, Lookback: 48 * time.Hour}
	moves, err := det.DetectMoves(context.Background(), "btc-usd", override)
	require.NoError(t, err)

	require.Len(t, moves, 1)
	assert.InDelta(t, 5.0, moves[0].ChangePercent, 1e-9)
	// An explicit config short-circuits the scope lookup entirely.
	assert.Zero(t, targets.getCalls)
}

func TestDetectMovesIgnoresHistoryBeyondLookback(t *testing.T) {
	snaps := newFakeSnapshots()
	targets := newFakeTargets()
	unis := newFakeUniverses()
	unis.add("uni-crypto", domain.DomainCrypto)
	targets.add("btc-usd", "uni-crypto")
	// A huge drop 3 days ago is outside the crypto lookback of 48h.
	seedSeries(snaps, "btc-usd", snapNow.Add(-72*time.Hour), time.Hour, 200, 100)
	seedSeries(snaps, "btc-usd", snapNow.Add(-3*time.Hour), time.Hour, 100, 101)
	det := newTestDetector(snaps, targets, unis)

	moves, err := det.DetectMoves(context.Background(), "btc-usd", nil)
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestDetectMovesInUniverseIsolatesFailures(t *testing.T) {
	snaps := newFakeSnapshots()
	targets := newFakeTargets()
	unis := newFakeUniverses()
	unis.add("uni-crypto", domain.DomainCrypto)
	targets.add("btc-usd", "uni-crypto")
	targets.add("eth-usd", "uni-crypto")
	seedSeries(snaps, "btc-usd", snapNow.Add(-3*time.Hour), time.Hour, 100, 110)
	snaps.listErr["eth-usd"] = assert.AnError
	det := newTestDetector(snaps, targets, unis)

	result, err := det.DetectMovesInUniverse(context.Background(), "uni-crypto")
	require.NoError(t, err)

	require.Len(t, result.Moves["btc-usd"], 1)
	assert.Contains(t, result.Failed, "eth-usd")
	assert.NotContains(t, result.Moves, "eth-usd")
}

func TestDetectMovesInUniverseUnknownUniverse(t *testing.T) {
	det := newTestDetector(newFakeSnapshots(), newFakeTargets(), newFakeUniverses())

	_, err := det.DetectMovesInUniverse(context.Background(), "no-such-universe")
	assert.Error(t, err)
}
