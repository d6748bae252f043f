package snapshot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/persistence"
)

// MoveConfig sets the sensitivity of move detection for one market domain.
type MoveConfig struct {
	// MinChangePercent is the absolute percentage change that flags a move.
	MinChangePercent float64 `yaml:"min_change_percent"`
	// MaxWindow bounds how far apart the window endpoints may be.
	MaxWindow time.Duration `yaml:"max_window"`
	// Lookback bounds how much history a single detection scan reads.
	Lookback time.Duration `yaml:"lookback"`
}

// MoveProfileConfig holds per-domain sensitivity profiles, loadable from
// yaml with hard-coded fallbacks.
type MoveProfileConfig struct {
	Default    MoveConfig `yaml:"default"`
	Crypto     MoveConfig `yaml:"crypto"`
	Stocks     MoveConfig `yaml:"stocks"`
	Elections  MoveConfig `yaml:"elections"`
	Polymarket MoveConfig `yaml:"polymarket"`
	Sports     MoveConfig `yaml:"sports"`
}

// DefaultMoveProfiles returns the built-in sensitivity table. Crypto swings
// harder than equities before a move is worth flagging; prediction-market
// probabilities move in smaller increments.
func DefaultMoveProfiles() MoveProfileConfig {
	return MoveProfileConfig{
		Default:    MoveConfig{MinChangePercent: 5.0, MaxWindow: 24 * time.Hour, Lookback: 72 * time.Hour},
		Crypto:     MoveConfig{MinChangePercent: 8.0, MaxWindow: 12 * time.Hour, Lookback: 48 * time.Hour},
		Stocks:     MoveConfig{MinChangePercent: 4.0, MaxWindow: 24 * time.Hour, Lookback: 72 * time.Hour},
		Elections:  MoveConfig{MinChangePercent: 6.0, MaxWindow: 48 * time.Hour, Lookback: 7 * 24 * time.Hour},
		Polymarket: MoveConfig{MinChangePercent: 10.0, MaxWindow: 24 * time.Hour, Lookback: 72 * time.Hour},
		Sports:     MoveConfig{MinChangePercent: 7.0, MaxWindow: 6 * time.Hour, Lookback: 24 * time.Hour},
	}
}

// LoadMoveProfiles reads profiles from a yaml file, falling back to the
// built-in table when the file is absent.
func LoadMoveProfiles(path string) (MoveProfileConfig, error) {
	cfg := DefaultMoveProfiles()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read move profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse move profiles: %w", err)
	}
	return cfg, nil
}

// ForDomain selects the profile for a universe domain.
func (c MoveProfileConfig) ForDomain(d domain.UniverseDomain) MoveConfig {
	switch d {
	case domain.DomainCrypto:
		return c.Crypto
	case domain.DomainStocks:
		return c.Stocks
	case domain.DomainElections:
		return c.Elections
	case domain.DomainPolymarket:
		return c.Polymarket
	case domain.DomainSports:
		return c.Sports
	default:
		return c.Default
	}
}

// Move is one detected significant change in a target's observed value.
type Move struct {
	TargetID      string           `json:"target_id"`
	StartValue    float64          `json:"start_value"`
	EndValue      float64          `json:"end_value"`
	ChangePercent float64          `json:"change_percent"`
	Direction     domain.Direction `json:"direction"`
	WindowStart   time.Time        `json:"window_start"`
	WindowEnd     time.Time        `json:"window_end"`
}

// UniverseMoves is the fan-out result of a universe-wide detection sweep.
// Failed targets are recorded, never allowed to abort the sweep.
type UniverseMoves struct {
	Moves  map[string][]Move `json:"moves"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Detector scans snapshot series for significant moves.
type Detector struct {
	snapshots persistence.SnapshotRepo
	targets   persistence.TargetRepo
	universes persistence.UniverseRepo
	profiles  MoveProfileConfig
	nowFn     func() time.Time
}

// NewDetector wires a move detector with the given sensitivity profiles.
func NewDetector(snapshots persistence.SnapshotRepo, targets persistence.TargetRepo, universes persistence.UniverseRepo, profiles MoveProfileConfig) *Detector {
	return &Detector{
		snapshots: snapshots,
		targets:   targets,
		universes: universes,
		profiles:  profiles,
		nowFn:     time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (d *Detector) WithNow(fn func() time.Time) *Detector {
	d.nowFn = fn
	return d
}

// DetectMoves scans the target's snapshot series for windows whose percent
// change exceeds the configured threshold within the maximum window. An
// explicit config wins over the domain default.
func (d *Detector) DetectMoves(ctx context.Context, targetID string, override *MoveConfig) ([]Move, error) {
	cfg, err := d.configFor(ctx, targetID, override)
	if err != nil {
		return nil, err
	}

	now := d.nowFn()
	snaps, err := d.snapshots.ListRange(ctx, targetID, persistence.TimeRange{
		From: now.Add(-cfg.Lookback),
		To:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return detect(targetID, snaps, cfg), nil
}

// DetectMovesInUniverse fans detection out across all active targets of a
// universe. Per-target failures are isolated into the Failed map.
func (d *Detector) DetectMovesInUniverse(ctx context.Context, universeID string) (*UniverseMoves, error) {
	uni, err := d.universes.GetByID(ctx, universeID)
	if err != nil {
		return nil, err
	}
	targets, err := d.targets.ListActiveByUniverse(ctx, universeID)
	if err != nil {
		return nil, fmt.Errorf("list universe targets: %w", err)
	}

	cfg := d.profiles.ForDomain(uni.Domain)
	result := &UniverseMoves{Moves: make(map[string][]Move), Failed: make(map[string]string)}
	for _, t := range targets {
		moves, err := d.DetectMoves(ctx, t.ID, &cfg)
		if err != nil {
			log.Warn().Str("universe_id", universeID).Str("target_id", t.ID).Err(err).
				Msg("move detection failed for target, continuing sweep")
			result.Failed[t.ID] = err.Error()
			continue
		}
		result.Moves[t.ID] = moves
	}
	return result, nil
}

func (d *Detector) configFor(ctx context.Context, targetID string, override *MoveConfig) (MoveConfig, error) {
	if override != nil {
		return *override, nil
	}
	target, err := d.targets.GetByID(ctx, targetID)
	if err != nil {
		return MoveConfig{}, err
	}
	uni, err := d.universes.GetByID(ctx, target.UniverseID)
	if err != nil {
		return MoveConfig{}, err
	}
	return d.profiles.ForDomain(uni.Domain), nil
}

// detect is the pure scan: for each snapshot it walks forward through the
// window and emits the first threshold-crossing pair, then resumes after the
// window end so overlapping windows do not double-report one move.
func detect(targetID string, snaps []domain.TargetSnapshot, cfg MoveConfig) []Move {
	moves := []Move{}
	i := 0
	for i < len(snaps) {
		start := snaps[i]
		if start.Value == 0 {
			i++
			continue
		}
		matched := false
		for j := i + 1; j < len(snaps); j++ {
			end := snaps[j]
			if end.CapturedAt.Sub(start.CapturedAt) > cfg.MaxWindow {
				break
			}
			pct := (end.Value - start.Value) / start.Value * 100
			if abs(pct) >= cfg.MinChangePercent {
				dir := domain.DirectionBullish
				if pct < 0 {
					dir = domain.DirectionBearish
				}
				moves = append(moves, Move{
					TargetID:      targetID,
					StartValue:    start.Value,
					EndValue:      end.Value,
					ChangePercent: pct,
					Direction:     dir,
					WindowStart:   start.CapturedAt,
					WindowEnd:     end.CapturedAt,
				})
				i = j + 1
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	return moves
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
