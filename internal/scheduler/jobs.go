package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/judgment"
	"github.com/predictalab/quorum/internal/motivation"
	"github.com/predictalab/quorum/internal/persistence"
	"github.com/predictalab/quorum/internal/snapshot"
	"github.com/predictalab/quorum/internal/telemetry"
)

// PortfolioSweepJob re-evaluates every AI analyst's portfolio status.
func PortfolioSweepJob(svc *motivation.Service, metrics *telemetry.Metrics) JobFunc {
	return func(ctx context.Context) error {
		transitions, err := svc.EvaluateAllAiPortfolios(ctx)
		if err != nil {
			return err
		}
		for _, tr := range transitions {
			metrics.PortfolioTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
		}
		log.Info().Int("transitions", len(transitions)).Msg("Portfolio sweep applied transitions")
		return nil
	}
}

// RecoverySweepJob promotes eligible suspended analysts back to probation.
func RecoverySweepJob(svc *motivation.Service, metrics *telemetry.Metrics) JobFunc {
	return func(ctx context.Context) error {
		transitions, err := svc.ProcessAllRecoveries(ctx)
		if err != nil {
			return err
		}
		for _, tr := range transitions {
			metrics.PortfolioTransitions.WithLabelValues(string(tr.From), string(tr.To)).Inc()
		}
		log.Info().Int("recoveries", len(transitions)).Msg("Recovery sweep complete")
		return nil
	}
}

// MoveSweepJob detects significant moves across every universe and, when an
// analyzer is wired, asks it to explain misses. A universe that fails is
// skipped, not fatal.
func MoveSweepJob(
	detector *snapshot.Detector,
	universes persistence.UniverseRepo,
	analyzer *judgment.Analyzer,
	metrics *telemetry.Metrics,
) JobFunc {
	return func(ctx context.Context) error {
		unis, err := universes.List(ctx)
		if err != nil {
			return fmt.Errorf("list universes: %w", err)
		}

		for _, uni := range unis {
			result, err := detector.DetectMovesInUniverse(ctx, uni.ID)
			if err != nil {
				log.Warn().Str("universe_id", uni.ID).Err(err).Msg("move sweep failed for universe, continuing")
				metrics.SweepFailures.WithLabelValues("move_sweep").Inc()
				continue
			}
			var flat []snapshot.Move
			for _, moves := range result.Moves {
				flat = append(flat, moves...)
			}
			metrics.MovesDetected.WithLabelValues(string(uni.Domain)).Add(float64(len(flat)))
			for range result.Failed {
				metrics.SweepFailures.WithLabelValues("move_sweep").Inc()
			}
			if analyzer == nil || len(flat) == 0 {
				continue
			}
			if _, err := analyzer.AnalyzeMissedMoves(ctx, flat); err != nil {
				log.Warn().Str("universe_id", uni.ID).Err(err).Msg("missed-move analysis failed, continuing")
				metrics.SweepFailures.WithLabelValues("move_sweep").Inc()
			}
		}
		return nil
	}
}

// SnapshotCleanupJob enforces snapshot retention per target. A failing
// target does not stop the sweep.
func SnapshotCleanupJob(
	svc *snapshot.Service,
	universes persistence.UniverseRepo,
	targets persistence.TargetRepo,
	retentionDays int,
	metrics *telemetry.Metrics,
) JobFunc {
	return func(ctx context.Context) error {
		unis, err := universes.List(ctx)
		if err != nil {
			return fmt.Errorf("list universes: %w", err)
		}

		var removed int64
		for _, uni := range unis {
			ts, err := targets.ListActiveByUniverse(ctx, uni.ID)
			if err != nil {
				log.Warn().Str("universe_id", uni.ID).Err(err).Msg("snapshot cleanup skipped universe")
				metrics.SweepFailures.WithLabelValues("snapshot_cleanup").Inc()
				continue
			}
			for _, t := range ts {
				n, err := svc.CleanupOldSnapshots(ctx, t.ID, retentionDays)
				if err != nil {
					log.Warn().Str("target_id", t.ID).Err(err).Msg("snapshot cleanup failed for target, continuing")
					metrics.SweepFailures.WithLabelValues("snapshot_cleanup").Inc()
					continue
				}
				removed += n
			}
		}
		log.Info().Int64("removed", removed).Msg("Snapshot cleanup sweep complete")
		return nil
	}
}

// PredictorExpiryJob transitions past-TTL predictors to expired, one
// universe at a time.
func PredictorExpiryJob(
	predictors persistence.PredictorRepo,
	universes persistence.UniverseRepo,
	metrics *telemetry.Metrics,
) JobFunc {
	return func(ctx context.Context) error {
		unis, err := universes.List(ctx)
		if err != nil {
			return fmt.Errorf("list universes: %w", err)
		}

		var expired int64
		for _, uni := range unis {
			n, err := predictors.ExpireStale(ctx, uni.ID, time.Now())
			if err != nil {
				log.Warn().Str("universe_id", uni.ID).Err(err).Msg("predictor expiry failed for universe, continuing")
				metrics.SweepFailures.WithLabelValues("predictor_expiry").Inc()
				continue
			}
			expired += n
		}
		log.Info().Int64("expired", expired).Msg("Predictor expiry sweep complete")
		return nil
	}
}
