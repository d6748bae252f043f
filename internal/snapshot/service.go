// Package snapshot captures per-target value observations and detects
// statistically significant moves over the snapshot series.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/domain"
	"github.com/predictalab/quorum/internal/errs"
	"github.com/predictalab/quorum/internal/persistence"
)

// Change summarizes the value delta between two points in time.
type Change struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Absolute float64 `json:"abs"`
	Percent  float64 `json:"pct"`
}

// Service owns snapshot capture, read/derive queries and retention.
type Service struct {
	snapshots persistence.SnapshotRepo
	targets   persistence.TargetRepo
	universes persistence.UniverseRepo
	nowFn     func() time.Time
}

// NewService wires the snapshot service.
func NewService(snapshots persistence.SnapshotRepo, targets persistence.TargetRepo, universes persistence.UniverseRepo) *Service {
	return &Service{
		snapshots: snapshots,
		targets:   targets,
		universes: universes,
		nowFn:     time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	s.nowFn = fn
	return s
}

// CaptureSnapshot appends one immutable observation row. Rows are never
// merged or rewritten.
func (s *Service) CaptureSnapshot(ctx context.Context, targetID string, value float64, valueType, source string, metadata map[string]string) (*domain.TargetSnapshot, error) {
	if valueType == "" {
		valueType = "price"
	}
	snap := domain.TargetSnapshot{
		ID:         uuid.NewString(),
		TargetID:   targetID,
		Value:      value,
		ValueType:  valueType,
		Source:     source,
		Metadata:   metadata,
		CapturedAt: s.nowFn(),
	}
	if err := s.snapshots.Insert(ctx, snap); err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return &snap, nil
}

// GetLatestValue returns the most recent observed value for a target.
func (s *Service) GetLatestValue(ctx context.Context, targetID string) (*domain.TargetSnapshot, error) {
	return s.snapshots.Latest(ctx, targetID)
}

// GetValueAtTime returns the newest observation at or before ts.
func (s *Service) GetValueAtTime(ctx context.Context, targetID string, ts time.Time) (*domain.TargetSnapshot, error) {
	return s.snapshots.AtOrBefore(ctx, targetID, ts)
}

// CalculateChange derives the value change between two instants using the
// nearest observation at or before each endpoint.
func (s *Service) CalculateChange(ctx context.Context, targetID string, from, to time.Time) (*Change, error) {
	start, err := s.snapshots.AtOrBefore(ctx, targetID, from)
	if err != nil {
		return nil, err
	}
	end, err := s.snapshots.AtOrBefore(ctx, targetID, to)
	if err != nil {
		return nil, err
	}
	if start.Value == 0 {
		return nil, errs.Validation("snapshot", "start value is zero, percent change undefined")
	}
	abs := end.Value - start.Value
	return &Change{
		Start:    start.Value,
		End:      end.Value,
		Absolute: abs,
		Percent:  abs / start.Value * 100,
	}, nil
}

// CleanupOldSnapshots deletes rows older than retentionDays and returns the
// count removed. The cutoff is computed once from a single clock read, so a
// skewed re-read cannot widen the deletion window.
func (s *Service) CleanupOldSnapshots(ctx context.Context, targetID string, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, errs.Validation("snapshot", "retentionDays must be positive")
	}
	cutoff := s.nowFn().AddDate(0, 0, -retentionDays)
	removed, err := s.snapshots.DeleteOlderThan(ctx, targetID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	log.Info().Str("target_id", targetID).Int64("removed", removed).
		Time("cutoff", cutoff).Msg("snapshot retention cleanup")
	return removed, nil
}
