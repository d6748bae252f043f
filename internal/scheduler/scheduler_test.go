package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictalab/quorum/internal/telemetry"
)

func TestRunJobExecutesByName(t *testing.T) {
	ran := 0
	s := New(telemetry.New(),
		Job{Name: "portfolio_sweep", Interval: time.Hour, Run: func(context.Context) error { ran++; return nil }},
		Job{Name: "move_sweep", Interval: time.Hour, Run: func(context.Context) error { t.Fatal("wrong job ran"); return nil }},
	)

	res, err := s.RunJob(context.Background(), "portfolio_sweep")
	require.NoError(t, err)

	assert.Equal(t, 1, ran)
	assert.True(t, res.Success)
	assert.Equal(t, "portfolio_sweep", res.JobName)
}

func TestRunJobUnknownName(t *testing.T) {
	s := New(telemetry.New())

	_, err := s.RunJob(context.Background(), "no_such_job")
	assert.Error(t, err)
}

func TestRunJobRecordsFailure(t *testing.T) {
	s := New(telemetry.New(),
		Job{Name: "recovery_sweep", Interval: time.Hour, Run: func(context.Context) error { return assert.AnError }},
	)

	res, err := s.RunJob(context.Background(), "recovery_sweep")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)

	status := s.GetStatus()
	last, ok := status.LastResults["recovery_sweep"]
	require.True(t, ok)
	assert.False(t, last.Success)
}

func TestGetStatusCountsDisabledJobs(t *testing.T) {
	s := New(telemetry.New(),
		Job{Name: "a", Interval: time.Hour, Run: func(context.Context) error { return nil }},
		Job{Name: "b", Interval: 0, Run: func(context.Context) error { return nil }},
		Job{Name: "c", Interval: -time.Minute, Run: func(context.Context) error { return nil }},
	)

	status := s.GetStatus()
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.EnabledJobs)
	assert.Equal(t, 2, status.DisabledJobs)
}

func TestStartTicksUntilCancelled(t *testing.T) {
	ticks := make(chan struct{}, 16)
	s := New(telemetry.New(),
		Job{Name: "fast", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			ticks <- struct{}{}
			return nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ticked")
	}
	assert.True(t, s.GetStatus().Running)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.False(t, s.GetStatus().Running)
}

func TestStartWithNoEnabledJobsReturns(t *testing.T) {
	s := New(telemetry.New(),
		Job{Name: "disabled", Interval: 0, Run: func(context.Context) error { return nil }},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// With nothing to run the wait group drains immediately.
	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}
