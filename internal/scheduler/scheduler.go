// Package scheduler runs the periodic maintenance sweeps: portfolio status
// evaluation, recovery checks, move detection, snapshot cleanup and
// predictor expiry. Each job ticks on its own interval; a job run never
// takes the scheduler down.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/predictalab/quorum/internal/telemetry"
)

// JobFunc is a single sweep execution.
type JobFunc func(ctx context.Context) error

// Job pairs a named sweep with its cadence. Interval <= 0 disables the job.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc
}

// Result records one job execution for the status endpoint.
type Result struct {
	JobName   string        `json:"job_name"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// Status reports the scheduler state.
type Status struct {
	Running      bool              `json:"running"`
	EnabledJobs  int               `json:"enabled_jobs"`
	DisabledJobs int               `json:"disabled_jobs"`
	Uptime       time.Duration     `json:"uptime"`
	LastResults  map[string]Result `json:"last_results"`
}

// Scheduler owns the sweep goroutines.
type Scheduler struct {
	jobs    []Job
	metrics *telemetry.Metrics

	mu        sync.Mutex
	running   bool
	startTime time.Time
	lastRuns  map[string]Result
}

// New builds a scheduler over the given jobs.
func New(metrics *telemetry.Metrics, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:     jobs,
		metrics:  metrics,
		lastRuns: make(map[string]Result),
	}
}

// Jobs returns the configured jobs.
func (s *Scheduler) Jobs() []Job {
	return s.jobs
}

// GetStatus returns the current scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	enabled, disabled := 0, 0
	for _, job := range s.jobs {
		if job.Interval > 0 {
			enabled++
		} else {
			disabled++
		}
	}

	var uptime time.Duration
	if s.running {
		uptime = time.Since(s.startTime)
	}
	results := make(map[string]Result, len(s.lastRuns))
	for name, res := range s.lastRuns {
		results[name] = res
	}
	return Status{
		Running:      s.running,
		EnabledJobs:  enabled,
		DisabledJobs: disabled,
		Uptime:       uptime,
		LastResults:  results,
	}
}

// Start runs every enabled job on its interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler starting")

	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			log.Info().Str("job", job.Name).Msg("Job disabled")
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runLoop(ctx, job)
		}(job)
	}
	wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return ctx.Err()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, job)
		}
	}
}

// RunJob executes the named job immediately, outside its cadence.
func (s *Scheduler) RunJob(ctx context.Context, name string) (Result, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.execute(ctx, job), nil
		}
	}
	return Result{}, fmt.Errorf("job not found: %s", name)
}

func (s *Scheduler) execute(ctx context.Context, job Job) Result {
	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)

	result := Result{
		JobName:   job.Name,
		StartedAt: start,
		Duration:  duration,
		Success:   err == nil,
	}
	outcome := "ok"
	if err != nil {
		result.Error = err.Error()
		outcome = "error"
		log.Error().Str("job", job.Name).Dur("duration", duration).Err(err).Msg("Sweep failed")
	} else {
		log.Info().Str("job", job.Name).Dur("duration", duration).Msg("Sweep complete")
	}
	if s.metrics != nil {
		s.metrics.SweepDuration.WithLabelValues(job.Name, outcome).Observe(duration.Seconds())
	}

	s.mu.Lock()
	s.lastRuns[job.Name] = result
	s.mu.Unlock()
	return result
}
