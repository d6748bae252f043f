package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/predictalab/quorum/internal/httpapi"
	"github.com/predictalab/quorum/internal/scheduler"
)

func serveCmd() *cobra.Command {
	var noSweeps bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background sweeps",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var sched *scheduler.Scheduler
			if !noSweeps {
				sc := a.cfg.Scheduler
				sched = scheduler.New(a.metrics,
					scheduler.Job{
						Name:     "portfolio_sweep",
						Interval: sc.PortfolioSweepInterval,
						Run:      scheduler.PortfolioSweepJob(a.portfolios, a.metrics),
					},
					scheduler.Job{
						Name:     "recovery_sweep",
						Interval: sc.RecoverySweepInterval,
						Run:      scheduler.RecoverySweepJob(a.portfolios, a.metrics),
					},
					scheduler.Job{
						Name:     "move_sweep",
						Interval: sc.MoveSweepInterval,
						Run:      scheduler.MoveSweepJob(a.detector, a.repos.Universes, a.analyzer, a.metrics),
					},
					scheduler.Job{
						Name:     "snapshot_cleanup",
						Interval: sc.SnapshotCleanupCron,
						Run:      scheduler.SnapshotCleanupJob(a.snapshots, a.repos.Universes, a.repos.Targets, a.retentionDays(), a.metrics),
					},
					scheduler.Job{
						Name:     "predictor_expiry",
						Interval: sc.PredictorExpiryCron,
						Run:      scheduler.PredictorExpiryJob(a.repos.Predictors, a.repos.Universes, a.metrics),
					},
				)
			}

			server := httpapi.NewServer(httpapi.Config{
				ListenAddr:      a.cfg.HTTP.ListenAddr,
				ReadTimeout:     a.cfg.HTTP.ReadTimeout,
				WriteTimeout:    a.cfg.HTTP.WriteTimeout,
				ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
			}, httpapi.Deps{
				Reviews:     a.reviews,
				Learnings:   a.learnings,
				Suggestions: a.queue,
				Strategies:  a.resolver,
				Portfolios:  a.portfolios,
				Snapshots:   a.snapshots,
				Detector:    a.detector,
				Health:      a.health,
				Metrics:     a.metrics,
				Scheduler:   sched,
			})

			errc := make(chan error, 2)
			if sched != nil {
				go func() {
					if err := sched.Start(ctx); err != nil && err != context.Canceled {
						errc <- err
					}
				}()
			}
			go func() {
				errc <- server.Start()
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
			case err := <-errc:
				if err != nil {
					return err
				}
			}
			return server.Shutdown(context.Background())
		},
	}
	cmd.Flags().BoolVar(&noSweeps, "no-sweeps", false, "serve the API without background sweeps")
	return cmd
}
