package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/predictalab/quorum/internal/scheduler"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep [portfolios|recoveries|moves|snapshots|predictors]",
		Short: "Run one maintenance sweep immediately and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var job scheduler.JobFunc
			switch args[0] {
			case "portfolios":
				job = scheduler.PortfolioSweepJob(a.portfolios, a.metrics)
			case "recoveries":
				job = scheduler.RecoverySweepJob(a.portfolios, a.metrics)
			case "moves":
				job = scheduler.MoveSweepJob(a.detector, a.repos.Universes, a.analyzer, a.metrics)
			case "snapshots":
				job = scheduler.SnapshotCleanupJob(a.snapshots, a.repos.Universes, a.repos.Targets, a.retentionDays(), a.metrics)
			case "predictors":
				job = scheduler.PredictorExpiryJob(a.repos.Predictors, a.repos.Universes, a.metrics)
			default:
				return fmt.Errorf("unknown sweep: %s", args[0])
			}
			return job(ctx)
		},
	}
	return cmd
}
