package main

import (
	"context"

	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the quorum CLI.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "quorum",
		Short: "Adaptive analyst-ensemble service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults apply when empty)")

	root.AddCommand(serveCmd())
	root.AddCommand(sweepCmd())
	return root.ExecuteContext(ctx)
}
