package main

import (
	"context"

	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show alert statistics and model info",
	RunE:  runDashboard,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity and model state",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(dashboardCmd, healthCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	stats, err := e.Dashboard(ctx)
	closeEngine(e)
	if err != nil {
		fail(err, "dashboard failed")
	}
	return printJSON(stats)
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	h := e.Health(ctx)
	closeEngine(e)
	return printJSON(h)
}
