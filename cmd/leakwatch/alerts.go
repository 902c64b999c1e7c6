package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sktmbtkr01/his-quasar-production/internal/exitcode"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

var (
	listStatus string
	listType   string
	listLimit  int

	updStatus   string
	updReviewer string
	updNotes    string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Review leakage alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE:  runAlertsList,
}

var alertsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsGet,
}

var alertsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change the review status of an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsUpdate,
}

func init() {
	lf := alertsListCmd.Flags()
	lf.StringVar(&listStatus, "status", "", "Filter by status")
	lf.StringVar(&listType, "type", "", "Filter by anomaly type")
	lf.IntVar(&listLimit, "limit", 100, "Maximum alerts to return")

	uf := alertsUpdateCmd.Flags()
	uf.StringVar(&updStatus, "status", "", "New status: detected, under-review, resolved or false-positive (required)")
	uf.StringVar(&updReviewer, "reviewer", "", "Reviewer name")
	uf.StringVar(&updNotes, "notes", "", "Resolution notes")
	_ = alertsUpdateCmd.MarkFlagRequired("status")

	alertsCmd.AddCommand(alertsListCmd, alertsGetCmd, alertsUpdateCmd)
	rootCmd.AddCommand(alertsCmd)
}

func runAlertsList(cmd *cobra.Command, args []string) error {
	f := model.AlertFilter{Limit: listLimit}
	if listStatus != "" {
		s, ok := model.ParseAlertStatus(listStatus)
		if !ok {
			log.Error().Str("status", listStatus).Msg("unknown alert status")
			os.Exit(exitcode.UsageError)
		}
		f.Status = s
	}
	if listType != "" {
		t, ok := model.ParseIssueType(listType)
		if !ok {
			log.Error().Str("type", listType).Msg("unknown anomaly type")
			os.Exit(exitcode.UsageError)
		}
		f.Type = t
	}

	ctx := context.Background()
	e := openEngine(ctx)
	out, err := e.Alerts.Alerts(ctx, f)
	closeEngine(e)
	if err != nil {
		fail(err, "list alerts failed")
	}
	if out == nil {
		out = []model.Alert{}
	}
	return printJSON(out)
}

func runAlertsGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	a, err := e.Alerts.Alert(ctx, args[0])
	closeEngine(e)
	if err != nil {
		fail(err, "get alert failed")
	}
	return printJSON(a)
}

func runAlertsUpdate(cmd *cobra.Command, args []string) error {
	u := model.StatusUpdate{Status: model.AlertStatus(updStatus)}
	if cmd.Flags().Changed("reviewer") {
		u.ReviewedBy = &updReviewer
	}
	if cmd.Flags().Changed("notes") {
		u.Notes = &updNotes
	}

	ctx := context.Background()
	e := openEngine(ctx)
	err := e.Alerts.UpdateStatus(ctx, args[0], u)
	closeEngine(e)
	if err != nil {
		fail(err, "update alert failed")
	}
	fmt.Printf("Alert %s marked %s\n", args[0], updStatus)
	return nil
}
