package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sktmbtkr01/his-quasar-production/internal/engine"
	"github.com/sktmbtkr01/his-quasar-production/internal/exitcode"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

var (
	detectOpts  engine.DetectOptions
	detectSince string
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run ML and rule-based leakage detection over recent visits",
	RunE:  runDetect,
}

func init() {
	f := detectCmd.Flags()
	f.IntVar(&detectOpts.Days, "days", 0, "Days to scan (default detection.days)")
	f.StringVar(&detectSince, "since", "", "Scan from this date, e.g. 2024-05-01 (overrides --days)")
	f.BoolVar(&detectOpts.IncludeML, "ml", true, "Include isolation forest detection")
	f.BoolVar(&detectOpts.IncludeRules, "rules", true, "Include rule-based detection")
	f.BoolVar(&detectOpts.CreateAlerts, "create-alerts", true, "Persist findings as alerts")
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	if detectSince != "" {
		days, err := normalize.DaysSince(detectSince, time.Now())
		if err != nil {
			log.Error().Err(err).Msg("invalid --since")
			os.Exit(exitcode.UsageError)
		}
		detectOpts.Days = days
	}

	ctx := context.Background()
	e := openEngine(ctx)

	opts := e.DefaultDetectOptions()
	f := cmd.Flags()
	if detectOpts.Days > 0 {
		opts.Days = detectOpts.Days
	}
	if f.Changed("ml") {
		opts.IncludeML = detectOpts.IncludeML
	}
	if f.Changed("rules") {
		opts.IncludeRules = detectOpts.IncludeRules
	}
	if f.Changed("create-alerts") {
		opts.CreateAlerts = detectOpts.CreateAlerts
	}

	rep, err := e.Detect(ctx, opts)
	closeEngine(e)
	if err != nil && rep == nil {
		fail(err, "detection failed")
	}
	if perr := printJSON(rep); perr != nil {
		return fmt.Errorf("write report: %w", perr)
	}
	switch {
	case err != nil:
		fail(err, "detection failed")
	case rep.AlertsFailed > 0:
		log.Warn().Int("failed", rep.AlertsFailed).Msg("some alerts were not stored")
		os.Exit(exitcode.PartialSuccess)
	}
	return nil
}
