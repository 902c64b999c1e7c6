package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/trainer"
)

var (
	trainForce   bool
	updateDays   int
	historyLimit int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the isolation forest on the lookback window",
	RunE:  runTrain,
}

var trainStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show model and last training run",
	RunE:  runTrainStatus,
}

var trainUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Retrain with the latest data",
	RunE:  runTrainUpdate,
}

var trainHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent training runs",
	RunE:  runTrainHistory,
}

func init() {
	trainCmd.Flags().BoolVar(&trainForce, "force", false, "Retrain even if a model is already trained")
	trainUpdateCmd.Flags().IntVar(&updateDays, "days", 7, "Days of new data (the full lookback window is refit)")
	trainHistoryCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum runs to list")
	trainCmd.AddCommand(trainStatusCmd, trainUpdateCmd, trainHistoryCmd)
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	rep, err := e.Trainer.Train(ctx, trainForce)
	closeEngine(e)
	return finishTraining(rep, err)
}

func runTrainUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	rep, err := e.Trainer.IncrementalUpdate(ctx, updateDays)
	closeEngine(e)
	return finishTraining(rep, err)
}

// finishTraining prints the report, which is present even for failed runs,
// then exits on failure.
func finishTraining(rep *model.TrainingReport, err error) error {
	if rep != nil {
		if perr := printJSON(rep); perr != nil {
			return fmt.Errorf("write report: %w", perr)
		}
	}
	if err != nil {
		var pe *trainer.PipelineError
		if errors.As(err, &pe) {
			log.Error().Str("stage", string(pe.Stage)).Msg("training stage failed")
		}
		fail(err, "training failed")
	}
	return nil
}

func runTrainStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	st := e.Trainer.Status(ctx)
	closeEngine(e)
	return printJSON(st)
}

func runTrainHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	e := openEngine(ctx)
	recs, err := e.History.Recent(ctx, historyLimit)
	closeEngine(e)
	if err != nil {
		fail(err, "read training history failed")
	}
	if recs == nil {
		recs = []model.TrainingRecord{}
	}
	return printJSON(recs)
}
