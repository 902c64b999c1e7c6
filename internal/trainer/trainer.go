// Package trainer runs the model training pipeline:
// fetch → validate → normalize → fit → post-validate → persist.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/sktmbtkr01/his-quasar-production/internal/artifact"
	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/detector"
	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/metrics"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/parquetio"
)

// Stage names a step of the training pipeline.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageFetching       Stage = "fetching"
	StageValidating     Stage = "validating"
	StageNormalizing    Stage = "normalizing"
	StageFitting        Stage = "fitting"
	StagePostValidating Stage = "post-validating"
	StagePersisted      Stage = "persisted"
)

// PipelineError wraps an error with the stage where it occurred.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// DataSource supplies raw training features.
type DataSource interface {
	TrainingData(ctx context.Context) (*features.Dataset, error)
}

// Model is the detector surface the trainer drives.
type Model interface {
	detector.Model
	IsTrained() bool
}

// History records completed training runs.
type History interface {
	Append(ctx context.Context, r model.TrainingRecord) error
	Last(ctx context.Context) (*model.TrainingRecord, error)
}

// Options configure a Trainer.
type Options struct {
	ModelName          string
	ArtifactName       string
	NEstimators        int
	Contamination      float64
	LookbackDays       int
	MinTrainingSamples int
	MaxRateDeviation   float64
	// SnapshotDir receives a Parquet copy of each training set; empty disables it.
	SnapshotDir string
}

// OptionsFromConfig maps cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ModelName:          cfg.Model.Name,
		ArtifactName:       detector.OptionsFromConfig(cfg).ArtifactName(),
		NEstimators:        cfg.Model.NEstimators,
		Contamination:      cfg.Model.Contamination,
		LookbackDays:       cfg.Data.LookbackDays,
		MinTrainingSamples: cfg.Data.MinTrainingSamples,
		MaxRateDeviation:   cfg.Training.MaxRateDeviation,
		SnapshotDir:        cfg.Training.SnapshotDir,
	}
}

// Trainer owns the training pipeline for one model.
type Trainer struct {
	data    DataSource
	model   Model
	store   artifact.Store
	history History
	opts    Options
	metrics *metrics.Metrics
	log     zerolog.Logger

	flight singleflight.Group
	now    func() time.Time
	newID  func() string
}

// New creates a Trainer. history may be nil.
func New(data DataSource, m Model, store artifact.Store, history History, opts Options, mtr *metrics.Metrics, log zerolog.Logger) *Trainer {
	return &Trainer{
		data:    data,
		model:   m,
		store:   store,
		history: history,
		opts:    opts,
		metrics: mtr,
		log:     log.With().Str("component", "trainer").Logger(),
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// Train runs the pipeline unless a model is already trained and force is
// false. Concurrent calls with the same force flag share one run. A report
// is returned even on failure; the error is a *PipelineError naming the
// failed stage.
func (t *Trainer) Train(ctx context.Context, force bool) (*model.TrainingReport, error) {
	key := t.opts.ModelName + ":" + strconv.FormatBool(force)
	v, err, shared := t.flight.Do(key, func() (any, error) {
		return t.run(ctx, force)
	})
	if shared {
		t.log.Debug().Msg("joined in-flight training run")
	}
	rep, _ := v.(*model.TrainingReport)
	return rep, err
}

// IncrementalUpdate retrains on the full lookback window. Isolation forests
// cannot absorb new data incrementally, so days only scopes the log line.
func (t *Trainer) IncrementalUpdate(ctx context.Context, days int) (*model.TrainingReport, error) {
	t.log.Info().Int("new_data_days", days).Msg("incremental update requested; retraining on full window")
	return t.Train(ctx, true)
}

func (t *Trainer) run(ctx context.Context, force bool) (*model.TrainingReport, error) {
	start := t.now()
	rep := &model.TrainingReport{RunID: t.newID(), Stage: string(StageIdle)}

	if t.model.IsTrained() && !force {
		t.log.Info().Msg("model already trained; use force to retrain")
		rep.Success = true
		rep.Message = "Model already trained"
		rep.ModelInfo = t.model.Info()
		return rep, nil
	}

	fail := func(stage Stage, err error) (*model.TrainingReport, error) {
		rep.Stage = string(stage)
		rep.Error = err.Error()
		rep.ErrorCode = model.ErrorCode(err)
		if rep.Message == "" {
			rep.Message = "Training failed"
		}
		rep.Duration = t.now().Sub(start)
		rep.ModelInfo = t.model.Info()
		t.metrics.TrainingRuns.WithLabelValues("failed").Inc()
		t.log.Error().Err(err).Str("stage", string(stage)).Msg("training pipeline failed")
		return rep, &PipelineError{Stage: stage, Err: err}
	}

	t.log.Info().Str("run_id", rep.RunID).Bool("force", force).Msg("starting training pipeline")

	rep.Stage = string(StageFetching)
	ds, err := t.data.TrainingData(ctx)
	if err != nil {
		return fail(StageFetching, err)
	}
	if ds.Empty() {
		rep.Message = "Please ensure there is billing data in the database"
		return fail(StageFetching, fmt.Errorf("no training data available: %w", model.ErrEmptyData))
	}

	rep.Stage = string(StageValidating)
	dv := ValidateData(ds.Features, t.opts.MinTrainingSamples)
	rep.DataValidation = &dv
	if !dv.Valid {
		return fail(StageValidating, fmt.Errorf("%w: %s", model.ErrInsufficientData, dv.Error))
	}
	if len(dv.Issues) > 0 {
		t.log.Warn().Strs("issues", dv.Issues).Msg("data validation issues")
	}

	rep.Stage = string(StageNormalizing)
	X, params := features.NormalizeFeatures(ds.Features)

	rep.Stage = string(StageFitting)
	tm, err := t.model.Train(ctx, X, params)
	if err != nil {
		rep.Metrics = tm
		if errors.Is(err, model.ErrPersistenceFailure) {
			rep.Message = "Model trained but could not be saved"
			return fail(StagePersisted, err)
		}
		return fail(StageFitting, err)
	}
	rep.Metrics = tm

	rep.Stage = string(StagePostValidating)
	mv := t.validateModel(X)
	rep.Validation = &mv
	if mv.Valid && !mv.WithinTolerance {
		w := fmt.Sprintf("%s: anomaly rate %.4f deviates %.0f%% from expected %.4f",
			model.ErrValidationFailure, mv.AnomalyRate, mv.RateDeviation*100, mv.ExpectedRate)
		tm.Warnings = append(tm.Warnings, w)
		t.log.Warn().
			Float64("anomaly_rate", mv.AnomalyRate).
			Float64("expected_rate", mv.ExpectedRate).
			Msg("model anomaly rate outside tolerance")
	}

	rep.Stage = string(StagePersisted)
	rep.Duration = t.now().Sub(start)
	t.record(ctx, rep, start, ds)
	if t.opts.SnapshotDir != "" {
		path := filepath.Join(t.opts.SnapshotDir, "training-"+rep.RunID+".parquet")
		if err := parquetio.WriteFeatures(path, ds.Visits); err != nil {
			t.log.Warn().Err(err).Str("path", path).Msg("training snapshot failed")
		} else {
			rep.SnapshotPath = path
		}
	}

	rep.Success = true
	rep.Retrained = true
	rep.Message = "Model trained successfully"
	rep.ModelInfo = t.model.Info()
	rep.DataSummary = &model.DataSummary{
		NSamples:  ds.Features.Rows(),
		NFeatures: ds.Features.Cols(),
		DateRange: dateRange(ds.Visits),
	}

	t.metrics.TrainingRuns.WithLabelValues("success").Inc()
	t.metrics.TrainingDuration.Observe(rep.Duration.Seconds())
	t.metrics.TrainingSamples.Set(float64(ds.Features.Rows()))
	t.metrics.ModelAnomalyRate.Set(tm.AnomalyRate)

	t.log.Info().
		Str("run_id", rep.RunID).
		Int("samples", ds.Features.Rows()).
		Dur("elapsed", rep.Duration).
		Msg("training complete")
	return rep, nil
}

// record appends the run to history; failures are logged only.
func (t *Trainer) record(ctx context.Context, rep *model.TrainingReport, start time.Time, ds *features.Dataset) {
	if t.history == nil {
		return
	}
	r := model.TrainingRecord{
		RunID:      rep.RunID,
		Timestamp:  start.UTC(),
		Duration:   rep.Duration,
		NSamples:   ds.Features.Rows(),
		NFeatures:  ds.Features.Cols(),
		Metrics:    *rep.Metrics,
		Validation: rep.Validation,
	}
	if err := t.history.Append(ctx, r); err != nil {
		t.log.Error().Err(err).Msg("save training history failed")
	}
}

// Status reports the trained flag, artifact location and the last run.
func (t *Trainer) Status(ctx context.Context) model.TrainingStatus {
	st := model.TrainingStatus{
		ModelTrained:  t.model.IsTrained(),
		ModelPath:     t.store.Location(t.opts.ArtifactName),
		ModelInfo:     t.model.Info(),
		NEstimators:   t.opts.NEstimators,
		Contamination: t.opts.Contamination,
		LookbackDays:  t.opts.LookbackDays,
	}
	exists, err := t.store.Exists(ctx, t.opts.ArtifactName)
	if err != nil {
		t.log.Warn().Err(err).Msg("check model artifact failed")
	}
	st.ModelExists = exists
	if t.history != nil {
		last, err := t.history.Last(ctx)
		if err != nil {
			t.log.Warn().Err(err).Msg("read training history failed")
		}
		st.LastTraining = last
	}
	return st
}

func dateRange(visits []model.VisitFeatureRecord) model.DateRange {
	var dr model.DateRange
	for i := range visits {
		d := visits[i].BillDate
		if d == nil {
			continue
		}
		if dr.Start == nil || d.Before(*dr.Start) {
			dr.Start = d
		}
		if dr.End == nil || d.After(*dr.End) {
			dr.End = d
		}
	}
	return dr
}
