package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/artifact"
	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/iforest"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ModelType is reported in ModelInfo and stored in artifact metadata.
const ModelType = "IsolationForest"

// Model is an unsupervised anomaly scorer with a train/detect lifecycle.
type Model interface {
	Train(ctx context.Context, X model.FeatureMatrix, params model.NormalizationParams) (*model.TrainingMetrics, error)
	Detect(X model.FeatureMatrix) (labels []int, scores []float64, err error)
	Info() model.ModelInfo
}

// Options configure a Detector.
type Options struct {
	Name               string
	Forest             iforest.Params
	AnomalyThreshold   float64
	MinTrainingSamples int
}

// OptionsFromConfig maps the model and threshold sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Name: cfg.Model.Name,
		Forest: iforest.Params{
			NEstimators:   cfg.Model.NEstimators,
			MaxSamples:    cfg.Model.MaxSamples,
			MaxFeatures:   cfg.Model.MaxFeatures,
			Bootstrap:     cfg.Model.Bootstrap,
			Contamination: cfg.Model.Contamination,
			Workers:       cfg.Model.Jobs,
			Seed:          uint64(cfg.Model.RandomState),
		},
		AnomalyThreshold:   cfg.Thresholds.AnomalyScore,
		MinTrainingSamples: cfg.Data.MinTrainingSamples,
	}
}

// ArtifactName is the blob name the model is stored under.
func (o Options) ArtifactName() string { return o.Name + ".json" }

type metadata struct {
	ModelType     string    `json:"model_type"`
	NEstimators   int       `json:"n_estimators"`
	Contamination float64   `json:"contamination"`
	NSamples      int       `json:"n_samples"`
	FeatureNames  []string  `json:"feature_names"`
	TrainedAt     time.Time `json:"trained_at"`
}

// document is the persisted artifact: model and normalization as one unit.
type document struct {
	Forest              *iforest.Forest           `json:"forest"`
	NormalizationParams model.NormalizationParams `json:"normalization_params"`
	Metadata            metadata                  `json:"metadata"`
}

// Detector is the isolation forest anomaly model. It is untrained until
// Train succeeds or a stored artifact is loaded.
type Detector struct {
	mu     sync.RWMutex
	forest *iforest.Forest
	norm   model.NormalizationParams
	meta   metadata
	digest string

	store artifact.Store
	opts  Options
	log   zerolog.Logger
}

var _ Model = (*Detector)(nil)

// New creates a Detector and loads any stored artifact. A missing artifact
// leaves it untrained; so does an unreadable one, which is logged.
func New(ctx context.Context, store artifact.Store, opts Options, log zerolog.Logger) *Detector {
	d := &Detector{
		store: store,
		opts:  opts,
		log:   log.With().Str("component", "detector").Logger(),
	}
	if err := d.load(ctx); err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			d.log.Info().Str("path", store.Location(opts.ArtifactName())).Msg("no pre-trained model found")
		} else {
			d.log.Error().Err(err).Msg("load model failed; starting untrained")
		}
	}
	return d
}

func (d *Detector) load(ctx context.Context) error {
	data, err := d.store.Load(ctx, d.opts.ArtifactName())
	if err != nil {
		return err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode model artifact: %w", err)
	}
	if doc.Forest == nil || len(doc.Forest.Trees) == 0 {
		return errors.New("model artifact has no trees")
	}
	if !slices.Equal(doc.Metadata.FeatureNames, model.FeatureNames) {
		return fmt.Errorf("model artifact feature set %v does not match %v", doc.Metadata.FeatureNames, model.FeatureNames)
	}

	d.mu.Lock()
	d.forest = doc.Forest
	d.norm = doc.NormalizationParams
	d.meta = doc.Metadata
	d.digest = normalize.Digest(data)
	d.mu.Unlock()

	d.log.Info().
		Str("path", d.store.Location(d.opts.ArtifactName())).
		Time("trained_at", doc.Metadata.TrainedAt).
		Msg("loaded trained model")
	return nil
}

// IsTrained reports whether a model is available for detection.
func (d *Detector) IsTrained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.forest != nil
}

// Train fits a new forest on normalized features and persists it with
// params. A persistence failure is returned wrapped in
// model.ErrPersistenceFailure; the model stays trained in memory.
func (d *Detector) Train(ctx context.Context, X model.FeatureMatrix, params model.NormalizationParams) (*model.TrainingMetrics, error) {
	if X.Empty() {
		d.log.Error().Msg("cannot train on empty data")
		return nil, model.ErrEmptyData
	}

	var warnings []string
	if X.Rows() < d.opts.MinTrainingSamples {
		msg := fmt.Sprintf("training data has only %d samples, minimum is %d", X.Rows(), d.opts.MinTrainingSamples)
		d.log.Warn().Int("samples", X.Rows()).Int("min", d.opts.MinTrainingSamples).Msg("training below minimum sample count")
		warnings = append(warnings, msg)
	}

	d.log.Info().
		Int("samples", X.Rows()).
		Int("features", X.Cols()).
		Int("n_estimators", d.opts.Forest.NEstimators).
		Msg("training isolation forest")

	start := time.Now()
	forest, err := iforest.Fit(ctx, X, d.opts.Forest)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	labels, scores := forest.Predict(X)
	metrics := trainingMetrics(X, labels, scores, forest.Offset)
	metrics.Warnings = warnings

	meta := metadata{
		ModelType:     ModelType,
		NEstimators:   len(forest.Trees),
		Contamination: forest.Contamination,
		NSamples:      X.Rows(),
		FeatureNames:  slices.Clone(model.FeatureNames),
		TrainedAt:     time.Now().UTC(),
	}

	d.mu.Lock()
	d.forest = forest
	if !params.Empty() {
		d.norm = params
	}
	d.meta = meta
	d.digest = ""
	norm := d.norm
	d.mu.Unlock()

	d.log.Info().
		Float64("anomaly_rate", metrics.AnomalyRate).
		Dur("elapsed", time.Since(start)).
		Msg("training complete")

	if err := d.persist(ctx, document{Forest: forest, NormalizationParams: norm, Metadata: meta}); err != nil {
		return metrics, err
	}
	return metrics, nil
}

func (d *Detector) persist(ctx context.Context, doc document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode model: %w", model.ErrPersistenceFailure, err)
	}
	name := d.opts.ArtifactName()
	if err := d.store.Save(ctx, name, data); err != nil {
		d.log.Error().Err(err).Str("path", d.store.Location(name)).Msg("save model failed")
		return fmt.Errorf("%w: save model: %w", model.ErrPersistenceFailure, err)
	}

	d.mu.Lock()
	d.digest = normalize.Digest(data)
	d.mu.Unlock()

	d.log.Info().Str("path", d.store.Location(name)).Int("bytes", len(data)).Msg("saved model")
	return nil
}

func trainingMetrics(X model.FeatureMatrix, labels []int, scores []float64, offset float64) *model.TrainingMetrics {
	var n int
	for _, l := range labels {
		if l == -1 {
			n++
		}
	}
	mean, std := meanStd(scores)
	return &model.TrainingMetrics{
		NSamples:           X.Rows(),
		NFeatures:          X.Cols(),
		NAnomaliesDetected: n,
		AnomalyRate:        float64(n) / float64(len(labels)),
		ScoreMean:          mean,
		ScoreStd:           std,
		ScoreMin:           slices.Min(scores),
		ScoreMax:           slices.Max(scores),
		Offset:             offset,
	}
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

// Detect labels each row -1 (anomaly) or +1 (normal) and returns its score.
// Lower scores are more anomalous.
func (d *Detector) Detect(X model.FeatureMatrix) ([]int, []float64, error) {
	d.mu.RLock()
	forest := d.forest
	d.mu.RUnlock()

	if forest == nil {
		d.log.Error().Msg("model not trained")
		return nil, nil, model.ErrModelNotTrained
	}
	if X.Empty() {
		return []int{}, []float64{}, nil
	}
	if X.Cols() != forest.NFeatures {
		return nil, nil, fmt.Errorf("detect: got %d features, model expects %d", X.Cols(), forest.NFeatures)
	}

	labels, scores := forest.Predict(X)
	var n int
	for _, l := range labels {
		if l == -1 {
			n++
		}
	}
	d.log.Info().Int("anomalies", n).Int("samples", len(labels)).Msg("detection complete")
	return labels, scores, nil
}

// PredictSingle scores one feature vector.
func (d *Detector) PredictSingle(vector []float64) (model.SinglePrediction, error) {
	labels, scores, err := d.Detect(model.FeatureMatrix{vector})
	if err != nil {
		return model.SinglePrediction{}, err
	}
	return model.SinglePrediction{
		IsAnomaly:    labels[0] == -1,
		AnomalyScore: scores[0],
		Threshold:    d.opts.AnomalyThreshold,
		Confidence:   Confidence(scores[0], d.opts.AnomalyThreshold),
	}, nil
}

// Confidence maps a score to [0, 1]. Non-negative scores scale against 0.5,
// negative scores against |threshold|.
func Confidence(score, threshold float64) float64 {
	if score >= 0 {
		return math.Min(1, score/0.5)
	}
	if threshold == 0 {
		return 1
	}
	return math.Min(1, math.Abs(score)/math.Abs(threshold))
}

// AnomalyDetails joins detection results back to visits and returns one
// record per anomalous row, most anomalous first.
func (d *Detector) AnomalyDetails(X model.FeatureMatrix, visits []model.VisitFeatureRecord) ([]model.AnomalyRecord, error) {
	if X.Empty() || len(visits) == 0 {
		return []model.AnomalyRecord{}, nil
	}
	if len(visits) != X.Rows() {
		return nil, fmt.Errorf("anomaly details: %d visits for %d feature rows", len(visits), X.Rows())
	}
	labels, scores, err := d.Detect(X)
	if err != nil {
		return nil, err
	}

	out := make([]model.AnomalyRecord, 0)
	for i, l := range labels {
		if l != -1 {
			continue
		}
		v := &visits[i]
		out = append(out, model.AnomalyRecord{
			Index:        i,
			VisitID:      v.VisitID,
			PatientID:    v.PatientID,
			BillID:       v.BillID,
			VisitType:    v.VisitType,
			AnomalyScore: scores[i],
			Confidence:   Confidence(scores[i], d.opts.AnomalyThreshold),
			Features:     v.Snapshot(),
		})
	}
	slices.SortStableFunc(out, func(a, b model.AnomalyRecord) int {
		switch {
		case a.AnomalyScore < b.AnomalyScore:
			return -1
		case a.AnomalyScore > b.AnomalyScore:
			return 1
		}
		return 0
	})
	return out, nil
}

// NormalizationParams returns the params stored with the model.
func (d *Detector) NormalizationParams() model.NormalizationParams {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.norm
}

// Info describes the current model.
func (d *Detector) Info() model.ModelInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.forest == nil {
		return model.ModelInfo{IsTrained: false, Message: "No model trained"}
	}
	trainedAt := d.meta.TrainedAt
	return model.ModelInfo{
		IsTrained:              true,
		ModelType:              ModelType,
		NEstimators:            len(d.forest.Trees),
		Contamination:          d.forest.Contamination,
		HasNormalizationParams: !d.norm.Empty(),
		ArtifactLocation:       d.store.Location(d.opts.ArtifactName()),
		ArtifactDigest:         d.digest,
		TrainedAt:              &trainedAt,
	}
}
