package trainer

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/artifact"
	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/detector"
	"github.com/sktmbtkr01/his-quasar-production/internal/features"
	"github.com/sktmbtkr01/his-quasar-production/internal/history"
	"github.com/sktmbtkr01/his-quasar-production/internal/metrics"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

type fakeData struct {
	ds    *features.Dataset
	err   error
	calls atomic.Int32
}

func (f *fakeData) TrainingData(context.Context) (*features.Dataset, error) {
	f.calls.Add(1)
	if f.err != nil {
		return &features.Dataset{}, f.err
	}
	return f.ds, nil
}

func dataset(n int) *features.Dataset {
	rng := rand.New(rand.NewPCG(7, 7))
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	visits := make([]model.VisitFeatureRecord, n)
	for i := range visits {
		d := base.Add(time.Duration(i) * time.Hour)
		visits[i] = model.VisitFeatureRecord{
			VisitID:                "V" + string(rune('a'+i%26)),
			VisitType:              "opd",
			BillDate:               &d,
			TotalServices:          float64(1 + rng.IntN(5)),
			TotalBilledAmount:      500 + rng.Float64()*1000,
			TotalExpectedAmount:    500 + rng.Float64()*1000,
			BillingDelayHours:      rng.Float64() * 24,
			PriceVarianceRatio:     rng.Float64() * 0.1,
			PaymentCompletionRatio: rng.Float64(),
			DiscountRatio:          rng.Float64() * 0.05,
			VisitDurationHours:     rng.Float64() * 5,
			ItemsPerVisit:          float64(1 + rng.IntN(5)),
		}
	}
	return &features.Dataset{Features: features.ExtractFeatures(visits), Visits: visits}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Model.NEstimators = 40
	cfg.Data.MinTrainingSamples = 100
	cfg.Artifacts.Dir = t.TempDir()
	cfg.Training.SnapshotDir = filepath.Join(t.TempDir(), "snapshots")
	return cfg
}

func newTrainer(t *testing.T, cfg *config.Config, data DataSource) (*Trainer, *history.Store) {
	t.Helper()
	ctx := context.Background()
	store := artifact.NewFileStore(cfg.Artifacts.Dir)
	det := detector.New(ctx, store, detector.OptionsFromConfig(cfg), zerolog.Nop())
	h, err := history.Open(":memory:", cfg.Training.HistoryLimit)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	return New(data, det, store, h, OptionsFromConfig(cfg), metrics.New(), zerolog.Nop()), h
}

func TestTrain_FullPipeline(t *testing.T) {
	cfg := testConfig(t)
	tr, h := newTrainer(t, cfg, &fakeData{ds: dataset(300)})
	ctx := context.Background()

	rep, err := tr.Train(ctx, false)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !rep.Success || !rep.Retrained || rep.Stage != string(StagePersisted) {
		t.Errorf("report = %+v", rep)
	}
	if rep.Metrics == nil || rep.Metrics.NSamples != 300 {
		t.Errorf("metrics = %+v", rep.Metrics)
	}
	if rep.Validation == nil || !rep.Validation.Valid || rep.Validation.NAnomalies+rep.Validation.NNormal != 300 {
		t.Errorf("validation = %+v", rep.Validation)
	}
	if rep.DataSummary == nil || rep.DataSummary.DateRange.Start == nil || rep.DataSummary.NFeatures != len(model.FeatureNames) {
		t.Errorf("data summary = %+v", rep.DataSummary)
	}
	if _, err := os.Stat(rep.SnapshotPath); err != nil {
		t.Errorf("snapshot missing: %v", err)
	}
	if !rep.ModelInfo.IsTrained {
		t.Error("model info should report trained")
	}

	last, err := h.Last(ctx)
	if err != nil || last == nil || last.RunID != rep.RunID {
		t.Errorf("history last = %+v, %v", last, err)
	}

	st := tr.Status(ctx)
	if !st.ModelTrained || !st.ModelExists || st.LastTraining == nil || st.NEstimators != 40 {
		t.Errorf("status = %+v", st)
	}
}

func TestTrain_IdempotentUnlessForced(t *testing.T) {
	cfg := testConfig(t)
	data := &fakeData{ds: dataset(200)}
	tr, _ := newTrainer(t, cfg, data)
	ctx := context.Background()

	if _, err := tr.Train(ctx, false); err != nil {
		t.Fatal(err)
	}
	rep, err := tr.Train(ctx, false)
	if err != nil {
		t.Fatalf("second Train: %v", err)
	}
	if !rep.Success || rep.Retrained {
		t.Errorf("already trained run = %+v", rep)
	}
	if data.calls.Load() != 1 {
		t.Errorf("data fetched %d times, want 1", data.calls.Load())
	}

	rep, err = tr.IncrementalUpdate(ctx, 7)
	if err != nil || !rep.Retrained {
		t.Errorf("incremental update = %+v, %v", rep, err)
	}
	if data.calls.Load() != 2 {
		t.Errorf("incremental update should refetch")
	}
}

func TestTrain_Failures(t *testing.T) {
	tests := []struct {
		name      string
		data      *fakeData
		wantStage Stage
		wantErr   error
	}{
		{"source down", &fakeData{err: model.ErrSourceUnavailable}, StageFetching, model.ErrSourceUnavailable},
		{"no data", &fakeData{ds: &features.Dataset{}}, StageFetching, model.ErrInsufficientData},
		{"too few samples", &fakeData{ds: dataset(20)}, StageValidating, model.ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTrainer(t, testConfig(t), tt.data)
			rep, err := tr.Train(context.Background(), true)
			var pe *PipelineError
			if !errors.As(err, &pe) || pe.Stage != tt.wantStage {
				t.Fatalf("err = %v, want stage %s", err, tt.wantStage)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if rep == nil || rep.Success || rep.Error == "" || rep.ErrorCode == "" {
				t.Errorf("report = %+v", rep)
			}
		})
	}
}

type slowModel struct {
	trained atomic.Bool
	fits    atomic.Int32
	release chan struct{}
}

func (m *slowModel) Train(_ context.Context, X model.FeatureMatrix, _ model.NormalizationParams) (*model.TrainingMetrics, error) {
	m.fits.Add(1)
	<-m.release
	m.trained.Store(true)
	return &model.TrainingMetrics{NSamples: X.Rows()}, nil
}

func (m *slowModel) Detect(X model.FeatureMatrix) ([]int, []float64, error) {
	labels := make([]int, X.Rows())
	scores := make([]float64, X.Rows())
	for i := range labels {
		labels[i] = 1
		if i%10 == 0 {
			labels[i] = -1
		}
	}
	return labels, scores, nil
}

func (m *slowModel) Info() model.ModelInfo { return model.ModelInfo{IsTrained: m.trained.Load()} }
func (m *slowModel) IsTrained() bool       { return m.trained.Load() }

func TestTrain_SingleFlight(t *testing.T) {
	cfg := testConfig(t)
	m := &slowModel{release: make(chan struct{})}
	store := artifact.NewFileStore(cfg.Artifacts.Dir)
	opts := OptionsFromConfig(cfg)
	opts.SnapshotDir = ""
	tr := New(&fakeData{ds: dataset(150)}, m, store, nil, opts, metrics.New(), zerolog.Nop())

	var wg sync.WaitGroup
	reports := make([]*model.TrainingReport, 4)
	for i := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], _ = tr.Train(context.Background(), true)
		}()
	}
	for m.fits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(m.release)
	wg.Wait()

	if got := m.fits.Load(); got > 2 {
		t.Errorf("fits = %d; concurrent calls should share a run", got)
	}
	for i, r := range reports {
		if r == nil || !r.Success {
			t.Errorf("report %d = %+v", i, r)
		}
	}
}

func TestValidateData(t *testing.T) {
	X := dataset(120).Features
	v := ValidateData(X, 100)
	if !v.Valid || v.Stats.NSamples != 120 || v.Stats.NFeatures != len(model.FeatureNames) {
		t.Errorf("validation = %+v", v)
	}
	// unbilled_items_count is always zero in the fixture
	if len(v.Issues) != 1 {
		t.Errorf("issues = %v, want one zero-variance issue", v.Issues)
	}

	short := ValidateData(X[:10], 100)
	if short.Valid || short.Error == "" {
		t.Errorf("short data should be invalid: %+v", short)
	}
}

func TestModelValidation(t *testing.T) {
	labels := []int{-1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	scores := []float64{-0.7, -0.4, -0.4, -0.4, -0.4, -0.4, -0.4, -0.4, -0.4, -0.1}
	mv := modelValidation(labels, scores, 0.1, 0.5)
	if mv.NAnomalies != 1 || mv.NNormal != 9 || mv.AnomalyRate != 0.1 || !mv.WithinTolerance {
		t.Errorf("mv = %+v", mv)
	}
	if mv.ScoreDistribution.Min != -0.7 || mv.ScoreDistribution.Max != -0.1 || mv.ScoreDistribution.Median != -0.4 {
		t.Errorf("distribution = %+v", mv.ScoreDistribution)
	}

	skewed := modelValidation([]int{-1, -1, 1, 1}, []float64{0, 0, 0, 0}, 0.1, 0.5)
	if skewed.WithinTolerance || math.Abs(skewed.RateDeviation-4) > 1e-9 {
		t.Errorf("skewed = %+v", skewed)
	}
}

func TestTrain_ForcedRunNotFoldedIntoPlainRun(t *testing.T) {
	cfg := testConfig(t)
	m := &slowModel{release: make(chan struct{})}
	store := artifact.NewFileStore(cfg.Artifacts.Dir)
	opts := OptionsFromConfig(cfg)
	opts.SnapshotDir = ""
	tr := New(&fakeData{ds: dataset(150)}, m, store, nil, opts, metrics.New(), zerolog.Nop())

	var wg sync.WaitGroup
	var plain, forced *model.TrainingReport
	wg.Add(2)
	go func() {
		defer wg.Done()
		plain, _ = tr.Train(context.Background(), false)
	}()
	for m.fits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	go func() {
		defer wg.Done()
		forced, _ = tr.Train(context.Background(), true)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.fits.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(m.release)
	wg.Wait()

	if got := m.fits.Load(); got != 2 {
		t.Errorf("fits = %d; a forced run must not join a plain run", got)
	}
	if plain == nil || forced == nil || !forced.Retrained {
		t.Errorf("reports = %+v / %+v", plain, forced)
	}
}
