package detector

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sktmbtkr01/his-quasar-production/internal/artifact"
	"github.com/sktmbtkr01/his-quasar-production/internal/config"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

func testOptions() Options {
	cfg := config.Default()
	cfg.Model.NEstimators = 50
	cfg.Data.MinTrainingSamples = 100
	return OptionsFromConfig(cfg)
}

// trainingMatrix returns n normal rows plus one far outlier as the last row.
func trainingMatrix(n int) model.FeatureMatrix {
	rng := rand.New(rand.NewPCG(1, 2))
	cols := len(model.FeatureNames)
	m := make(model.FeatureMatrix, 0, n+1)
	for range n {
		row := make([]float64, cols)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		m = append(m, row)
	}
	out := make([]float64, cols)
	for j := range out {
		out[j] = 20
	}
	return append(m, out)
}

type failingStore struct{ artifact.Store }

func (failingStore) Save(context.Context, string, []byte) error { return errors.New("disk full") }

func TestDetect_NotTrained(t *testing.T) {
	d := New(context.Background(), artifact.NewFileStore(t.TempDir()), testOptions(), zerolog.Nop())
	if d.IsTrained() {
		t.Fatal("fresh detector should be untrained")
	}
	if _, _, err := d.Detect(trainingMatrix(5)); !errors.Is(err, model.ErrModelNotTrained) {
		t.Fatalf("err = %v, want ErrModelNotTrained", err)
	}
	if info := d.Info(); info.IsTrained || info.Message == "" {
		t.Errorf("Info = %+v", info)
	}
}

func TestTrain_Empty(t *testing.T) {
	d := New(context.Background(), artifact.NewFileStore(t.TempDir()), testOptions(), zerolog.Nop())
	_, err := d.Train(context.Background(), model.FeatureMatrix{}, model.NormalizationParams{})
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestTrain_DetectAndReload(t *testing.T) {
	ctx := context.Background()
	store := artifact.NewFileStore(t.TempDir())
	d := New(ctx, store, testOptions(), zerolog.Nop())

	X := trainingMatrix(300)
	params := model.NormalizationParams{Mean: make([]float64, X.Cols()), Std: make([]float64, X.Cols())}
	metrics, err := d.Train(ctx, X, params)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if metrics.NSamples != 301 || metrics.NFeatures != len(model.FeatureNames) {
		t.Errorf("metrics shape = %d×%d", metrics.NSamples, metrics.NFeatures)
	}
	if len(metrics.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", metrics.Warnings)
	}
	if math.Abs(metrics.AnomalyRate-0.1) > 0.02 {
		t.Errorf("anomaly rate = %v, want ≈0.1", metrics.AnomalyRate)
	}

	labels, scores, err := d.Detect(X)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if labels[len(labels)-1] != -1 {
		t.Errorf("planted outlier not flagged (score %v)", scores[len(scores)-1])
	}

	// empty input after training
	l, s, err := d.Detect(model.FeatureMatrix{})
	if err != nil || len(l) != 0 || len(s) != 0 {
		t.Errorf("Detect(empty) = %v, %v, %v", l, s, err)
	}

	reloaded := New(ctx, store, testOptions(), zerolog.Nop())
	if !reloaded.IsTrained() {
		t.Fatal("reloaded detector should be trained")
	}
	_, rs, err := reloaded.Detect(X)
	if err != nil {
		t.Fatalf("Detect after reload: %v", err)
	}
	for i := range scores {
		if scores[i] != rs[i] {
			t.Fatalf("score %d differs after reload: %v vs %v", i, scores[i], rs[i])
		}
	}
	info := reloaded.Info()
	if !info.HasNormalizationParams || info.ArtifactDigest == "" || info.NEstimators != 50 {
		t.Errorf("reloaded Info = %+v", info)
	}
}

func TestTrain_BelowMinimumWarns(t *testing.T) {
	d := New(context.Background(), artifact.NewFileStore(t.TempDir()), testOptions(), zerolog.Nop())
	metrics, err := d.Train(context.Background(), trainingMatrix(20), model.NormalizationParams{})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if len(metrics.Warnings) != 1 {
		t.Errorf("warnings = %v, want one", metrics.Warnings)
	}
	if !d.IsTrained() {
		t.Error("training below minimum should still produce a model")
	}
}

func TestTrain_PersistenceFailure(t *testing.T) {
	store := failingStore{artifact.NewFileStore(t.TempDir())}
	d := New(context.Background(), store, testOptions(), zerolog.Nop())
	metrics, err := d.Train(context.Background(), trainingMatrix(150), model.NormalizationParams{})
	if !errors.Is(err, model.ErrPersistenceFailure) {
		t.Fatalf("err = %v, want ErrPersistenceFailure", err)
	}
	if metrics == nil || !d.IsTrained() {
		t.Error("model should stay trained in memory with metrics returned")
	}
}

func TestNew_CorruptArtifact(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	if err := os.WriteFile(filepath.Join(dir, opts.ArtifactName()), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	d := New(context.Background(), artifact.NewFileStore(dir), opts, zerolog.Nop())
	if d.IsTrained() {
		t.Error("corrupt artifact should leave detector untrained")
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		score, threshold, want float64
	}{
		{0.25, -0.5, 0.5},
		{0.9, -0.5, 1},
		{0, -0.5, 0},
		{-0.25, -0.5, 0.5},
		{-0.75, -0.5, 1},
	}
	for _, c := range cases {
		if got := Confidence(c.score, c.threshold); math.Abs(got-c.want) > 1e-12 {
			t.Errorf("Confidence(%v, %v) = %v, want %v", c.score, c.threshold, got, c.want)
		}
	}
}

func TestAnomalyDetails(t *testing.T) {
	ctx := context.Background()
	d := New(ctx, artifact.NewFileStore(t.TempDir()), testOptions(), zerolog.Nop())
	X := trainingMatrix(200)
	if _, err := d.Train(ctx, X, model.NormalizationParams{}); err != nil {
		t.Fatalf("Train: %v", err)
	}

	visits := make([]model.VisitFeatureRecord, X.Rows())
	for i := range visits {
		visits[i] = model.VisitFeatureRecord{VisitID: "v" + string(rune('A'+i%26)), TotalBilledAmount: float64(i)}
	}
	recs, err := d.AnomalyDetails(X, visits)
	if err != nil {
		t.Fatalf("AnomalyDetails: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected anomalies")
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].AnomalyScore < recs[i-1].AnomalyScore {
			t.Fatalf("records not sorted ascending at %d", i)
		}
	}
	if recs[0].Index != X.Rows()-1 {
		t.Errorf("most anomalous index = %d, want planted outlier %d", recs[0].Index, X.Rows()-1)
	}
	if len(recs[0].Features) != 6 {
		t.Errorf("snapshot has %d features, want 6", len(recs[0].Features))
	}

	issues := Issues(recs)
	if len(issues) != len(recs) {
		t.Fatalf("Issues len = %d, want %d", len(issues), len(recs))
	}
	is := issues[0]
	if is.Type != model.IssueUnusualPattern || is.Source != model.SourceML || is.Severity != model.SeverityMedium || is.LeakageAmount != 0 {
		t.Errorf("unexpected ML issue %+v", is)
	}
	if is.ActualRevenue != float64(X.Rows()-1) {
		t.Errorf("actual revenue = %v, want billed amount from snapshot", is.ActualRevenue)
	}
	if _, ok := is.Detail.(model.StatisticalDetail); !ok {
		t.Errorf("detail = %T, want StatisticalDetail", is.Detail)
	}

	if _, err := d.AnomalyDetails(X, visits[:3]); err == nil {
		t.Error("expected error for misaligned visits")
	}
	if recs, err := d.AnomalyDetails(model.FeatureMatrix{}, nil); err != nil || len(recs) != 0 {
		t.Errorf("empty AnomalyDetails = %v, %v", recs, err)
	}
}

func TestPredictSingle(t *testing.T) {
	ctx := context.Background()
	d := New(ctx, artifact.NewFileStore(t.TempDir()), testOptions(), zerolog.Nop())
	X := trainingMatrix(200)
	if _, err := d.Train(ctx, X, model.NormalizationParams{}); err != nil {
		t.Fatalf("Train: %v", err)
	}
	p, err := d.PredictSingle(X[len(X)-1])
	if err != nil {
		t.Fatalf("PredictSingle: %v", err)
	}
	if !p.IsAnomaly || p.Threshold != -0.5 {
		t.Errorf("PredictSingle = %+v", p)
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		t.Errorf("confidence = %v out of (0, 1]", p.Confidence)
	}
}
