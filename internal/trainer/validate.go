package trainer

import (
	"fmt"
	"math"
	"strings"

	"github.com/sktmbtkr01/his-quasar-production/internal/iforest"
	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// maxNaNShare is the NaN fraction above which validation reports an issue.
const maxNaNShare = 0.10

// ValidateData checks the raw training matrix. Only a sample count below
// minSamples is fatal; every other finding is reported as an issue.
func ValidateData(X model.FeatureMatrix, minSamples int) model.DataValidation {
	v := model.DataValidation{Issues: []string{}}
	v.Stats.NSamples = X.Rows()
	v.Stats.NFeatures = X.Cols()

	if X.Rows() < minSamples {
		v.Issues = append(v.Issues, fmt.Sprintf("Only %d samples, minimum is %d", X.Rows(), minSamples))
	}

	var (
		infs       int
		sum, sumSq float64
		finite     int
	)
	for _, row := range X {
		for _, x := range row {
			switch {
			case math.IsNaN(x):
				v.Stats.NaNCount++
			case math.IsInf(x, 0):
				infs++
			default:
				finite++
				sum += x
				sumSq += x * x
			}
		}
	}
	if cells := X.Rows() * X.Cols(); cells > 0 && v.Stats.NaNCount > 0 {
		if share := float64(v.Stats.NaNCount) / float64(cells); share > maxNaNShare {
			v.Issues = append(v.Issues, fmt.Sprintf("%.1f%% of values are NaN", share*100))
		}
	}
	if infs > 0 {
		v.Issues = append(v.Issues, fmt.Sprintf("%d infinite values found", infs))
	}
	if zero := zeroVarianceColumns(X); len(zero) > 0 {
		v.Issues = append(v.Issues, fmt.Sprintf("%d features have zero variance (%s)", len(zero), strings.Join(zero, ", ")))
	}
	if finite > 0 {
		v.Stats.Mean = sum / float64(finite)
		v.Stats.Std = math.Sqrt(math.Max(0, sumSq/float64(finite)-v.Stats.Mean*v.Stats.Mean))
	}

	if X.Rows() < minSamples {
		v.Error = "Insufficient training data"
		return v
	}
	v.Valid = true
	return v
}

func zeroVarianceColumns(X model.FeatureMatrix) []string {
	if X.Empty() {
		return nil
	}
	var out []string
	for j := range X.Cols() {
		constant := true
		for i := 1; i < X.Rows(); i++ {
			if X[i][j] != X[0][j] {
				constant = false
				break
			}
		}
		if constant {
			name := fmt.Sprintf("col%d", j)
			if j < len(model.FeatureNames) {
				name = model.FeatureNames[j]
			}
			out = append(out, name)
		}
	}
	return out
}

// validateModel scores the training set with the fitted model and compares
// the observed anomaly rate with the configured contamination.
func (t *Trainer) validateModel(X model.FeatureMatrix) model.ModelValidation {
	labels, scores, err := t.model.Detect(X)
	if err != nil {
		return model.ModelValidation{Error: err.Error()}
	}
	if len(labels) == 0 {
		return model.ModelValidation{Error: "Model prediction failed"}
	}
	return modelValidation(labels, scores, t.opts.Contamination, t.opts.MaxRateDeviation)
}

func modelValidation(labels []int, scores []float64, expected, maxDeviation float64) model.ModelValidation {
	mv := model.ModelValidation{Valid: true, ExpectedRate: expected}
	for _, l := range labels {
		if l == -1 {
			mv.NAnomalies++
		} else {
			mv.NNormal++
		}
	}
	mv.AnomalyRate = float64(mv.NAnomalies) / float64(len(labels))
	if expected > 0 {
		mv.RateDeviation = math.Abs(mv.AnomalyRate-expected) / expected
	}
	mv.WithinTolerance = maxDeviation <= 0 || mv.RateDeviation <= maxDeviation

	d := &mv.ScoreDistribution
	d.Min, d.Max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, s := range scores {
		d.Min = math.Min(d.Min, s)
		d.Max = math.Max(d.Max, s)
		sum += s
	}
	d.Mean = sum / float64(len(scores))
	var ss float64
	for _, s := range scores {
		ss += (s - d.Mean) * (s - d.Mean)
	}
	d.Std = math.Sqrt(ss / float64(len(scores)))
	d.Median = iforest.Percentile(scores, 50)
	return mv
}
