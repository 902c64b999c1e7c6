package features

import (
	"math"
	"slices"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
	"github.com/sktmbtkr01/his-quasar-production/internal/normalize"
)

// ExtractFeatures projects records onto model.FeatureNames.
func ExtractFeatures(records []model.VisitFeatureRecord) model.FeatureMatrix {
	return Project(records, model.FeatureNames)
}

// Project builds a matrix with one column per name. Names the record does
// not know become 0 and non-finite values are zeroed.
func Project(records []model.VisitFeatureRecord, names []string) model.FeatureMatrix {
	m := make(model.FeatureMatrix, len(records))
	for i := range records {
		row := make([]float64, len(names))
		for j, name := range names {
			row[j] = normalize.Finite(records[i].Feature(name))
		}
		m[i] = row
	}
	return m
}

// NormalizeFeatures z-scores every column using the matrix's own mean and
// population standard deviation. A zero std is stored as 1 so constant
// columns map to 0.
func NormalizeFeatures(m model.FeatureMatrix) (model.FeatureMatrix, model.NormalizationParams) {
	if m.Empty() {
		return model.FeatureMatrix{}, model.NormalizationParams{}
	}
	cols := m.Cols()
	mean := make([]float64, cols)
	std := make([]float64, cols)
	n := float64(m.Rows())

	for _, row := range m {
		for j := 0; j < cols; j++ {
			mean[j] += normalize.Finite(row[j])
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	for _, row := range m {
		for j := 0; j < cols; j++ {
			d := normalize.Finite(row[j]) - mean[j]
			std[j] += d * d
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j] / n)
		if std[j] == 0 || math.IsNaN(std[j]) {
			std[j] = 1
		}
	}

	params := model.NormalizationParams{Mean: mean, Std: std}
	out, _ := ApplyNormalization(m, params)
	return out, params
}

// ApplyNormalization z-scores m with previously computed params. It returns
// false, and a copy of m, when params do not match the column count.
func ApplyNormalization(m model.FeatureMatrix, params model.NormalizationParams) (model.FeatureMatrix, bool) {
	cols := m.Cols()
	if len(params.Mean) != cols || len(params.Std) != cols {
		out := make(model.FeatureMatrix, len(m))
		for i, row := range m {
			out[i] = slices.Clone(row)
		}
		return out, false
	}
	out := make(model.FeatureMatrix, len(m))
	for i, row := range m {
		nr := make([]float64, cols)
		for j := 0; j < cols; j++ {
			s := params.Std[j]
			if s == 0 {
				s = 1
			}
			nr[j] = normalize.Finite((normalize.Finite(row[j]) - params.Mean[j]) / s)
		}
		out[i] = nr
	}
	return out, true
}
