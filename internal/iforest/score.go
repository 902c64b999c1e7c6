package iforest

import (
	"math"
	"slices"
)

const eulerGamma = 0.5772156649

// AveragePathLength is c(n), the mean path length of an unsuccessful search
// in a binary search tree of n items.
func AveragePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	m := float64(n - 1)
	return 2*(math.Log(m)+eulerGamma) - 2*m/float64(n)
}

// ScoreSamples returns -2^(-E[h(x)]/c(ψ)) for every row. Scores lie in
// [-1, 0); more negative means more anomalous.
func (f *Forest) ScoreSamples(X [][]float64) []float64 {
	scores := make([]float64, len(X))
	if len(f.Trees) == 0 {
		return scores
	}
	denom := AveragePathLength(f.SampleSize)
	if denom == 0 {
		denom = 1
	}
	for i, x := range X {
		var sum float64
		for t := range f.Trees {
			sum += f.Trees[t].pathLength(x)
		}
		mean := sum / float64(len(f.Trees))
		scores[i] = -math.Pow(2, -mean/denom)
	}
	return scores
}

// Labels maps scores to -1 (anomaly, score below offset) or +1 (normal).
func (f *Forest) Labels(scores []float64) []int {
	labels := make([]int, len(scores))
	for i, s := range scores {
		if s < f.Offset {
			labels[i] = -1
		} else {
			labels[i] = 1
		}
	}
	return labels
}

// Predict scores X and labels each row.
func (f *Forest) Predict(X [][]float64) (labels []int, scores []float64) {
	scores = f.ScoreSamples(X)
	return f.Labels(scores), scores
}

// Percentile returns the q-th percentile (0..100) of values using linear
// interpolation between closest ranks. It returns 0 for empty input.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := slices.Clone(values)
	slices.Sort(s)
	q = min(max(q, 0), 100)
	pos := q / 100 * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo] + frac*(s[hi]-s[lo])
}
