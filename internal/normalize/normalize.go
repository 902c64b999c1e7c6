package normalize

import (
	"math"
	"time"
)

// Finite returns v, or 0 when v is NaN or ±Inf.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Ratio returns num/den, or 0 when den is not positive.
func Ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return Finite(num / den)
}

// VarianceRatio returns |actual-expected|/expected, or 0 when expected is 0.
func VarianceRatio(actual, expected float64) float64 {
	if expected == 0 {
		return 0
	}
	return Finite(math.Abs(actual-expected) / math.Abs(expected))
}

// HoursBetween returns (later-earlier) in hours, or 0 if either is nil.
func HoursBetween(earlier, later *time.Time) float64 {
	if earlier == nil || later == nil {
		return 0
	}
	return later.Sub(*earlier).Hours()
}
