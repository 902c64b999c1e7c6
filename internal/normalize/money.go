package normalize

import "math"

// RoundMoney rounds an amount to whole cents.
// Uses math.Round to avoid truncation bias.
func RoundMoney(v float64) float64 {
	return math.Round(Finite(v)*100) / 100
}

// SumMoney adds amounts and rounds the total to whole cents.
func SumMoney(values ...float64) float64 {
	var total float64
	for _, v := range values {
		total += Finite(v)
	}
	return RoundMoney(total)
}
