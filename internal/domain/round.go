package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds x half away from zero to the given number of decimals.
// Rounding goes through the shortest decimal form of x, so 1.005 rounds
// to 1.01 rather than the binary neighbour 1.00. NaN and infinities are
// returned unchanged.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}
