// Package income analyses monthly income series for stability and
// fabrication signals, and computes debt-to-income ratios.
package income

import (
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ComputeStats returns descriptive statistics for data.
// The standard deviation is the population form. A zero mean yields a
// zero coefficient of variation and fewer than two points a zero slope.
func ComputeStats(data []float64) domain.Statistics {
	n := len(data)
	if n == 0 {
		return domain.Statistics{}
	}

	mean := sum(data) / float64(n)

	var sq float64
	for _, x := range data {
		d := x - mean
		sq += d * d
	}
	stdDev := math.Sqrt(sq / float64(n))

	var cv float64
	if mean != 0 {
		cv = stdDev / mean
	}

	return domain.Statistics{
		Mean:                   mean,
		Median:                 median(data),
		StdDev:                 stdDev,
		CoefficientOfVariation: cv,
		TrendSlope:             trendSlope(data),
	}
}

func sum(data []float64) float64 {
	var s float64
	for _, x := range data {
		s += x
	}
	return s
}

func average(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return sum(data) / float64(len(data))
}

func median(data []float64) float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// trendSlope is the least-squares slope of data against its index.
func trendSlope(data []float64) float64 {
	n := float64(len(data))
	if len(data) < 2 {
		return 0
	}

	var sumIX float64
	for i, x := range data {
		sumIX += float64(i) * x
	}
	sumI := n * (n - 1) / 2
	sumI2 := n * (n - 1) * (2*n - 1) / 6

	return (n*sumIX - sumI*sum(data)) / (n*sumI2 - sumI*sumI)
}
