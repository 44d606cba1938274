// Package zonal computes per-park raster statistics: mean surface
// temperature over a buffered window and categorical flood-class fractions
// within a buffer mask. Parks are processed concurrently on a bounded pool.
package zonal

import (
	"math"
	"runtime"
	"sort"
)

// PoolSize is the worker count for per-park raster sampling: one fewer than
// the host CPUs, floored at one.
func PoolSize() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}

// KelvinToFahrenheit converts a thermal-raster sample.
func KelvinToFahrenheit(k float64) float64 {
	return (k-273.15)*9/5 + 32
}

// PercentileRank returns the percentage of distribution values less than or
// equal to v. distribution must be sorted ascending; ties count below the
// insertion point.
func PercentileRank(v float64, distribution []float64) float64 {
	if len(distribution) == 0 {
		return math.NaN()
	}
	idx := sort.Search(len(distribution), func(i int) bool {
		return distribution[i] > v
	})
	return float64(idx) / float64(len(distribution)) * 100
}

// HeatIndex converts a percentile rank into the heat hazard index,
// rounded to two decimals. Hotter parks (higher percentile) score lower.
func HeatIndex(percentile float64) float64 {
	return math.Round((1-percentile/100)*100) / 100
}
