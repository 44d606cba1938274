// Package index normalizes raw metrics to [0, 1] and composes the weighted
// hazard, vulnerability, and suitability scores.
package index

import (
	"math"
	"sort"

	"github.com/parkworks/equity-cli/internal/config"
	"github.com/parkworks/equity-cli/internal/model"
)

// MinMaxNormalize rescales values to [0, 1] after clamping to the
// outlierPct and (100 - outlierPct) percentiles. Missing values become 0
// before scaling. When the clamp range collapses, every value maps to 1.0,
// or to 0.0 when the upper bound itself is 0.
func MinMaxNormalize(vals []model.Float, outlierPct float64) []float64 {
	if len(vals) == 0 {
		return nil
	}
	filled := make([]float64, len(vals))
	for i, v := range vals {
		filled[i] = v.Or(0)
	}
	sorted := append([]float64(nil), filled...)
	sort.Float64s(sorted)

	lower := quantile(sorted, outlierPct/100)
	upper := quantile(sorted, 1-outlierPct/100)

	out := make([]float64, len(filled))
	if upper-lower == 0 {
		fill := 1.0
		if upper == 0 {
			fill = 0.0
		}
		for i := range out {
			out[i] = fill
		}
		return out
	}
	for i, v := range filled {
		if v < lower {
			v = lower
		}
		if v > upper {
			v = upper
		}
		out[i] = (v - lower) / (upper - lower)
	}
	return out
}

// quantile returns the p-quantile of a sorted slice, interpolating linearly
// at position p*(n-1). This is the convention the tabular tooling producing
// the input datasets uses, so clamp bounds line up with scores published
// from those tools.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// CoastalRaw combines the coastal-flood class fractions.
func CoastalRaw(f model.ClassFractions, w config.CoastalWeights) float64 {
	return w.Coastal500*f.Coastal500 + w.Coastal100*f.Coastal100 + w.StormTidal*f.StormTidal
}

// StormRaw combines the stormwater class fractions.
func StormRaw(f model.ClassFractions, w config.StormWeights) float64 {
	return w.Shallow*f.StormShallow + w.Deep*f.StormDeep
}

// Invert maps a raw exposure fraction to its hazard index. More exposure
// scores lower.
func Invert(raw float64) float64 { return 1 - raw }

// HazardFactor weights the three hazard indices. Missing heat hazard makes
// the factor missing.
func HazardFactor(coastal, storm float64, heat model.Float, w config.HazardWeights) model.Float {
	if !heat.Valid {
		return model.Missing()
	}
	return model.Value(w.CoastalFlood*coastal + w.StormFlood*storm + w.Heat*heat.V)
}

// VulFactor weights the two normalized vulnerability indices.
func VulFactor(heatVuln, floodVuln float64, w config.VulWeights) model.Float {
	return model.Value(w.Heat*heatVuln + w.Flood*floodVuln)
}

// Suitability composes the final score. The investment term uses the
// inverted normalized investment, so underfunded parks score higher.
// A missing hazard factor makes the score missing.
func Suitability(hazard, vul model.Float, invNorm float64, w config.SuitabilityWeights) model.Float {
	if !hazard.Valid || !vul.Valid {
		return model.Missing()
	}
	return model.Value(w.Hazard*hazard.V + w.Vulnerability*vul.V + w.Investment*(1-invNorm))
}
