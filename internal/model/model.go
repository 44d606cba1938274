// Package model defines the feature types flowing through the analysis
// pipeline and the tri-state numeric used for metrics that may be missing.
package model

import (
	"time"

	"github.com/ctessum/geom"
)

// Float is a numeric metric that distinguishes "computed zero" from
// "not computed". Missing values propagate through percentile and
// area-weighted computations; they collapse to 0 only when aggregating
// investment totals.
type Float struct {
	V     float64
	Valid bool
}

// Value returns a present Float.
func Value(v float64) Float { return Float{V: v, Valid: true} }

// Missing returns an absent Float.
func Missing() Float { return Float{} }

// Or returns the value, or def when missing.
func (f Float) Or(def float64) float64 {
	if !f.Valid {
		return def
	}
	return f.V
}

// Park is a park polygon under analysis. The pipeline only ever adds
// computed fields to a park; parks are never dropped during a run.
type Park struct {
	ID    string
	Name  string
	Acres float64
	Geom  geom.Polygonal // nil when the source geometry is empty/missing
	Props map[string]any // original attributes, carried to the output
}

// CapitalProject is one site record of a capital investment. Records
// sharing a TrackerID represent one funding award split across sites.
type CapitalProject struct {
	TrackerID  string
	Phase      string
	Completed  time.Time
	Investment Float // parsed from the free-text funding description
	Geom       geom.Geom
	Props      map[string]any
}

// VulnFeature is a social-vulnerability polygon with ordinal attributes.
type VulnFeature struct {
	Geom  geom.Polygonal
	Props map[string]any
}

// ClassFractions holds per-class pixel fractions of a park's buffer against
// the two categorical hazard rasters.
type ClassFractions struct {
	Coastal500   float64
	Coastal100   float64
	StormShallow float64
	StormDeep    float64
	StormTidal   float64
}

// ParkResult carries every field computed for one park, keyed back to the
// park's position in the input collection.
type ParkResult struct {
	// Capital investment
	Concat      map[string]string
	EstInvTotal float64

	// Heat
	HeatMean Float
	HeatHaz  Float

	// Flood hazard
	Fractions  ClassFractions
	CoastalRaw float64
	CoastalHaz float64
	StormRaw   float64
	StormHaz   float64

	// Vulnerability
	HVIArea    Float
	SSVulArea  Float
	TidVulArea Float
	FloodVuln  Float

	// Normalized + composed
	HeatVulnIndex  float64
	FloodVulnIndex float64
	InvNorm        float64
	HazardFactor   Float
	VulFactor      Float
	Suitability    Float
}
