// Package areal aggregates polygon attributes onto park buffers using
// area-weighted averaging over an r-tree spatial index.
package areal

import (
	"encoding/json"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/parkworks/equity-cli/internal/model"
)

// Layer is a queryable set of vulnerability polygons.
type Layer struct {
	tree     *rtree.Rtree
	features []model.VulnFeature
}

type entry struct {
	idx int
	geom.Polygonal
}

// NewLayer indexes the features with non-empty geometry.
func NewLayer(features []model.VulnFeature) *Layer {
	l := &Layer{
		tree:     rtree.NewTree(25, 50),
		features: features,
	}
	for i := range features {
		if features[i].Geom == nil {
			continue
		}
		l.tree.Insert(&entry{idx: i, Polygonal: features[i].Geom})
	}
	return l
}

// AreaWeightedMean averages the named attribute over the features
// intersecting buffer, weighting each by its intersection area. Features
// whose attribute does not coerce to a number are skipped entirely.
// Missing when nothing overlaps.
func (l *Layer) AreaWeightedMean(buffer geom.Polygonal, attr string) model.Float {
	if buffer == nil {
		return model.Missing()
	}
	var weightedSum, totalArea float64
	for _, hit := range l.tree.SearchIntersect(buffer.Bounds()) {
		e := hit.(*entry)
		v, ok := coerce(l.features[e.idx].Props[attr])
		if !ok {
			continue
		}
		isect := buffer.Intersection(e.Polygonal)
		if isect == nil {
			continue
		}
		area := isect.Area()
		if area <= 0 {
			continue
		}
		weightedSum += v * area
		totalArea += area
	}
	if totalArea <= 0 {
		return model.Missing()
	}
	return model.Value(weightedSum / totalArea)
}

// MeanOf averages present values; missing when every input is missing.
func MeanOf(vals ...model.Float) model.Float {
	var sum float64
	var n int
	for _, v := range vals {
		if v.Valid {
			sum += v.V
			n++
		}
	}
	if n == 0 {
		return model.Missing()
	}
	return model.Value(sum / float64(n))
}

func coerce(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
