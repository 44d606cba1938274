package geometry

import (
	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"go.uber.org/zap"
)

// FromShape converts a go-shp geometry into a planar geometry.
// Returns nil for unsupported or degenerate shapes.
func FromShape(shape shp.Shape) geom.Geom {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.Point{X: s.X, Y: s.Y}

	case *shp.PolyLine:
		return polyLineToMultiLineString(s)

	case *shp.Polygon:
		return polygonToMultiPolygon(s)

	default:
		return nil
	}
}

// polyLineToMultiLineString converts a shapefile PolyLine part by part.
func polyLineToMultiLineString(pl *shp.PolyLine) geom.Geom {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	var mls geom.MultiLineString
	for i := int32(0); i < pl.NumParts; i++ {
		start := pl.Parts[i]
		end := partEnd(pl.Parts, i, len(pl.Points))

		ls := make(geom.LineString, 0, end-start)
		for j := start; j < end; j++ {
			ls = append(ls, geom.Point{X: pl.Points[j].X, Y: pl.Points[j].Y})
		}
		if len(ls) < 2 {
			zap.L().Debug("geometry: skipping degenerate linestring part", zap.Int32("part", i))
			continue
		}
		mls = append(mls, ls)
	}

	if len(mls) == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon converts a shapefile Polygon ring by ring. Shapefile
// rings are not grouped into polygons with holes; each ring becomes one
// polygon ring and the even-odd rule sorts out holes downstream.
func polygonToMultiPolygon(p *shp.Polygon) geom.Geom {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var poly geom.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := partEnd(p.Parts, i, len(p.Points))

		ring := make([]geom.Point, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Point{X: p.Points[j].X, Y: p.Points[j].Y})
		}
		if len(ring) < 3 {
			zap.L().Debug("geometry: skipping degenerate polygon ring", zap.Int32("part", i))
			continue
		}
		poly = append(poly, ring)
	}

	if len(poly) == 0 {
		return nil
	}
	return poly
}

func partEnd(parts []int32, i int32, total int) int32 {
	if i+1 < int32(len(parts)) {
		return parts[i+1]
	}
	return int32(total)
}
