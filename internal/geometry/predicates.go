package geometry

import "github.com/ctessum/geom"

// PointInPolygonal reports whether (x, y) is inside p using the even-odd
// rule over every ring of every polygon. Points exactly on a boundary
// follow half-open edge semantics: deterministic, but which side wins
// depends on the edge orientation.
func PointInPolygonal(x, y float64, p geom.Polygonal) bool {
	if p == nil {
		return false
	}
	inside := false
	for _, poly := range p.Polygons() {
		for _, ring := range poly {
			n := len(ring)
			for i, j := 0, n-1; i < n; j, i = i, i+1 {
				yi, yj := ring[i].Y, ring[j].Y
				if (yi > y) != (yj > y) {
					xint := (ring[j].X-ring[i].X)*(y-yi)/(yj-yi) + ring[i].X
					if x < xint {
						inside = !inside
					}
				}
			}
		}
	}
	return inside
}

// Intersects reports whether g intersects the polygon p. Points use the
// even-odd containment test; polygonal geometries require a positive-area
// overlap.
func Intersects(g geom.Geom, p geom.Polygonal) bool {
	if g == nil || p == nil {
		return false
	}
	switch gg := g.(type) {
	case geom.Point:
		return PointInPolygonal(gg.X, gg.Y, p)
	case geom.MultiPoint:
		for _, pt := range gg {
			if PointInPolygonal(pt.X, pt.Y, p) {
				return true
			}
		}
		return false
	case geom.Polygonal:
		isect := p.Intersection(gg)
		return isect != nil && isect.Area() > 0
	default:
		return false
	}
}

// ExpandBounds grows a bounding box outward by d on every side.
func ExpandBounds(b *geom.Bounds, d float64) *geom.Bounds {
	if b == nil {
		return nil
	}
	return &geom.Bounds{
		Min: geom.Point{X: b.Min.X - d, Y: b.Min.Y - d},
		Max: geom.Point{X: b.Max.X + d, Y: b.Max.Y + d},
	}
}
