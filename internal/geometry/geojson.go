package geometry

import (
	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	twgeom "github.com/twpayne/go-geom"
)

// FromGeoJSON converts a decoded GeoJSON geometry into a planar geometry.
// Returns nil, nil for a null geometry.
func FromGeoJSON(t twgeom.T) (geom.Geom, error) {
	if t == nil {
		return nil, nil
	}

	switch g := t.(type) {
	case *twgeom.Point:
		c := g.Coords()
		return geom.Point{X: c.X(), Y: c.Y()}, nil

	case *twgeom.MultiPoint:
		var mp geom.MultiPoint
		for _, c := range g.Coords() {
			mp = append(mp, geom.Point{X: c.X(), Y: c.Y()})
		}
		return mp, nil

	case *twgeom.LineString:
		return lineFromCoords(g.Coords()), nil

	case *twgeom.MultiLineString:
		var mls geom.MultiLineString
		for _, ring := range g.Coords() {
			mls = append(mls, lineFromCoords(ring))
		}
		return mls, nil

	case *twgeom.Polygon:
		return polygonFromCoords(g.Coords()), nil

	case *twgeom.MultiPolygon:
		var mp geom.MultiPolygon
		for _, rings := range g.Coords() {
			mp = append(mp, polygonFromCoords(rings))
		}
		return mp, nil

	default:
		return nil, eris.Errorf("geometry: unsupported GeoJSON geometry %T", t)
	}
}

// ToGeoJSON converts a planar geometry back to an encodable GeoJSON geometry.
func ToGeoJSON(g geom.Geom) (twgeom.T, error) {
	switch gg := g.(type) {
	case nil:
		return nil, nil

	case geom.Point:
		return twgeom.NewPointFlat(twgeom.XY, []float64{gg.X, gg.Y}), nil

	case geom.MultiPoint:
		flat := make([]float64, 0, len(gg)*2)
		for _, p := range gg {
			flat = append(flat, p.X, p.Y)
		}
		return twgeom.NewMultiPointFlat(twgeom.XY, flat), nil

	case geom.LineString:
		return twgeom.NewLineString(twgeom.XY).MustSetCoords(coordsFromLine(gg)), nil

	case geom.MultiLineString:
		coords := make([][]twgeom.Coord, 0, len(gg))
		for _, ls := range gg {
			coords = append(coords, coordsFromLine(ls))
		}
		return twgeom.NewMultiLineString(twgeom.XY).MustSetCoords(coords), nil

	case geom.Polygon:
		return twgeom.NewPolygon(twgeom.XY).MustSetCoords(coordsFromPolygon(gg)), nil

	case geom.MultiPolygon:
		coords := make([][][]twgeom.Coord, 0, len(gg))
		for _, poly := range gg {
			coords = append(coords, coordsFromPolygon(poly))
		}
		return twgeom.NewMultiPolygon(twgeom.XY).MustSetCoords(coords), nil

	default:
		return nil, eris.Errorf("geometry: unsupported geometry %T", g)
	}
}

func lineFromCoords(coords []twgeom.Coord) geom.LineString {
	ls := make(geom.LineString, 0, len(coords))
	for _, c := range coords {
		ls = append(ls, geom.Point{X: c.X(), Y: c.Y()})
	}
	return ls
}

func polygonFromCoords(rings [][]twgeom.Coord) geom.Polygon {
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		// GeoJSON rings repeat the first coordinate; the planar form
		// closes implicitly.
		n := len(ring)
		if n > 1 && ring[0].Equal(twgeom.XY, ring[n-1]) {
			ring = ring[:n-1]
		}
		r := make([]geom.Point, 0, len(ring))
		for _, c := range ring {
			r = append(r, geom.Point{X: c.X(), Y: c.Y()})
		}
		poly = append(poly, r)
	}
	return poly
}

func coordsFromLine(ls geom.LineString) []twgeom.Coord {
	coords := make([]twgeom.Coord, 0, len(ls))
	for _, p := range ls {
		coords = append(coords, twgeom.Coord{p.X, p.Y})
	}
	return coords
}

func coordsFromPolygon(poly geom.Polygon) [][]twgeom.Coord {
	rings := make([][]twgeom.Coord, 0, len(poly))
	for _, ring := range poly {
		coords := make([]twgeom.Coord, 0, len(ring)+1)
		for _, p := range ring {
			coords = append(coords, twgeom.Coord{p.X, p.Y})
		}
		// GeoJSON rings must be closed.
		if len(ring) > 0 && (ring[0] != ring[len(ring)-1]) {
			coords = append(coords, twgeom.Coord{ring[0].X, ring[0].Y})
		}
		rings = append(rings, coords)
	}
	return rings
}
