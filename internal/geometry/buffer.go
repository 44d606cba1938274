package geometry

import (
	"math"

	"github.com/ctessum/geom"
)

// Buffer expands a polygonal geometry outward by dist. The result is the
// Minkowski sum of the polygon with a disk of radius dist, built as the
// union of the polygon, a capsule along each edge, and a discretized disk
// at each vertex. segments controls the disk discretization.
func Buffer(g geom.Polygonal, dist float64, segments int) geom.Polygonal {
	if g == nil || dist <= 0 {
		return g
	}
	if segments < 4 {
		segments = 4
	}

	out := g
	for _, poly := range g.Polygons() {
		for _, ring := range poly {
			n := len(ring)
			if n == 0 {
				continue
			}
			for i := 0; i < n; i++ {
				a := ring[i]
				b := ring[(i+1)%n]
				if quad := edgeQuad(a, b, dist); quad != nil {
					out = out.Union(quad)
				}
				out = out.Union(disk(a, dist, segments))
			}
		}
	}
	return out
}

// edgeQuad is the rectangle of half-width dist centered on segment a-b.
// Returns nil for zero-length edges (the vertex disk covers those).
func edgeQuad(a, b geom.Point, dist float64) geom.Polygonal {
	dx := b.X - a.X
	dy := b.Y - a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return nil
	}
	nx := -dy / length * dist
	ny := dx / length * dist
	return geom.Polygon{{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: a.X - nx, Y: a.Y - ny},
	}}
}

// disk is a regular polygon approximating a circle around c.
func disk(c geom.Point, radius float64, segments int) geom.Polygonal {
	ring := make([]geom.Point, segments)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		ring[i] = geom.Point{
			X: c.X + radius*math.Cos(theta),
			Y: c.Y + radius*math.Sin(theta),
		}
	}
	return geom.Polygon{ring}
}
