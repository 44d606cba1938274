package geometry

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twgeom "github.com/twpayne/go-geom"
)

func unitSquare() geom.Polygon {
	return geom.Polygon{{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
	}}
}

func TestPointInPolygonal(t *testing.T) {
	sq := unitSquare()

	assert.True(t, PointInPolygonal(0.5, 0.5, sq))
	assert.False(t, PointInPolygonal(1.5, 0.5, sq))
	assert.False(t, PointInPolygonal(-0.5, 0.5, sq))

	// Half-open boundary: left edge counts, right edge does not.
	assert.True(t, PointInPolygonal(0, 0.5, sq))
	assert.False(t, PointInPolygonal(1, 0.5, sq))
}

func TestPointInPolygonalWithHole(t *testing.T) {
	donut := geom.Polygon{
		{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}},
		{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}},
	}
	assert.False(t, PointInPolygonal(2, 2, donut))
	assert.True(t, PointInPolygonal(0.5, 2, donut))
}

func TestIntersects(t *testing.T) {
	sq := unitSquare()

	assert.True(t, Intersects(geom.Point{X: 0.5, Y: 0.5}, sq))
	assert.False(t, Intersects(geom.Point{X: 2, Y: 2}, sq))
	assert.True(t, Intersects(geom.MultiPoint{{X: 5, Y: 5}, {X: 0.1, Y: 0.1}}, sq))

	overlap := geom.Polygon{{
		{X: 0.5, Y: 0.5}, {X: 2, Y: 0.5}, {X: 2, Y: 2}, {X: 0.5, Y: 2},
	}}
	assert.True(t, Intersects(overlap, sq))

	disjoint := geom.Polygon{{
		{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}, {X: 5, Y: 6},
	}}
	assert.False(t, Intersects(disjoint, sq))
	assert.False(t, Intersects(nil, sq))
}

func TestBufferContainsOriginal(t *testing.T) {
	sq := unitSquare()
	buf := Buffer(sq, 2, 16)
	require.NotNil(t, buf)

	// Every original vertex and the far side of the buffer ring.
	assert.True(t, PointInPolygonal(0.5, 0.5, buf))
	assert.True(t, PointInPolygonal(-1.5, 0.5, buf))
	assert.True(t, PointInPolygonal(2.5, 0.5, buf))
	assert.True(t, PointInPolygonal(0.5, -1.5, buf))
	assert.True(t, PointInPolygonal(0.5, 2.5, buf))

	// Beyond the buffer distance.
	assert.False(t, PointInPolygonal(-2.5, 0.5, buf))
	assert.False(t, PointInPolygonal(4, 4, buf))

	// Area grows with the Minkowski sum.
	assert.Greater(t, buf.Area(), sq.Area())
}

func TestBufferNoopCases(t *testing.T) {
	sq := unitSquare()
	assert.Equal(t, geom.Polygonal(sq), Buffer(sq, 0, 16))
	assert.Nil(t, Buffer(nil, 2, 16))
}

func TestExpandBounds(t *testing.T) {
	b := &geom.Bounds{Min: geom.Point{X: 1, Y: 2}, Max: geom.Point{X: 3, Y: 4}}
	e := ExpandBounds(b, 10)
	assert.Equal(t, -9.0, e.Min.X)
	assert.Equal(t, -8.0, e.Min.Y)
	assert.Equal(t, 13.0, e.Max.X)
	assert.Equal(t, 14.0, e.Max.Y)
}

func TestGeoJSONRoundTrip(t *testing.T) {
	cases := []geom.Geom{
		geom.Point{X: 1, Y: 2},
		geom.MultiPoint{{X: 1, Y: 2}, {X: 3, Y: 4}},
		unitSquare(),
		geom.MultiPolygon{unitSquare()},
	}
	for _, in := range cases {
		enc, err := ToGeoJSON(in)
		require.NoError(t, err)
		out, err := FromGeoJSON(enc)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestGeoJSONNull(t *testing.T) {
	g, err := FromGeoJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, g)

	enc, err := ToGeoJSON(nil)
	require.NoError(t, err)
	assert.Nil(t, enc)
}

func TestGeoJSONClosesRings(t *testing.T) {
	// GeoJSON rings repeat the first coordinate; the planar form does not.
	ring := [][]twgeom.Coord{{
		{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0},
	}}
	poly := twgeom.NewPolygon(twgeom.XY).MustSetCoords(ring)
	g, err := FromGeoJSON(poly)
	require.NoError(t, err)
	got, ok := g.(geom.Polygon)
	require.True(t, ok)
	assert.Len(t, got[0], 4)
}

func TestFromShape(t *testing.T) {
	pt := &shp.Point{X: 3, Y: 4}
	assert.Equal(t, geom.Point{X: 3, Y: 4}, FromShape(pt))

	poly := &shp.Polygon{
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
		},
	}
	g := FromShape(poly)
	got, ok := g.(geom.Polygon)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.True(t, PointInPolygonal(0.5, 0.5, got))
}
