package zonal

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkworks/equity-cli/internal/model"
	"github.com/parkworks/equity-cli/internal/raster"
)

const testProj4 = "+proj=longlat +datum=WGS84 +no_defs"

func TestKelvinToFahrenheit(t *testing.T) {
	assert.InDelta(t, 32.0, KelvinToFahrenheit(273.15), 1e-9)
	assert.InDelta(t, 212.0, KelvinToFahrenheit(373.15), 1e-9)
}

func TestPercentileRank(t *testing.T) {
	dist := []float64{1, 2, 3, 4}
	assert.InDelta(t, 0.0, PercentileRank(0.5, dist), 1e-12)
	assert.InDelta(t, 50.0, PercentileRank(2, dist), 1e-12)
	assert.InDelta(t, 50.0, PercentileRank(2.5, dist), 1e-12)
	assert.InDelta(t, 100.0, PercentileRank(4, dist), 1e-12)
	assert.InDelta(t, 100.0, PercentileRank(99, dist), 1e-12)
	assert.True(t, math.IsNaN(PercentileRank(1, nil)))
}

func TestHeatIndex(t *testing.T) {
	assert.Equal(t, 0.5, HeatIndex(50))
	assert.Equal(t, 0.0, HeatIndex(100))
	assert.Equal(t, 1.0, HeatIndex(0))
	assert.Equal(t, 0.33, HeatIndex(66.6))
}

func TestPoolSize(t *testing.T) {
	assert.GreaterOrEqual(t, PoolSize(), 1)
}

func writeGrid(t *testing.T, dir, name string, g *raster.Grid) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, raster.WriteASC(path, g))
	return path
}

func square(x0, y0, size float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size}, {X: x0, Y: y0 + size},
	}}
}

func constGrid(cols, rows int, cell, v float64) *raster.Grid {
	g := &raster.Grid{
		Cols: cols, Rows: rows, XLL: 0, YLL: 0,
		CellSize: cell, NoData: -9999, Proj4: testProj4,
		Data: make([]float64, cols*rows),
	}
	for i := range g.Data {
		g.Data[i] = v
	}
	return g
}

func TestSampleHeat(t *testing.T) {
	dir := t.TempDir()
	// Uniform 300 K field.
	path := writeGrid(t, dir, "heat.asc", constGrid(20, 20, 1, 300))

	parks := []model.Park{
		{ID: "a", Geom: square(5, 5, 4)},
		{ID: "empty"},
		{ID: "far", Geom: square(10000, 10000, 4)},
	}
	got, err := SampleHeat(context.Background(), parks, HeatParams{
		RasterPath:     path,
		Proj4:          testProj4,
		BufferFt:       2,
		BufferSegments: 8,
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.True(t, got[0].Valid)
	assert.InDelta(t, KelvinToFahrenheit(300), got[0].V, 1e-9)

	assert.False(t, got[1].Valid, "park without geometry is missing")
	assert.False(t, got[2].Valid, "park outside the raster is missing")
}

func TestSampleHeatCRSMismatchAborts(t *testing.T) {
	dir := t.TempDir()
	path := writeGrid(t, dir, "heat.asc", constGrid(10, 10, 1, 300))

	parks := []model.Park{{ID: "a", Geom: square(2, 2, 4)}}
	_, err := SampleHeat(context.Background(), parks, HeatParams{
		RasterPath: path,
		Proj4:      "+proj=merc +units=m +no_defs",
		BufferFt:   2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestHeatDistribution(t *testing.T) {
	dir := t.TempDir()
	g := constGrid(2, 2, 1, 0)
	g.Data = []float64{273.15, 373.15, -9999, 273.15}
	path := writeGrid(t, dir, "heat.asc", g)

	dist, err := HeatDistribution(path)
	require.NoError(t, err)
	require.Len(t, dist, 3)
	assert.InDelta(t, 32.0, dist[0], 1e-9)
	assert.InDelta(t, 212.0, dist[2], 1e-9)
}

func TestSampleFlood(t *testing.T) {
	dir := t.TempDir()

	// Coastal raster: west half class 1 (500-year), east half class 2.
	coastal := constGrid(20, 20, 1, 0)
	for r := 0; r < 20; r++ {
		for c := 0; c < 20; c++ {
			if c < 10 {
				coastal.Data[r*20+c] = 1
			} else {
				coastal.Data[r*20+c] = 2
			}
		}
	}
	coastalPath := writeGrid(t, dir, "coastal.asc", coastal)

	// Storm raster: everything shallow flooding.
	stormPath := writeGrid(t, dir, "storm.asc", constGrid(20, 20, 1, 1))

	parks := []model.Park{
		{ID: "west", Geom: square(2, 8, 4)},
		{ID: "empty"},
	}
	got, err := SampleFlood(context.Background(), parks, FloodParams{
		CoastalPath:    coastalPath,
		StormPath:      stormPath,
		Proj4:          testProj4,
		BufferFt:       1,
		BufferSegments: 8,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	west := got[0]
	// The buffered park sits entirely in the western class-1 half.
	assert.InDelta(t, 1.0, west.Coastal500, 1e-9)
	assert.Zero(t, west.Coastal100)
	assert.InDelta(t, 1.0, west.StormShallow, 1e-9)
	assert.Zero(t, west.StormDeep)
	assert.Zero(t, west.StormTidal)

	assert.Equal(t, model.ClassFractions{}, got[1], "park without geometry degrades to zeros")
}

func TestSampleFloodCRSMismatchDegrades(t *testing.T) {
	dir := t.TempDir()
	coastalPath := writeGrid(t, dir, "coastal.asc", constGrid(10, 10, 1, 1))
	stormPath := writeGrid(t, dir, "storm.asc", constGrid(10, 10, 1, 1))

	parks := []model.Park{{ID: "a", Geom: square(2, 2, 4)}}
	got, err := SampleFlood(context.Background(), parks, FloodParams{
		CoastalPath: coastalPath,
		StormPath:   stormPath,
		Proj4:       "+proj=merc +units=m +no_defs",
		BufferFt:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ClassFractions{}, got[0])
}

func TestSampleFloodOutsideRaster(t *testing.T) {
	dir := t.TempDir()
	coastalPath := writeGrid(t, dir, "coastal.asc", constGrid(10, 10, 1, 1))
	stormPath := writeGrid(t, dir, "storm.asc", constGrid(10, 10, 1, 1))

	parks := []model.Park{{ID: "far", Geom: square(1000, 1000, 4)}}
	got, err := SampleFlood(context.Background(), parks, FloodParams{
		CoastalPath: coastalPath,
		StormPath:   stormPath,
		Proj4:       testProj4,
		BufferFt:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ClassFractions{}, got[0])
}
