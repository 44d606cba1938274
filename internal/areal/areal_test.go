package areal

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkworks/equity-cli/internal/model"
)

func rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func TestAreaWeightedMean(t *testing.T) {
	// Two tracts split the buffer 25% / 75%.
	l := NewLayer([]model.VulnFeature{
		{Geom: rect(0, 0, 1, 4), Props: map[string]any{"HVI": 2.0}},
		{Geom: rect(1, 0, 4, 4), Props: map[string]any{"HVI": 4.0}},
	})

	buffer := rect(0, 0, 4, 4)
	got := l.AreaWeightedMean(buffer, "HVI")
	require.True(t, got.Valid)
	assert.InDelta(t, (2.0*4+4.0*12)/16, got.V, 1e-9)
}

func TestAreaWeightedMeanPartialOverlap(t *testing.T) {
	l := NewLayer([]model.VulnFeature{
		{Geom: rect(0, 0, 10, 10), Props: map[string]any{"HVI": 3.0}},
	})
	// Only the tract value exists under the buffer, so the mean is exact.
	got := l.AreaWeightedMean(rect(5, 5, 15, 15), "HVI")
	require.True(t, got.Valid)
	assert.InDelta(t, 3.0, got.V, 1e-9)
}

func TestAreaWeightedMeanNoOverlap(t *testing.T) {
	l := NewLayer([]model.VulnFeature{
		{Geom: rect(0, 0, 1, 1), Props: map[string]any{"HVI": 3.0}},
	})
	got := l.AreaWeightedMean(rect(100, 100, 101, 101), "HVI")
	assert.False(t, got.Valid)
}

func TestAreaWeightedMeanCoercion(t *testing.T) {
	l := NewLayer([]model.VulnFeature{
		{Geom: rect(0, 0, 2, 2), Props: map[string]any{"HVI": "5"}},
		{Geom: rect(2, 0, 4, 2), Props: map[string]any{"HVI": 3}},
		{Geom: rect(0, 2, 4, 4), Props: map[string]any{"HVI": "n/a"}},
	})
	got := l.AreaWeightedMean(rect(0, 0, 4, 4), "HVI")
	require.True(t, got.Valid)
	// The unparseable tract is skipped; the two numeric tracts weigh equally.
	assert.InDelta(t, 4.0, got.V, 1e-9)
}

func TestAreaWeightedMeanSkipsNilGeometry(t *testing.T) {
	l := NewLayer([]model.VulnFeature{
		{Geom: nil, Props: map[string]any{"HVI": 9.0}},
		{Geom: rect(0, 0, 4, 4), Props: map[string]any{"HVI": 1.0}},
	})
	got := l.AreaWeightedMean(rect(0, 0, 4, 4), "HVI")
	require.True(t, got.Valid)
	assert.InDelta(t, 1.0, got.V, 1e-9)
}

func TestAreaWeightedMeanNilBuffer(t *testing.T) {
	l := NewLayer(nil)
	assert.False(t, l.AreaWeightedMean(nil, "HVI").Valid)
}

func TestMeanOf(t *testing.T) {
	got := MeanOf(model.Value(2), model.Value(4))
	require.True(t, got.Valid)
	assert.Equal(t, 3.0, got.V)

	got = MeanOf(model.Value(2), model.Missing())
	require.True(t, got.Valid)
	assert.Equal(t, 2.0, got.V)

	assert.False(t, MeanOf(model.Missing(), model.Missing()).Valid)
}
