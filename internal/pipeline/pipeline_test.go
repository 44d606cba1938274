package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkworks/equity-cli/internal/config"
	"github.com/parkworks/equity-cli/internal/layer"
	"github.com/parkworks/equity-cli/internal/model"
	"github.com/parkworks/equity-cli/internal/raster"
	"github.com/parkworks/equity-cli/internal/store"
)

const testProj4 = "+proj=longlat +datum=WGS84 +no_defs"

func square(x, y, side float64) geom.Polygon {
	return geom.Polygon{{
		{X: x, Y: y}, {X: x + side, Y: y},
		{X: x + side, Y: y + side}, {X: x, Y: y + side},
	}}
}

func constRaster(t *testing.T, path string, fill func(row, col int) float64) {
	t.Helper()
	g := &raster.Grid{
		Cols: 20, Rows: 20, XLL: 0, YLL: 0,
		CellSize: 1, NoData: -9999, Proj4: testProj4,
		Data: make([]float64, 400),
	}
	for r := 0; r < 20; r++ {
		for c := 0; c < 20; c++ {
			g.Data[r*20+c] = fill(r, c)
		}
	}
	require.NoError(t, raster.WriteASC(path, g))
}

func writeLayer(t *testing.T, path string, feats []layer.Feature) {
	t.Helper()
	require.NoError(t, layer.WriteGeoJSON(path, &layer.Collection{Proj4: testProj4, Features: feats}))
}

// testConfig builds a run over a 20x20 unit grid. The working CRS equals the
// input CRS so no reprojection happens and every value is hand-checkable.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Analysis.CRSName = "EPSG:4326"
	cfg.Analysis.Proj4 = testProj4
	cfg.Analysis.Resolution = 1
	cfg.Analysis.BufferFt = 1
	cfg.Analysis.BufferSegments = 8
	cfg.Inputs.Parks = filepath.Join(dir, "parks.geojson")
	cfg.Inputs.CapitalProjects = filepath.Join(dir, "capital.geojson")
	cfg.Inputs.HeatRaster = filepath.Join(dir, "heat.asc")
	cfg.Inputs.CoastalRaster = filepath.Join(dir, "coastal.asc")
	cfg.Inputs.StormRaster = filepath.Join(dir, "storm.asc")
	cfg.Inputs.HeatVulnerability = filepath.Join(dir, "hvi.geojson")
	cfg.Inputs.FloodVulnerability = filepath.Join(dir, "fvi.geojson")
	cfg.Output.GeoJSON = filepath.Join(dir, "out", "parks_scored.geojson")
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = filepath.Join(dir, "equity.db")

	// Two parks: one on the western (coastal 0.2%-annual-chance) half, one
	// on the eastern (1%-annual-chance) half.
	writeLayer(t, cfg.Inputs.Parks, []layer.Feature{
		{Geom: square(2, 8, 4), Props: map[string]any{
			"globalid": "A", "signname": "West Commons", "acres": 2.0,
		}},
		{Geom: square(12, 8, 4), Props: map[string]any{
			"globalid": "B", "signname": "East Green", "acres": 4.0,
		}},
	})

	// One completed award inside park A; a second site still in design is
	// filtered out before allocation.
	writeLayer(t, cfg.Inputs.CapitalProjects, []layer.Feature{
		{Geom: geom.Point{X: 4, Y: 10}, Props: map[string]any{
			"TrackerID":  "T1",
			"CurrentPha": "Completed",
			"Construc_4": "06/15/2020 09:30:00 AM",
			"TotalFundi": "$1,000,000",
			"Title":      "Playground",
		}},
		{Geom: geom.Point{X: 14, Y: 10}, Props: map[string]any{
			"TrackerID":  "T2",
			"CurrentPha": "In Design",
			"TotalFundi": "$9,000,000",
			"Title":      "Seawall",
		}},
	})

	// Uniform 300 K surface temperature.
	constRaster(t, cfg.Inputs.HeatRaster, func(_, _ int) float64 { return 300 })
	// Coastal classes split down the middle of the grid.
	constRaster(t, cfg.Inputs.CoastalRaster, func(_, c int) float64 {
		if c < 10 {
			return 1
		}
		return 2
	})
	// Shallow stormwater flooding everywhere.
	constRaster(t, cfg.Inputs.StormRaster, func(_, _ int) float64 { return 1 })

	// One vulnerability tract covering the whole grid.
	writeLayer(t, cfg.Inputs.HeatVulnerability, []layer.Feature{
		{Geom: square(-5, -5, 30), Props: map[string]any{"HVI": 3.0}},
	})
	writeLayer(t, cfg.Inputs.FloodVulnerability, []layer.Feature{
		{Geom: square(-5, -5, 30), Props: map[string]any{"ss_80s": 2.0, "tid_80s": 4.0}},
	})

	return cfg
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	st, err := store.Open(ctx, cfg.Store)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	run, err := New(cfg, st).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 2, run.Parks)
	assert.Equal(t, cfg.Output.GeoJSON, run.OutputPath)
	require.NotNil(t, run.FinishedAt)

	scores, err := st.GetScores(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, scores, 2)

	a, b := scores[0], scores[1]
	require.Equal(t, "A", a.ParkID)
	require.Equal(t, "B", b.ParkID)

	// Heat: a uniform 300 K raster means every park sits at the top of the
	// distribution, so the heat hazard index is 0.
	assert.InDelta(t, 80.33, a.HeatMean.V, 1e-9)
	assert.InDelta(t, 0.0, a.HeatHaz.V, 1e-9)
	assert.InDelta(t, 80.33, b.HeatMean.V, 1e-9)

	// Coastal: park A is entirely in the 0.2%-annual-chance class, park B
	// entirely in the 1%-annual-chance class.
	assert.InDelta(t, 1-0.15, a.CoastalHaz, 1e-9)
	assert.InDelta(t, 1-0.35, b.CoastalHaz, 1e-9)
	assert.InDelta(t, 1-0.30, a.StormHaz, 1e-9)
	assert.InDelta(t, 1-0.30, b.StormHaz, 1e-9)

	// Vulnerability: a single tract makes both parks identical, and a
	// degenerate range normalizes to 1.
	assert.InDelta(t, 1.0, a.HeatVuln, 1e-9)
	assert.InDelta(t, 1.0, a.FloodVuln, 1e-9)
	assert.InDelta(t, 1.0, a.VulFactor.V, 1e-9)

	// Investment: the single completed award lands entirely on park A.
	assert.InDelta(t, 1e6, a.EstInvTotal, 1e-9)
	assert.InDelta(t, 0.0, b.EstInvTotal, 1e-9)
	assert.InDelta(t, 1.0, a.InvNorm, 1e-9)
	assert.InDelta(t, 0.0, b.InvNorm, 1e-9)

	// hazard = 0.25*coastal + 0.5*storm + 0.25*heat
	assert.InDelta(t, 0.5625, a.HazardFactor.V, 1e-9)
	assert.InDelta(t, 0.5125, b.HazardFactor.V, 1e-9)

	// suitability = 0.25*hazard + 0.25*vul + 0.5*(1 - inv_norm)
	assert.InDelta(t, 0.390625, a.Suitability.V, 1e-9)
	assert.InDelta(t, 0.878125, b.Suitability.V, 1e-9)
}

func TestPipelineOutputGeoJSON(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	st, err := store.Open(ctx, cfg.Store)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	run, err := New(cfg, st).Run(ctx)
	require.NoError(t, err)

	out, err := layer.ReadFile(run.OutputPath)
	require.NoError(t, err)
	require.Len(t, out.Features, 2)

	a := out.Features[0].Props
	b := out.Features[1].Props

	// Original attributes survive.
	assert.Equal(t, "West Commons", a["signname"])
	assert.Equal(t, "East Green", b["signname"])

	// Capital fields: concatenated project text and the allocated total.
	assert.Equal(t, "Playground", a["Title"])
	assert.InDelta(t, 1e6, a["EstInvTotal"].(float64), 1e-9)
	assert.InDelta(t, 0.0, b["EstInvTotal"].(float64), 1e-9)

	// Flood class fractions and hazard indexes.
	assert.InDelta(t, 1.0, a["Cst_500_nr"].(float64), 1e-9)
	assert.InDelta(t, 0.0, a["Cst_100_nr"].(float64), 1e-9)
	assert.InDelta(t, 1.0, b["Cst_100_nr"].(float64), 1e-9)
	assert.InDelta(t, 1.0, a["StrmShl_nr"].(float64), 1e-9)
	assert.InDelta(t, 0.85, a["CoastalFloodHaz"].(float64), 1e-9)
	assert.InDelta(t, 0.65, b["CoastalFloodHaz"].(float64), 1e-9)

	// Heat, vulnerability, and composed fields.
	assert.InDelta(t, 80.33, a["heat_mean"].(float64), 1e-9)
	assert.InDelta(t, 0.0, a["HeatHaz"].(float64), 1e-9)
	assert.InDelta(t, 3.0, a["hvi_area"].(float64), 1e-9)
	assert.InDelta(t, 3.0, a["flood_vuln"].(float64), 1e-9)
	assert.InDelta(t, 1.0, a["HeatVuln"].(float64), 1e-9)
	assert.InDelta(t, 1.0, a["Inv_Norm"].(float64), 1e-9)
	assert.InDelta(t, 0.390625, a["suitability"].(float64), 1e-9)
	assert.InDelta(t, 0.878125, b["suitability"].(float64), 1e-9)
}

func TestPipelineMissingInputFails(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Inputs.Parks = filepath.Join(t.TempDir(), "missing.geojson")

	st, err := store.Open(ctx, cfg.Store)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	_, err = New(cfg, st).Run(ctx)
	require.Error(t, err)

	// The run record is marked failed rather than left dangling.
	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
