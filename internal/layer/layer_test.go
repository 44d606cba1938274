package layer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parks.geojson")
	col := &Collection{
		Proj4: wgs84,
		Features: []Feature{
			{
				Geom: geom.Polygon{{
					{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
				}},
				Props: map[string]any{"name": "riverside", "acres": 2.5},
			},
			{
				Geom:  geom.Point{X: 3, Y: 4},
				Props: map[string]any{"name": "site"},
			},
		},
	}
	require.NoError(t, WriteGeoJSON(path, col))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, wgs84, got.Proj4)
	require.Len(t, got.Features, 2)
	assert.Equal(t, col.Features[0].Geom, got.Features[0].Geom)
	assert.Equal(t, "riverside", got.Features[0].Props["name"])
	assert.Equal(t, 2.5, got.Features[0].Props["acres"])
	assert.Equal(t, geom.Point{X: 3, Y: 4}, got.Features[1].Geom)
}

func TestWriteGeoJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	col := &Collection{Features: []Feature{{Geom: geom.Point{X: 1, Y: 2}, Props: map[string]any{}}}}
	require.NoError(t, WriteGeoJSON(path, col))

	// No staging file is left behind.
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestReadFileUnsupported(t *testing.T) {
	_, err := ReadFile("data.gpkg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported vector format")
}

func TestReadShapefile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sites.shp")

	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)
	w.SetFields([]shp.Field{shp.StringField("NAME", 25)})
	w.Write(&shp.Point{X: 10, Y: 20})
	w.Write(&shp.Point{X: 30, Y: 40})
	w.WriteAttribute(0, 0, "first")
	w.WriteAttribute(1, 0, "second")
	w.Close()

	prj := "+proj=longlat +datum=WGS84 +no_defs"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites.prj"), []byte(prj+"\n"), 0o644))

	col, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, prj, col.Proj4)
	require.Len(t, col.Features, 2)
	assert.Equal(t, geom.Point{X: 10, Y: 20}, col.Features[0].Geom)
	assert.Equal(t, "first", col.Features[0].Props["NAME"])
	assert.Equal(t, "second", col.Features[1].Props["NAME"])
}
