// Package layer reads and writes vector datasets. GeoJSON collections are
// assumed to be in WGS84 lon/lat per RFC 7946; shapefiles declare their CRS
// through a .prj sidecar holding a proj4 string.
package layer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	twgeojson "github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/parkworks/equity-cli/internal/geometry"
)

// wgs84 is the CRS GeoJSON files carry per RFC 7946.
const wgs84 = "+proj=longlat +datum=WGS84 +no_defs"

// Feature is one vector record: a geometry (nil when the source geometry is
// empty) plus its attributes.
type Feature struct {
	Geom  geom.Geom
	Props map[string]any
}

// Collection is an ordered set of features with a shared CRS.
type Collection struct {
	Proj4    string
	Features []Feature
}

// ReadFile loads a vector dataset, dispatching on extension.
func ReadFile(path string) (*Collection, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return readGeoJSON(path)
	case ".shp":
		return readShapefile(path)
	default:
		return nil, eris.Errorf("layer: unsupported vector format %s", path)
	}
}

func readGeoJSON(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: read %s", path)
	}

	var fc twgeojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "layer: decode %s", path)
	}

	col := &Collection{
		Proj4:    wgs84,
		Features: make([]Feature, 0, len(fc.Features)),
	}
	for i, f := range fc.Features {
		g, err := geometry.FromGeoJSON(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "layer: %s feature %d", path, i)
		}
		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		col.Features = append(col.Features, Feature{Geom: g, Props: props})
	}
	return col, nil
}

func readShapefile(path string) (*Collection, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: open %s", path)
	}
	defer func() { _ = r.Close() }()

	col := &Collection{Proj4: readPrj(path)}
	fields := r.Fields()

	for r.Next() {
		n, shape := r.Shape()
		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[f.String()] = strings.TrimRight(r.ReadAttribute(n, i), "\x00 ")
		}
		col.Features = append(col.Features, Feature{
			Geom:  geometry.FromShape(shape),
			Props: props,
		})
	}
	zap.L().Debug("read shapefile",
		zap.String("path", path),
		zap.Int("features", len(col.Features)))
	return col, nil
}

// WriteGeoJSON writes a feature collection atomically: the file is staged
// under a temporary name and renamed into place, so a failed run never
// leaves a truncated output behind.
func WriteGeoJSON(path string, col *Collection) error {
	fc := twgeojson.FeatureCollection{
		Features: make([]*twgeojson.Feature, 0, len(col.Features)),
	}
	for i, f := range col.Features {
		g, err := geometry.ToGeoJSON(f.Geom)
		if err != nil {
			return eris.Wrapf(err, "layer: encode feature %d", i)
		}
		fc.Features = append(fc.Features, &twgeojson.Feature{
			Geometry:   g,
			Properties: f.Props,
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "layer: marshal feature collection")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "layer: create output dir for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "layer: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "layer: rename %s", path)
	}
	return nil
}

func readPrj(shpPath string) string {
	prj := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj"
	data, err := os.ReadFile(prj)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
