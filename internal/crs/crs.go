// Package crs pins every geometric operation in a run to a single working
// coordinate reference system. Vector layers are transformed in memory;
// rasters are reprojected once to a cached sidecar file and reused on later
// runs.
package crs

import (
	"math"
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkworks/equity-cli/internal/raster"
)

// Ref is the working CRS: a display name (e.g. "EPSG:6539") and the proj4
// definition the transforms are built from.
type Ref struct {
	Name  string
	Proj4 string
}

// Matches reports whether another proj4 definition is the same CRS.
func (r Ref) Matches(proj4 string) bool {
	return raster.SameCRS(r.Proj4, proj4)
}

// VectorTransform builds a transform from srcProj4 into the working CRS.
// needed is false when the source already matches.
func (r Ref) VectorTransform(srcProj4 string) (t proj.Transformer, needed bool, err error) {
	if srcProj4 == "" || r.Matches(srcProj4) {
		return nil, false, nil
	}
	srcSR, err := proj.Parse(srcProj4)
	if err != nil {
		return nil, false, eris.Wrapf(err, "crs: parse source proj4 %q", srcProj4)
	}
	dstSR, err := proj.Parse(r.Proj4)
	if err != nil {
		return nil, false, eris.Wrapf(err, "crs: parse working proj4 %q", r.Proj4)
	}
	t, err = srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, false, eris.Wrapf(err, "crs: build transform from %q", srcProj4)
	}
	return t, true, nil
}

// EnsureVector returns g expressed in the working CRS. A geometry with no
// declared CRS is assumed to already be in the working CRS.
func (r Ref) EnsureVector(g geom.Geom, srcProj4 string) (geom.Geom, error) {
	t, needed, err := r.VectorTransform(srcProj4)
	if err != nil {
		return nil, err
	}
	if !needed {
		return g, nil
	}
	out, err := g.Transform(t)
	if err != nil {
		return nil, eris.Wrap(err, "crs: transform geometry")
	}
	return out, nil
}

// cellSizeTolerance bounds how far a cached reprojection's cell size may
// drift from the requested resolution before it is rebuilt.
const cellSizeTolerance = 0.1

// EnsureRaster returns the path of a raster in the working CRS at the given
// resolution. When the source already matches both it is returned unchanged;
// otherwise a resampled copy is written next to it and reused across runs.
func (r Ref) EnsureRaster(path string, resolution float64) (string, error) {
	hdr, err := raster.ReadHeader(path)
	if err != nil {
		return "", err
	}
	if r.Matches(hdr.Proj4) && math.Abs(hdr.CellSize-resolution) <= cellSizeTolerance {
		return path, nil
	}

	dir, base := filepath.Split(path)
	out := filepath.Join(dir, "reprojected_"+base)

	if cached, err := raster.ReadHeader(out); err == nil &&
		r.Matches(cached.Proj4) &&
		math.Abs(cached.CellSize-resolution) <= cellSizeTolerance {
		zap.L().Debug("reusing reprojected raster", zap.String("path", out))
		return out, nil
	}

	zap.L().Info("reprojecting raster",
		zap.String("source", path),
		zap.String("target_crs", r.Name),
		zap.Float64("resolution", resolution))

	src, err := raster.ReadASC(path)
	if err != nil {
		return "", err
	}
	if src.Proj4 == "" {
		return "", eris.Errorf("crs: raster %s has no .prj sidecar and does not match the working CRS", path)
	}
	dst, err := raster.Resample(src, r.Proj4, resolution)
	if err != nil {
		return "", eris.Wrapf(err, "crs: reproject %s", path)
	}
	if err := raster.WriteASC(out, dst); err != nil {
		return "", err
	}
	return out, nil
}
