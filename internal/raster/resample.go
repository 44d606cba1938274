package raster

import (
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
	"github.com/rotisserie/eris"
)

// Resample reprojects src into dstProj4 at the given cell size. The output
// extent is derived from the transformed, densified border of the source so
// curved edges do not clip data. Each destination cell center is inverse
// mapped into the source and sampled bilinearly; cells that land outside the
// source, or on nodata, stay nodata.
func Resample(src *Grid, dstProj4 string, resolution float64) (*Grid, error) {
	if resolution <= 0 {
		return nil, eris.New("raster: resample resolution must be positive")
	}
	srcSR, err := proj.Parse(src.Proj4)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: parse source proj4 %q", src.Proj4)
	}
	dstSR, err := proj.Parse(dstProj4)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: parse target proj4 %q", dstProj4)
	}
	fwd, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, eris.Wrap(err, "raster: build forward transform")
	}
	inv, err := dstSR.NewTransform(srcSR)
	if err != nil {
		return nil, eris.Wrap(err, "raster: build inverse transform")
	}

	border, err := denseBorder(src.Bounds()).Transform(fwd)
	if err != nil {
		return nil, eris.Wrap(err, "raster: transform source extent")
	}
	b := border.Bounds()

	dst := &Grid{
		Cols:     int(math.Ceil((b.Max.X - b.Min.X) / resolution)),
		Rows:     int(math.Ceil((b.Max.Y - b.Min.Y) / resolution)),
		XLL:      b.Min.X,
		YLL:      b.Min.Y,
		CellSize: resolution,
		NoData:   src.NoData,
		Proj4:    dstProj4,
	}
	if dst.Cols <= 0 || dst.Rows <= 0 {
		return nil, eris.New("raster: resample produced an empty grid")
	}
	dst.Data = make([]float64, dst.Rows*dst.Cols)

	for r := 0; r < dst.Rows; r++ {
		for c := 0; c < dst.Cols; c++ {
			x, y := dst.CellCenter(r, c)
			p, err := geom.Point{X: x, Y: y}.Transform(inv)
			if err != nil {
				dst.Data[r*dst.Cols+c] = dst.NoData
				continue
			}
			sp := p.(geom.Point)
			if v, ok := src.Sample(sp.X, sp.Y); ok {
				dst.Data[r*dst.Cols+c] = v
			} else {
				dst.Data[r*dst.Cols+c] = dst.NoData
			}
		}
	}
	return dst, nil
}

// denseBorder traces a bounding box with intermediate vertices along each
// edge so its projected image bounds the projected region.
func denseBorder(b *geom.Bounds) geom.Polygon {
	const segs = 16
	dx := (b.Max.X - b.Min.X) / segs
	dy := (b.Max.Y - b.Min.Y) / segs
	ring := make([]geom.Point, 0, 4*segs+1)
	for i := 0; i < segs; i++ {
		ring = append(ring, geom.Point{X: b.Min.X + float64(i)*dx, Y: b.Min.Y})
	}
	for i := 0; i < segs; i++ {
		ring = append(ring, geom.Point{X: b.Max.X, Y: b.Min.Y + float64(i)*dy})
	}
	for i := 0; i < segs; i++ {
		ring = append(ring, geom.Point{X: b.Max.X - float64(i)*dx, Y: b.Max.Y})
	}
	for i := 0; i < segs; i++ {
		ring = append(ring, geom.Point{X: b.Min.X, Y: b.Max.Y - float64(i)*dy})
	}
	ring = append(ring, geom.Point{X: b.Min.X, Y: b.Min.Y})
	return geom.Polygon{ring}
}
