// Package raster provides the in-memory grid model used for zonal
// statistics: windowed reads, polygon rasterization, value distributions,
// and bilinear resampling between coordinate systems.
package raster

import (
	"math"
	"sort"

	"github.com/ctessum/geom"

	"github.com/parkworks/equity-cli/internal/geometry"
)

// Grid is a georeferenced raster. Data is row-major with row 0 at the
// northern edge. XLL/YLL locate the lower-left corner of the lower-left
// cell.
type Grid struct {
	Cols, Rows int
	XLL, YLL   float64
	CellSize   float64
	NoData     float64
	Proj4      string
	Data       []float64
}

// Valid reports whether v is a real observation.
func (g *Grid) Valid(v float64) bool {
	return !math.IsNaN(v) && v != g.NoData
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Cols+col]
}

// Index converts working-CRS coordinates to (row, col) pixel indices.
// Indices may fall outside the grid; callers clip.
func (g *Grid) Index(x, y float64) (row, col int) {
	col = int(math.Floor((x - g.XLL) / g.CellSize))
	row = g.Rows - 1 - int(math.Floor((y-g.YLL)/g.CellSize))
	return row, col
}

// CellCenter returns the working-CRS coordinates of a pixel center.
func (g *Grid) CellCenter(row, col int) (x, y float64) {
	x = g.XLL + (float64(col)+0.5)*g.CellSize
	y = g.YLL + (float64(g.Rows-row)-0.5)*g.CellSize
	return x, y
}

// Bounds returns the grid extent.
func (g *Grid) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: g.XLL, Y: g.YLL},
		Max: geom.Point{
			X: g.XLL + float64(g.Cols)*g.CellSize,
			Y: g.YLL + float64(g.Rows)*g.CellSize,
		},
	}
}

// Window is an inclusive pixel-index rectangle within a grid.
type Window struct {
	Row0, Col0 int
	Row1, Col1 int
}

// Rows returns the window height in pixels.
func (w Window) Rows() int { return w.Row1 - w.Row0 + 1 }

// Cols returns the window width in pixels.
func (w Window) Cols() int { return w.Col1 - w.Col0 + 1 }

// WindowFromBounds converts a bounding box to a pixel window clipped to the
// grid extent. ok is false when the clipped window is degenerate (end index
// before start index), meaning the box lies outside the raster.
func (g *Grid) WindowFromBounds(b *geom.Bounds) (w Window, ok bool) {
	r0, c0 := g.Index(b.Min.X, b.Max.Y)
	r1, c1 := g.Index(b.Max.X, b.Min.Y)
	if r1 < r0 {
		r0, r1 = r1, r0
	}
	if c1 < c0 {
		c0, c1 = c1, c0
	}
	r0 = max(r0, 0)
	c0 = max(c0, 0)
	r1 = min(r1, g.Rows-1)
	c1 = min(c1, g.Cols-1)
	if r1 < r0 || c1 < c0 {
		return Window{}, false
	}
	return Window{Row0: r0, Col0: c0, Row1: r1, Col1: c1}, true
}

// Read extracts a window as a standalone grid with its own georeference.
func (g *Grid) Read(w Window) *Grid {
	sub := &Grid{
		Cols:     w.Cols(),
		Rows:     w.Rows(),
		XLL:      g.XLL + float64(w.Col0)*g.CellSize,
		YLL:      g.YLL + float64(g.Rows-w.Row1-1)*g.CellSize,
		CellSize: g.CellSize,
		NoData:   g.NoData,
		Proj4:    g.Proj4,
		Data:     make([]float64, w.Rows()*w.Cols()),
	}
	for r := 0; r < sub.Rows; r++ {
		src := (w.Row0+r)*g.Cols + w.Col0
		copy(sub.Data[r*sub.Cols:(r+1)*sub.Cols], g.Data[src:src+sub.Cols])
	}
	return sub
}

// Clip truncates the grid in place to at most rows x cols, keeping the
// north-west corner. Used to align two windows read from different rasters.
func (g *Grid) Clip(rows, cols int) {
	if rows >= g.Rows && cols >= g.Cols {
		return
	}
	rows = min(rows, g.Rows)
	cols = min(cols, g.Cols)
	data := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		copy(data[r*cols:(r+1)*cols], g.Data[r*g.Cols:r*g.Cols+cols])
	}
	g.YLL += float64(g.Rows-rows) * g.CellSize
	g.Rows, g.Cols, g.Data = rows, cols, data
}

// Rasterize produces a boolean mask of pixels whose centers fall inside p.
func (g *Grid) Rasterize(p geom.Polygonal) []bool {
	mask := make([]bool, g.Rows*g.Cols)
	if p == nil {
		return mask
	}
	b := p.Bounds()
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			x, y := g.CellCenter(r, c)
			if x < b.Min.X || x > b.Max.X || y < b.Min.Y || y > b.Max.Y {
				continue
			}
			mask[r*g.Cols+c] = geometry.PointInPolygonal(x, y, p)
		}
	}
	return mask
}

// Distribution returns all valid values sorted ascending, optionally
// transformed by fn.
func (g *Grid) Distribution(fn func(float64) float64) []float64 {
	var vals []float64
	for _, v := range g.Data {
		if !g.Valid(v) {
			continue
		}
		if fn != nil {
			v = fn(v)
		}
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	return vals
}

// Sample bilinearly interpolates the value at (x, y) from the four
// surrounding cell centers, ignoring nodata neighbors. ok is false when no
// valid neighbor exists or the point is outside the grid.
func (g *Grid) Sample(x, y float64) (v float64, ok bool) {
	// Fractional position in cell-center space.
	fc := (x - g.XLL) / g.CellSize - 0.5
	fr := float64(g.Rows) - 0.5 - (y-g.YLL)/g.CellSize

	c0 := int(math.Floor(fc))
	r0 := int(math.Floor(fr))
	wc := fc - float64(c0)
	wr := fr - float64(r0)

	var sum, wsum float64
	for dr := 0; dr <= 1; dr++ {
		for dc := 0; dc <= 1; dc++ {
			r, c := r0+dr, c0+dc
			if r < 0 || r >= g.Rows || c < 0 || c >= g.Cols {
				continue
			}
			val := g.At(r, c)
			if !g.Valid(val) {
				continue
			}
			w := (1 - math.Abs(float64(dr)-wr)) * (1 - math.Abs(float64(dc)-wc))
			if w <= 0 {
				continue
			}
			sum += w * val
			wsum += w
		}
	}
	if wsum == 0 {
		return g.NoData, false
	}
	return sum / wsum, true
}
