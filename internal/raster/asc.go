package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
)

// Rasters travel as ESRI ASCII grids (.asc) with the coordinate system in a
// sidecar .prj file holding a proj4 string. GDAL's AAIGrid driver round-trips
// the format, so GeoTIFF sources are one gdal_translate away.

var headerKeys = map[string]bool{
	"ncols": true, "nrows": true,
	"xllcorner": true, "yllcorner": true,
	"xllcenter": true, "yllcenter": true,
	"cellsize": true, "nodata_value": true,
}

type ascHeader struct {
	cols, rows int
	xll, yll   float64
	cellSize   float64
	noData     float64
}

// scanHeader parses the header fields. Because the scanner works word by
// word it may consume the first data value; when it does, that value is
// returned so the caller can prepend it.
func scanHeader(sc *bufio.Scanner) (ascHeader, *float64, error) {
	hdr := ascHeader{noData: -9999}
	fields := make(map[string]float64)
	var first *float64

	for len(fields) < len(headerKeys) {
		if !sc.Scan() {
			break
		}
		tok := strings.ToLower(sc.Text())
		if !headerKeys[tok] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return hdr, nil, eris.Errorf("unexpected header token %q", tok)
			}
			first = &v
			break
		}
		if !sc.Scan() {
			return hdr, nil, eris.Errorf("missing value for header field %s", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return hdr, nil, eris.Wrapf(err, "parse header field %s", tok)
		}
		fields[tok] = v
	}

	cols, okC := fields["ncols"]
	rows, okR := fields["nrows"]
	if !okC || !okR || int(cols) <= 0 || int(rows) <= 0 {
		return hdr, nil, eris.New("header missing ncols/nrows")
	}
	hdr.cols, hdr.rows = int(cols), int(rows)

	cs, ok := fields["cellsize"]
	if !ok || cs <= 0 {
		return hdr, nil, eris.New("header missing cellsize")
	}
	hdr.cellSize = cs

	switch {
	case has(fields, "xllcorner") && has(fields, "yllcorner"):
		hdr.xll, hdr.yll = fields["xllcorner"], fields["yllcorner"]
	case has(fields, "xllcenter") && has(fields, "yllcenter"):
		hdr.xll, hdr.yll = fields["xllcenter"]-cs/2, fields["yllcenter"]-cs/2
	default:
		return hdr, nil, eris.New("header missing grid origin")
	}
	if nd, ok := fields["nodata_value"]; ok {
		hdr.noData = nd
	}
	return hdr, first, nil
}

// ReadASC loads a full ASCII grid plus its .prj sidecar.
func ReadASC(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	sc := newScanner(f)
	hdr, first, err := scanHeader(sc)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: %s", path)
	}

	g := gridFromHeader(hdr)
	g.Proj4 = readPrj(path)
	g.Data = make([]float64, 0, hdr.cols*hdr.rows)
	if first != nil {
		g.Data = append(g.Data, *first)
	}
	for sc.Scan() {
		v, perr := strconv.ParseFloat(sc.Text(), 64)
		if perr != nil {
			return nil, eris.Wrapf(perr, "raster: parse value in %s", path)
		}
		g.Data = append(g.Data, v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", path)
	}
	if len(g.Data) != hdr.cols*hdr.rows {
		return nil, eris.Errorf("raster: %s has %d values, want %d", path, len(g.Data), hdr.cols*hdr.rows)
	}
	return g, nil
}

// ReadHeader loads only the georeference of an ASCII grid.
func ReadHeader(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	sc := newScanner(f)
	hdr, _, err := scanHeader(sc)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: %s", path)
	}
	g := gridFromHeader(hdr)
	g.Proj4 = readPrj(path)
	return g, nil
}

// OpenWindow reads only the region of the raster covering bounds, rejecting
// rasters whose CRS does not match targetProj4. A nil grid with nil error
// means the clipped window is degenerate (bounds fall outside the raster).
func OpenWindow(path string, bounds *geom.Bounds, targetProj4 string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = f.Close() }()

	sc := newScanner(f)
	hdr, first, err := scanHeader(sc)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: %s", path)
	}
	full := gridFromHeader(hdr)
	full.Proj4 = readPrj(path)

	if !SameCRS(full.Proj4, targetProj4) {
		return nil, eris.Errorf("raster: %s CRS %q does not match %q", path, full.Proj4, targetProj4)
	}

	w, ok := full.WindowFromBounds(bounds)
	if !ok {
		return nil, nil
	}

	sub := &Grid{
		Cols:     w.Cols(),
		Rows:     w.Rows(),
		XLL:      full.XLL + float64(w.Col0)*full.CellSize,
		YLL:      full.YLL + float64(full.Rows-w.Row1-1)*full.CellSize,
		CellSize: full.CellSize,
		NoData:   full.NoData,
		Proj4:    full.Proj4,
		Data:     make([]float64, 0, w.Rows()*w.Cols()),
	}

	idx := 0
	keep := func(v float64) {
		r := idx / full.Cols
		c := idx % full.Cols
		if r >= w.Row0 && r <= w.Row1 && c >= w.Col0 && c <= w.Col1 {
			sub.Data = append(sub.Data, v)
		}
		idx++
	}
	if first != nil {
		keep(*first)
	}
	for idx < full.Cols*full.Rows && sc.Scan() {
		v, perr := strconv.ParseFloat(sc.Text(), 64)
		if perr != nil {
			return nil, eris.Wrapf(perr, "raster: parse value in %s", path)
		}
		keep(v)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "raster: read %s", path)
	}
	if len(sub.Data) != sub.Rows*sub.Cols {
		return nil, eris.Errorf("raster: %s truncated: window has %d values, want %d", path, len(sub.Data), sub.Rows*sub.Cols)
	}
	return sub, nil
}

// WriteASC persists a grid and, when a CRS is set, its .prj sidecar.
func WriteASC(path string, g *Grid) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}
	defer func() { _ = f.Close() }()

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "ncols %d\n", g.Cols)
	fmt.Fprintf(bw, "nrows %d\n", g.Rows)
	fmt.Fprintf(bw, "xllcorner %g\n", g.XLL)
	fmt.Fprintf(bw, "yllcorner %g\n", g.YLL)
	fmt.Fprintf(bw, "cellsize %g\n", g.CellSize)
	fmt.Fprintf(bw, "NODATA_value %g\n", g.NoData)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(g.At(r, c), 'g', -1, 64))
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrapf(err, "raster: write %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "raster: close %s", path)
	}

	if g.Proj4 != "" {
		if err := os.WriteFile(prjPath(path), []byte(g.Proj4+"\n"), 0o644); err != nil {
			return eris.Wrapf(err, "raster: write prj for %s", path)
		}
	}
	return nil
}

// SameCRS compares two proj4 strings ignoring token order and whitespace.
func SameCRS(a, b string) bool {
	return canonicalProj4(a) == canonicalProj4(b)
}

func canonicalProj4(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return strings.Join(out, " ")
}

func gridFromHeader(hdr ascHeader) *Grid {
	return &Grid{
		Cols:     hdr.cols,
		Rows:     hdr.rows,
		XLL:      hdr.xll,
		YLL:      hdr.yll,
		CellSize: hdr.cellSize,
		NoData:   hdr.noData,
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	return sc
}

func has(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}

func prjPath(ascPath string) string {
	if i := strings.LastIndex(ascPath, "."); i > strings.LastIndex(ascPath, "/") {
		return ascPath[:i] + ".prj"
	}
	return ascPath + ".prj"
}

func readPrj(ascPath string) string {
	data, err := os.ReadFile(prjPath(ascPath))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
