package zonal

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parkworks/equity-cli/internal/geometry"
	"github.com/parkworks/equity-cli/internal/model"
	"github.com/parkworks/equity-cli/internal/raster"
)

// HeatParams configures the thermal sampler. RasterPath must already be in
// the working CRS; Proj4 is that CRS and any mismatch is a hard error.
type HeatParams struct {
	RasterPath     string
	Proj4          string
	BufferFt       float64
	BufferSegments int
}

// SampleHeat returns, for each park, the mean of all valid thermal pixels in
// the rectangular window covering the park's buffer, converted to degrees
// Fahrenheit. A park with no geometry, or whose window misses the raster,
// gets a missing value. Raster errors abort the whole pass: a heat score
// computed from a broken raster would silently skew every park.
func SampleHeat(ctx context.Context, parks []model.Park, p HeatParams) ([]model.Float, error) {
	out := make([]model.Float, len(parks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(PoolSize())
	for i := range parks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			park := parks[i]
			if park.Geom == nil {
				out[i] = model.Missing()
				return nil
			}
			buf := geometry.Buffer(park.Geom, p.BufferFt, p.BufferSegments)
			win, err := raster.OpenWindow(p.RasterPath, buf.Bounds(), p.Proj4)
			if err != nil {
				return err
			}
			if win == nil {
				out[i] = model.Missing()
				return nil
			}
			var sum float64
			var n int
			for _, v := range win.Data {
				if win.Valid(v) {
					sum += KelvinToFahrenheit(v)
					n++
				}
			}
			if n == 0 {
				out[i] = model.Missing()
				return nil
			}
			out[i] = model.Value(sum / float64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	zap.L().Debug("sampled heat raster", zap.Int("parks", len(parks)))
	return out, nil
}

// HeatDistribution loads the sorted Fahrenheit distribution of every valid
// pixel in the thermal raster, for percentile ranking.
func HeatDistribution(path string) ([]float64, error) {
	grid, err := raster.ReadASC(path)
	if err != nil {
		return nil, err
	}
	return grid.Distribution(KelvinToFahrenheit), nil
}
