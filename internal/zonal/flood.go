package zonal

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parkworks/equity-cli/internal/geometry"
	"github.com/parkworks/equity-cli/internal/model"
	"github.com/parkworks/equity-cli/internal/raster"
)

// Flood raster class codes.
const (
	coastal500 = 1
	coastal100 = 2

	stormShallow = 1
	stormDeep    = 2
	stormTidal   = 3
)

// FloodParams configures the categorical flood sampler. Both rasters must be
// in the working CRS (Proj4); a mismatch degrades the affected park rather
// than aborting the run.
type FloodParams struct {
	CoastalPath    string
	StormPath      string
	Proj4          string
	BufferFt       float64
	BufferSegments int
}

// SampleFlood returns, for each park, the fraction of its buffer's pixels
// falling in each flood class. A park with no geometry, a window outside
// either raster, or any raster read failure gets all-zero fractions; flood
// exposure defaults to "none" rather than poisoning the run.
func SampleFlood(ctx context.Context, parks []model.Park, p FloodParams) ([]model.ClassFractions, error) {
	out := make([]model.ClassFractions, len(parks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(PoolSize())
	for i := range parks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = floodFractions(parks[i], p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	zap.L().Debug("sampled flood rasters", zap.Int("parks", len(parks)))
	return out, nil
}

func floodFractions(park model.Park, p FloodParams) model.ClassFractions {
	var zero model.ClassFractions
	if park.Geom == nil {
		return zero
	}
	buf := geometry.Buffer(park.Geom, p.BufferFt, p.BufferSegments)
	bounds := buf.Bounds()

	coastal, err := raster.OpenWindow(p.CoastalPath, bounds, p.Proj4)
	if err != nil || coastal == nil {
		warnDegraded(park.ID, p.CoastalPath, err)
		return zero
	}
	storm, err := raster.OpenWindow(p.StormPath, bounds, p.Proj4)
	if err != nil || storm == nil {
		warnDegraded(park.ID, p.StormPath, err)
		return zero
	}

	// The two windows can differ by a pixel at the edges; align on their
	// common north-west extent.
	rows := min(coastal.Rows, storm.Rows)
	cols := min(coastal.Cols, storm.Cols)
	coastal.Clip(rows, cols)
	storm.Clip(rows, cols)

	mask := coastal.Rasterize(buf)
	var total, c500, c100, sShl, sDp, sTid int
	for idx, in := range mask {
		if !in {
			continue
		}
		total++
		switch coastal.Data[idx] {
		case coastal500:
			c500++
		case coastal100:
			c100++
		}
		switch storm.Data[idx] {
		case stormShallow:
			sShl++
		case stormDeep:
			sDp++
		case stormTidal:
			sTid++
		}
	}
	if total == 0 {
		return zero
	}
	t := float64(total)
	return model.ClassFractions{
		Coastal500:   float64(c500) / t,
		Coastal100:   float64(c100) / t,
		StormShallow: float64(sShl) / t,
		StormDeep:    float64(sDp) / t,
		StormTidal:   float64(sTid) / t,
	}
}

func warnDegraded(parkID, path string, err error) {
	fields := []zap.Field{zap.String("park", parkID), zap.String("raster", path)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	zap.L().Warn("flood sampling degraded to zero fractions", fields...)
}
