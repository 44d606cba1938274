// Package pipeline orchestrates the climate-equity suitability analysis:
// capital-investment aggregation, heat and flood hazard sampling,
// vulnerability aggregation, normalization, and index composition.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/parkworks/equity-cli/internal/areal"
	"github.com/parkworks/equity-cli/internal/capital"
	"github.com/parkworks/equity-cli/internal/config"
	"github.com/parkworks/equity-cli/internal/crs"
	"github.com/parkworks/equity-cli/internal/geometry"
	"github.com/parkworks/equity-cli/internal/index"
	"github.com/parkworks/equity-cli/internal/layer"
	"github.com/parkworks/equity-cli/internal/model"
	"github.com/parkworks/equity-cli/internal/store"
	"github.com/parkworks/equity-cli/internal/zonal"
)

// Vulnerability layer attributes.
const (
	heatVulnAttr   = "HVI"
	stormSurgeAttr = "ss_80s"
	tidalFloodAttr = "tid_80s"
)

// Flood component output fields.
const (
	fieldCst500  = "Cst_500_nr"
	fieldCst100  = "Cst_100_nr"
	fieldStrmShl = "StrmShl_nr"
	fieldStrmDp  = "StrmDp_nr"
	fieldStrmTid = "StrmTid_nr"
)

// Pipeline runs the analysis end to end.
type Pipeline struct {
	cfg   *config.Config
	store store.Store
	ref   crs.Ref
}

// New creates a Pipeline.
func New(cfg *config.Config, st store.Store) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: st,
		ref:   crs.Ref{Name: cfg.Analysis.CRSName, Proj4: cfg.Analysis.Proj4},
	}
}

// Run executes the full analysis and returns the completed run record.
// Parks are never dropped: every input park appears in the output with
// whatever could be computed for it.
func (p *Pipeline) Run(ctx context.Context) (*model.Run, error) {
	log := zap.L()
	log.Info("pipeline: starting analysis",
		zap.String("crs", p.cfg.Analysis.CRSName),
		zap.Float64("buffer_ft", p.cfg.Analysis.BufferFt))

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	out, results, err := p.analyze(ctx)
	if err != nil {
		if dbErr := p.store.CompleteRun(ctx, run.ID, model.RunStatusFailed, 0, ""); dbErr != nil {
			log.Warn("pipeline: failed to mark run failed", zap.Error(dbErr))
		}
		return nil, err
	}

	if err := p.store.SaveScores(ctx, run.ID, results); err != nil {
		return nil, eris.Wrap(err, "pipeline: save scores")
	}
	if err := p.store.CompleteRun(ctx, run.ID, model.RunStatusComplete, len(results), out); err != nil {
		return nil, eris.Wrap(err, "pipeline: complete run")
	}
	return p.store.GetRun(ctx, run.ID)
}

// analyze performs the computation and writes the output GeoJSON, returning
// its path and the per-park scores.
func (p *Pipeline) analyze(ctx context.Context) (string, []model.ParkScore, error) {
	parks, parkCol, err := p.loadParks()
	if err != nil {
		return "", nil, err
	}

	buffers := make([]geom.Polygonal, len(parks))
	for i := range parks {
		if parks[i].Geom != nil {
			buffers[i] = geometry.Buffer(parks[i].Geom, p.cfg.Analysis.BufferFt, p.cfg.Analysis.BufferSegments)
		}
	}

	results := make([]model.ParkResult, len(parks))

	if err := p.phase("capital", func() error {
		return p.runCapital(parks, results)
	}); err != nil {
		return "", nil, err
	}
	if err := p.phase("heat", func() error {
		return p.runHeat(ctx, parks, results)
	}); err != nil {
		return "", nil, err
	}
	if err := p.phase("flood", func() error {
		return p.runFlood(ctx, parks, results)
	}); err != nil {
		return "", nil, err
	}
	if err := p.phase("vulnerability", func() error {
		return p.runVulnerability(buffers, results)
	}); err != nil {
		return "", nil, err
	}
	p.compose(results)

	if err := p.writeOutput(parkCol, results); err != nil {
		return "", nil, err
	}
	return p.cfg.Output.GeoJSON, p.scores(parks, results), nil
}

func (p *Pipeline) phase(name string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return eris.Wrapf(err, "pipeline: phase %s", name)
	}
	zap.L().Info("pipeline: phase complete",
		zap.String("phase", name),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// loadParks reads the park layer, moves it to the working CRS, and maps the
// configured attribute fields.
func (p *Pipeline) loadParks() ([]model.Park, *layer.Collection, error) {
	col, err := layer.ReadFile(p.cfg.Inputs.Parks)
	if err != nil {
		return nil, nil, err
	}
	if err := p.toWorkingCRS(col); err != nil {
		return nil, nil, err
	}

	parks := make([]model.Park, len(col.Features))
	for i, f := range col.Features {
		parks[i] = model.Park{
			ID:    str(f.Props[p.cfg.Parks.IDField]),
			Name:  str(f.Props[p.cfg.Parks.NameField]),
			Acres: num(f.Props[p.cfg.Parks.AcresField]),
			Props: f.Props,
		}
		if poly, ok := f.Geom.(geom.Polygonal); ok {
			parks[i].Geom = poly
		}
	}
	zap.L().Info("pipeline: loaded parks", zap.Int("count", len(parks)))
	return parks, col, nil
}

func (p *Pipeline) toWorkingCRS(col *layer.Collection) error {
	t, needed, err := p.ref.VectorTransform(col.Proj4)
	if err != nil {
		return err
	}
	if !needed {
		return nil
	}
	for i := range col.Features {
		if col.Features[i].Geom == nil {
			continue
		}
		g, err := col.Features[i].Geom.Transform(t)
		if err != nil {
			return eris.Wrapf(err, "pipeline: transform feature %d", i)
		}
		col.Features[i].Geom = g
	}
	col.Proj4 = p.ref.Proj4
	return nil
}

func (p *Pipeline) runCapital(parks []model.Park, results []model.ParkResult) error {
	col, err := layer.ReadFile(p.cfg.Inputs.CapitalProjects)
	if err != nil {
		return err
	}
	if err := p.toWorkingCRS(col); err != nil {
		return err
	}

	projects := capital.FromFeatures(col.Features, p.cfg.Capital)
	projects = capital.Prepare(projects, p.cfg.Analysis.Cutoff)
	rows := capital.Allocate(projects, parks)
	aggs := capital.AggregateToParks(rows, len(parks), p.cfg.Capital.ConcatFields)

	for i := range results {
		results[i].Concat = aggs[i].Concat
		results[i].EstInvTotal = aggs[i].EstInvTotal
	}
	return nil
}

func (p *Pipeline) runHeat(ctx context.Context, parks []model.Park, results []model.ParkResult) error {
	path, err := p.ref.EnsureRaster(p.cfg.Inputs.HeatRaster, p.cfg.Analysis.Resolution)
	if err != nil {
		return err
	}
	means, err := zonal.SampleHeat(ctx, parks, zonal.HeatParams{
		RasterPath:     path,
		Proj4:          p.ref.Proj4,
		BufferFt:       p.cfg.Analysis.BufferFt,
		BufferSegments: p.cfg.Analysis.BufferSegments,
	})
	if err != nil {
		return err
	}
	dist, err := zonal.HeatDistribution(path)
	if err != nil {
		return err
	}
	for i, mean := range means {
		results[i].HeatMean = mean
		if !mean.Valid {
			results[i].HeatHaz = model.Missing()
			continue
		}
		pct := zonal.PercentileRank(mean.V, dist)
		results[i].HeatHaz = model.Value(zonal.HeatIndex(pct))
	}
	return nil
}

func (p *Pipeline) runFlood(ctx context.Context, parks []model.Park, results []model.ParkResult) error {
	fractions, err := zonal.SampleFlood(ctx, parks, zonal.FloodParams{
		CoastalPath:    p.cfg.Inputs.CoastalRaster,
		StormPath:      p.cfg.Inputs.StormRaster,
		Proj4:          p.ref.Proj4,
		BufferFt:       p.cfg.Analysis.BufferFt,
		BufferSegments: p.cfg.Analysis.BufferSegments,
	})
	if err != nil {
		return err
	}
	for i, f := range fractions {
		results[i].Fractions = f
		results[i].CoastalRaw = index.CoastalRaw(f, p.cfg.Weights.Coastal)
		results[i].CoastalHaz = index.Invert(results[i].CoastalRaw)
		results[i].StormRaw = index.StormRaw(f, p.cfg.Weights.Storm)
		results[i].StormHaz = index.Invert(results[i].StormRaw)
	}
	return nil
}

func (p *Pipeline) runVulnerability(buffers []geom.Polygonal, results []model.ParkResult) error {
	hvi, err := p.loadVulnLayer(p.cfg.Inputs.HeatVulnerability)
	if err != nil {
		return err
	}
	fvi, err := p.loadVulnLayer(p.cfg.Inputs.FloodVulnerability)
	if err != nil {
		return err
	}

	for i, buf := range buffers {
		if buf == nil {
			results[i].HVIArea = model.Missing()
			results[i].SSVulArea = model.Missing()
			results[i].TidVulArea = model.Missing()
			results[i].FloodVuln = model.Missing()
			continue
		}
		results[i].HVIArea = hvi.AreaWeightedMean(buf, heatVulnAttr)
		results[i].SSVulArea = fvi.AreaWeightedMean(buf, stormSurgeAttr)
		results[i].TidVulArea = fvi.AreaWeightedMean(buf, tidalFloodAttr)
		results[i].FloodVuln = areal.MeanOf(results[i].SSVulArea, results[i].TidVulArea)
	}
	return nil
}

func (p *Pipeline) loadVulnLayer(path string) (*areal.Layer, error) {
	col, err := layer.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := p.toWorkingCRS(col); err != nil {
		return nil, err
	}
	feats := make([]model.VulnFeature, 0, len(col.Features))
	for _, f := range col.Features {
		vf := model.VulnFeature{Props: f.Props}
		if poly, ok := f.Geom.(geom.Polygonal); ok {
			vf.Geom = poly
		}
		feats = append(feats, vf)
	}
	return areal.NewLayer(feats), nil
}

// compose normalizes the vulnerability and investment metrics and builds
// the weighted factors and final suitability score.
func (p *Pipeline) compose(results []model.ParkResult) {
	n := len(results)
	hviRaw := make([]model.Float, n)
	floodRaw := make([]model.Float, n)
	invRaw := make([]model.Float, n)
	for i, r := range results {
		hviRaw[i] = r.HVIArea
		floodRaw[i] = r.FloodVuln
		invRaw[i] = model.Value(r.EstInvTotal)
	}
	outlier := p.cfg.Analysis.OutlierPercentile
	heatVuln := index.MinMaxNormalize(hviRaw, outlier)
	floodVuln := index.MinMaxNormalize(floodRaw, outlier)
	invNorm := index.MinMaxNormalize(invRaw, outlier)

	for i := range results {
		r := &results[i]
		r.HeatVulnIndex = heatVuln[i]
		r.FloodVulnIndex = floodVuln[i]
		r.InvNorm = invNorm[i]
		r.HazardFactor = index.HazardFactor(r.CoastalHaz, r.StormHaz, r.HeatHaz, p.cfg.Weights.Hazard)
		r.VulFactor = index.VulFactor(r.HeatVulnIndex, r.FloodVulnIndex, p.cfg.Weights.Vulnerability)
		r.Suitability = index.Suitability(r.HazardFactor, r.VulFactor, r.InvNorm, p.cfg.Weights.Suitability)
	}
}

// writeOutput merges the computed fields into the park features and writes
// the scored GeoJSON atomically.
func (p *Pipeline) writeOutput(col *layer.Collection, results []model.ParkResult) error {
	heatIdx, err := p.cfg.Index(config.IndexHeatHazard)
	if err != nil {
		return err
	}
	coastalIdx, err := p.cfg.Index(config.IndexCoastalFloodHazard)
	if err != nil {
		return err
	}
	stormIdx, err := p.cfg.Index(config.IndexStormFloodHazard)
	if err != nil {
		return err
	}
	heatVulnIdx, err := p.cfg.Index(config.IndexHeatVulnerability)
	if err != nil {
		return err
	}
	floodVulnIdx, err := p.cfg.Index(config.IndexFloodVulnerability)
	if err != nil {
		return err
	}

	for i := range col.Features {
		r := results[i]
		props := col.Features[i].Props
		for field, v := range r.Concat {
			props[field] = v
		}
		props[p.cfg.Capital.TotalField] = r.EstInvTotal

		props[heatIdx.RawField] = jsonFloat(r.HeatMean)
		props[heatIdx.Alias] = jsonFloat(r.HeatHaz)

		props[fieldCst500] = r.Fractions.Coastal500
		props[fieldCst100] = r.Fractions.Coastal100
		props[fieldStrmShl] = r.Fractions.StormShallow
		props[fieldStrmDp] = r.Fractions.StormDeep
		props[fieldStrmTid] = r.Fractions.StormTidal
		props[coastalIdx.RawField] = r.CoastalRaw
		props[coastalIdx.Alias] = r.CoastalHaz
		props[stormIdx.RawField] = r.StormRaw
		props[stormIdx.Alias] = r.StormHaz

		props[heatVulnIdx.RawField] = jsonFloat(r.HVIArea)
		props["ssvul_area"] = jsonFloat(r.SSVulArea)
		props["tivul_area"] = jsonFloat(r.TidVulArea)
		props[floodVulnIdx.RawField] = jsonFloat(r.FloodVuln)
		props[heatVulnIdx.Alias] = r.HeatVulnIndex
		props[floodVulnIdx.Alias] = r.FloodVulnIndex

		props["Inv_Norm"] = r.InvNorm
		props["hazard_factor"] = jsonFloat(r.HazardFactor)
		props["vul_factor"] = jsonFloat(r.VulFactor)
		props["suitability"] = jsonFloat(r.Suitability)
	}
	return layer.WriteGeoJSON(p.cfg.Output.GeoJSON, col)
}

func (p *Pipeline) scores(parks []model.Park, results []model.ParkResult) []model.ParkScore {
	scores := make([]model.ParkScore, len(parks))
	for i := range parks {
		r := results[i]
		scores[i] = model.ParkScore{
			ParkID:       parks[i].ID,
			Name:         parks[i].Name,
			Acres:        parks[i].Acres,
			HeatMean:     r.HeatMean,
			HeatHaz:      r.HeatHaz,
			CoastalHaz:   r.CoastalHaz,
			StormHaz:     r.StormHaz,
			HeatVuln:     r.HeatVulnIndex,
			FloodVuln:    r.FloodVulnIndex,
			EstInvTotal:  r.EstInvTotal,
			InvNorm:      r.InvNorm,
			HazardFactor: r.HazardFactor,
			VulFactor:    r.VulFactor,
			Suitability:  r.Suitability,
		}
	}
	return scores
}

// jsonFloat renders a tri-state metric for GeoJSON properties: missing
// becomes JSON null.
func jsonFloat(f model.Float) any {
	if !f.Valid {
		return nil
	}
	return f.V
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func num(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		var f float64
		_, err := fmt.Sscanf(x, "%g", &f)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
