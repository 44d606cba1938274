// Package capital filters completed capital projects, parses their funding
// descriptions, allocates multi-site awards across parks by acreage, and
// aggregates allocated amounts onto parks.
package capital

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"go.uber.org/zap"

	"github.com/parkworks/equity-cli/internal/config"
	"github.com/parkworks/equity-cli/internal/geometry"
	"github.com/parkworks/equity-cli/internal/layer"
	"github.com/parkworks/equity-cli/internal/model"
)

var (
	betweenRe = regexp.MustCompile(`(?i)^Between \$(\d+(?:\.\d+)?) million and \$(\d+(?:\.\d+)?) million`)
	boundRe   = regexp.MustCompile(`(?i)^(Less than|Greater than) \$(\d+(?:\.\d+)?) million`)
	dollarRe  = regexp.MustCompile(`^\$(.*)`)
)

// ParseInvestment converts a free-text funding description into dollars.
// Recognized forms:
//
//	"Between $3 million and $5 million"  -> midpoint, 4e6
//	"Less than $1 million"               -> 1e6
//	"Greater than $10 million"           -> 10e6
//	"$2,972,000"                         -> 2972000
//
// Anything else is missing.
func ParseInvestment(s string) model.Float {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.Missing()
	}
	if m := betweenRe.FindStringSubmatch(s); m != nil {
		low, err1 := strconv.ParseFloat(m[1], 64)
		high, err2 := strconv.ParseFloat(m[2], 64)
		if err1 == nil && err2 == nil {
			return model.Value((low + high) / 2 * 1e6)
		}
		return model.Missing()
	}
	if m := boundRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			return model.Value(v * 1e6)
		}
		return model.Missing()
	}
	if m := dollarRe.FindStringSubmatch(s); m != nil {
		num := strings.ReplaceAll(m[1], ",", "")
		if v, err := strconv.ParseFloat(num, 64); err == nil {
			return model.Value(v)
		}
	}
	return model.Missing()
}

// Prepare filters a raw capital-project layer to completed projects finished
// on or after the cutoff date and parses each funding description. Rows
// whose completion date fails to parse are dropped.
func Prepare(features []model.CapitalProject, cutoff time.Time) []model.CapitalProject {
	out := make([]model.CapitalProject, 0, len(features))
	for _, p := range features {
		if p.Completed.IsZero() || p.Completed.Before(cutoff) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FromFeatures maps raw attribute rows into CapitalProject records using the
// configured field names. Phase filtering is case-insensitive; projects not
// in the completed phase are dropped here, before date parsing.
func FromFeatures(feats []layer.Feature, cfg config.CapitalConfig) []model.CapitalProject {
	out := make([]model.CapitalProject, 0, len(feats))
	for _, f := range feats {
		phase := str(f.Props[cfg.PhaseField])
		if !strings.EqualFold(strings.TrimSpace(phase), cfg.CompletedPhase) {
			continue
		}
		p := model.CapitalProject{
			TrackerID:  str(f.Props[cfg.TrackerField]),
			Phase:      phase,
			Investment: ParseInvestment(str(f.Props[cfg.FundingField])),
			Geom:       f.Geom,
			Props:      f.Props,
		}
		if raw := str(f.Props[cfg.DateField]); raw != "" {
			if t, err := time.Parse(cfg.DateLayout, raw); err == nil {
				p.Completed = t
			}
		}
		out = append(out, p)
	}
	return out
}

// Allocation is one project site joined to one park, carrying the share of
// the project's award attributed to that park.
type Allocation struct {
	ParkIndex int // -1 when the site intersects no park
	Project   model.CapitalProject
	Amount    model.Float
}

type parkEntry struct {
	idx int
	geom.Polygonal
}

// Allocate splits each award across the parks its sites intersect,
// proportional to park acreage. Sites sharing a TrackerID form one award;
// the award total is the first site's parsed investment. A group with zero
// total acreage, or an award that never parsed, allocates nothing.
func Allocate(projects []model.CapitalProject, parks []model.Park) []Allocation {
	tree := rtree.NewTree(25, 50)
	for i := range parks {
		if parks[i].Geom == nil {
			continue
		}
		tree.Insert(&parkEntry{idx: i, Polygonal: parks[i].Geom})
	}

	// Spatial join: one row per (site, intersecting park); sites touching
	// no park keep a row with ParkIndex -1 so award totals stay visible.
	var rows []Allocation
	groups := make(map[string][]int)
	var order []string
	for _, p := range projects {
		matched := false
		if p.Geom != nil {
			for _, hit := range tree.SearchIntersect(p.Geom.Bounds()) {
				e := hit.(*parkEntry)
				if !geometry.Intersects(p.Geom, e.Polygonal) {
					continue
				}
				rows = append(rows, Allocation{ParkIndex: e.idx, Project: p})
				matched = true
			}
		}
		if !matched {
			rows = append(rows, Allocation{ParkIndex: -1, Project: p})
		}
	}
	for i, r := range rows {
		key := r.Project.TrackerID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		idxs := groups[key]
		total := rows[idxs[0]].Project.Investment
		var totalAcres float64
		for _, i := range idxs {
			if rows[i].ParkIndex >= 0 {
				totalAcres += parks[rows[i].ParkIndex].Acres
			}
		}
		for _, i := range idxs {
			if !total.Valid || rows[i].ParkIndex < 0 {
				continue
			}
			share := 0.0
			if totalAcres > 0 {
				share = parks[rows[i].ParkIndex].Acres / totalAcres
			}
			rows[i].Amount = model.Value(total.V * share)
		}
	}

	zap.L().Debug("allocated capital awards",
		zap.Int("sites", len(projects)),
		zap.Int("rows", len(rows)),
		zap.Int("awards", len(order)))
	return rows
}

// ParkAggregate is the per-park rollup of allocated capital projects.
type ParkAggregate struct {
	Concat      map[string]string
	EstInvTotal float64
}

// AggregateToParks combines allocation rows per park: the configured text
// fields are concatenated with ", " in row order and the allocated amounts
// are summed. Parks with no intersecting project get a zero total and empty
// concat fields.
func AggregateToParks(rows []Allocation, parkCount int, concatFields []string) []ParkAggregate {
	out := make([]ParkAggregate, parkCount)
	for i := range out {
		out[i].Concat = make(map[string]string, len(concatFields))
	}
	for _, r := range rows {
		if r.ParkIndex < 0 || r.ParkIndex >= parkCount {
			continue
		}
		agg := &out[r.ParkIndex]
		for _, f := range concatFields {
			v := str(r.Project.Props[f])
			if cur, ok := agg.Concat[f]; ok && cur != "" {
				agg.Concat[f] = cur + ", " + v
			} else {
				agg.Concat[f] = v
			}
		}
		agg.EstInvTotal += r.Amount.Or(0)
	}
	return out
}

func str(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}
