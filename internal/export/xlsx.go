// Package export renders run scores to spreadsheet form for sharing with
// planners who work outside GIS tooling.
package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/parkworks/equity-cli/internal/model"
)

var headers = []string{
	"Park ID", "Name", "Acres",
	"Heat Mean (F)", "Heat Hazard",
	"Coastal Flood Hazard", "Stormwater Flood Hazard",
	"Heat Vulnerability", "Flood Vulnerability",
	"Est. Investment", "Investment (normalized)",
	"Hazard Factor", "Vulnerability Factor", "Suitability",
}

// WriteXLSX writes one run's park scores to an .xlsx workbook. Metrics that
// were never computed are left as blank cells.
func WriteXLSX(path string, scores []model.ParkScore) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Scores")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hdr := sheet.AddRow()
	for _, h := range headers {
		hdr.AddCell().SetString(h)
	}

	for _, sc := range scores {
		row := sheet.AddRow()
		row.AddCell().SetString(sc.ParkID)
		row.AddCell().SetString(sc.Name)
		row.AddCell().SetFloat(sc.Acres)
		setFloat(row, sc.HeatMean)
		setFloat(row, sc.HeatHaz)
		row.AddCell().SetFloat(sc.CoastalHaz)
		row.AddCell().SetFloat(sc.StormHaz)
		row.AddCell().SetFloat(sc.HeatVuln)
		row.AddCell().SetFloat(sc.FloodVuln)
		row.AddCell().SetFloat(sc.EstInvTotal)
		row.AddCell().SetFloat(sc.InvNorm)
		setFloat(row, sc.HazardFactor)
		setFloat(row, sc.VulFactor)
		setFloat(row, sc.Suitability)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func setFloat(row *xlsx.Row, f model.Float) {
	cell := row.AddCell()
	if f.Valid {
		cell.SetFloat(f.V)
	}
}
