package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/parkworks/equity-cli/internal/model"
)

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.xlsx")

	scores := []model.ParkScore{
		{
			ParkID: "P1", Name: "Harborside", Acres: 4.5,
			HeatMean: model.Value(81.2), HeatHaz: model.Value(0.4),
			CoastalHaz: 0.85, StormHaz: 0.7, HeatVuln: 1, FloodVuln: 0.5,
			EstInvTotal: 2.5e6, InvNorm: 1,
			HazardFactor: model.Value(0.66), VulFactor: model.Value(0.75),
			Suitability: model.Value(0.3525),
		},
		{
			ParkID: "P2", Name: "Uplands", Acres: 2,
			HeatMean: model.Missing(), HeatHaz: model.Missing(),
			CoastalHaz: 1, StormHaz: 1,
			HazardFactor: model.Missing(), VulFactor: model.Value(0.5),
			Suitability: model.Missing(),
		},
	}
	require.NoError(t, WriteXLSX(path, scores))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "Scores", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	hdr := sheet.Rows[0]
	require.Len(t, hdr.Cells, len(headers))
	assert.Equal(t, "Park ID", hdr.Cells[0].String())
	assert.Equal(t, "Suitability", hdr.Cells[len(headers)-1].String())

	first := sheet.Rows[1]
	assert.Equal(t, "P1", first.Cells[0].String())
	v, err := first.Cells[3].Float()
	require.NoError(t, err)
	assert.InDelta(t, 81.2, v, 1e-9)

	// Metrics that were never computed stay blank.
	second := sheet.Rows[2]
	assert.Equal(t, "P2", second.Cells[0].String())
	assert.Equal(t, "", second.Cells[3].String())
	assert.Equal(t, "", second.Cells[len(headers)-1].String())
}

func TestWriteXLSXEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteXLSX(path, nil))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 1)
}
