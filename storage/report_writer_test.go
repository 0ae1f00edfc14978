package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defect-dashboard/models"
)

func TestWriteHTMLNamesFileByRunDate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewReportWriter(dir)
	require.NoError(t, err)

	runDate := time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local)
	path, err := w.WriteHTML(runDate, "<html>first</html>")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "defect_dashboard_2025-03-14.html"), path)

	// re-render replaces the previous artifact
	_, err = w.WriteHTML(runDate, "<html>second</html>")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>second</html>", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteBreakdownCSV(t *testing.T) {
	w, err := NewReportWriter(t.TempDir())
	require.NoError(t, err)

	runDate := time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local)
	lots := []models.LotSummary{
		{PartNumber: "P1", MachineID: "M1", Date: runDate, Quantity: 100, DefectTotal: 5, DefectRate: 0.05, Breakdown: "キズ5"},
		{PartNumber: "P2", Quantity: 0, Breakdown: "-"},
	}
	path, err := w.WriteBreakdownCSV(runDate, lots)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(raw), "\ufeff"))

	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(raw), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "品番", records[0][0])
	assert.Equal(t, []string{"P1", "M1", "2025-03-14", "100", "5", "0.0500", "キズ5"}, records[1])
	assert.Equal(t, "", records[2][2])
}
