package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"defect-dashboard/models"
)

// ReportWriter writes the dashboard artifacts of a run into one directory.
// File names are derived from the run date, so re-running a date replaces
// its previous output.
type ReportWriter struct {
	dir string
}

// NewReportWriter creates the output directory if needed.
func NewReportWriter(dir string) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}
	return &ReportWriter{dir: dir}, nil
}

// HTMLPath returns the dashboard path for runDate.
func (w *ReportWriter) HTMLPath(runDate time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("defect_dashboard_%s.html", runDate.Format("2006-01-02")))
}

// CSVPath returns the breakdown table path for runDate.
func (w *ReportWriter) CSVPath(runDate time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("defect_breakdown_%s.csv", runDate.Format("2006-01-02")))
}

// WriteHTML replaces the dashboard file for runDate.
func (w *ReportWriter) WriteHTML(runDate time.Time, html string) (string, error) {
	path := w.HTMLPath(runDate)
	if err := writeFileAtomic(path, []byte(html)); err != nil {
		return "", fmt.Errorf("report: write html: %w", err)
	}
	return path, nil
}

// WriteBreakdownCSV writes the per-lot breakdown table. The file starts with
// a UTF-8 BOM so spreadsheet tools detect the encoding.
func (w *ReportWriter) WriteBreakdownCSV(runDate time.Time, lots []models.LotSummary) (string, error) {
	path := w.CSVPath(runDate)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("report: create csv %q: %w", tmp, err)
	}

	if _, err := f.WriteString("\ufeff"); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("report: write bom: %w", err)
	}

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"品番", "号機", "指示日", "数量", "総不具合数", "不良率", "不具合内訳"}); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("report: write header: %w", err)
	}
	for _, l := range lots {
		date := ""
		if !l.Date.IsZero() {
			date = l.Date.Format("2006-01-02")
		}
		row := []string{
			l.PartNumber,
			l.MachineID,
			date,
			strconv.Itoa(l.Quantity),
			strconv.Itoa(l.DefectTotal),
			strconv.FormatFloat(l.DefectRate, 'f', 4, 64),
			l.Breakdown,
		}
		if err := cw.Write(row); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("report: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("report: flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("report: close csv: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("report: rename csv: %w", err)
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
