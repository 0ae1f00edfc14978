package services

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"defect-dashboard/models"
)

//go:embed templates/dashboard.html.tmpl
var templateFS embed.FS

// lotFlagRate is the lot defect rate above which a lot is highlighted.
const lotFlagRate = 0.01

type lotView struct {
	Machine   string
	Date      string
	Quantity  string
	Defects   string
	Rate      string
	Breakdown string
	Flagged   bool
}

type partView struct {
	PartNumber   string
	PartName     string
	Customer     string
	Quantity     string
	Defects      string
	Rate         string
	RatePositive bool
	Lots         []lotView
	Comment      string
	HasComment   bool
	Remark       string
}

type pageView struct {
	RunDate        string
	RunDateShort   string
	TermLabel      string
	WorstTerm      int
	LogoText       string
	CommentState   string
	Worst          []partView
	Normal         []partView
	WorstLotCount  string
	NormalLotCount string
	TotalLots      string
}

// Renderer fills the dashboard template. It performs no I/O after
// construction.
type Renderer struct {
	tmpl    *template.Template
	printer *message.Printer
}

// NewRenderer parses the template at path, or the embedded default when
// path is empty.
func NewRenderer(path string) (*Renderer, error) {
	var (
		tmpl *template.Template
		err  error
	)
	if path == "" {
		tmpl, err = template.ParseFS(templateFS, "templates/dashboard.html.tmpl")
	} else {
		tmpl, err = template.ParseFiles(path)
	}
	if err != nil {
		return nil, fmt.Errorf("renderer: parse template: %w", err)
	}
	return &Renderer{tmpl: tmpl, printer: message.NewPrinter(language.Japanese)}, nil
}

// Render produces the dashboard HTML. Part and lot order is taken as given.
func (r *Renderer) Render(data models.ReportData) (string, error) {
	page := pageView{
		RunDate:        data.RunDate.Format("2006-01-02"),
		RunDateShort:   fmt.Sprintf("%d/%d", int(data.RunDate.Month()), data.RunDate.Day()),
		TermLabel:      TermLabel(data.Term),
		WorstTerm:      data.WorstTerm,
		LogoText:       data.LogoText,
		CommentState:   data.CommentState,
		Worst:          r.parts(data.Worst, data),
		Normal:         r.parts(data.Normal, data),
		WorstLotCount:  r.printer.Sprintf("%d", data.WorstLotCount),
		NormalLotCount: r.printer.Sprintf("%d", data.NormalLotCount),
		TotalLots:      r.printer.Sprintf("%d", data.TotalLots),
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("renderer: execute: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) parts(parts []models.PartDaySummary, data models.ReportData) []partView {
	out := make([]partView, 0, len(parts))
	for _, p := range parts {
		key := strings.TrimSpace(p.PartNumber)
		comment := data.Comments[key]
		remark := data.TrendRemarks[key]
		if remark == "" {
			remark = NoHistory
		}

		v := partView{
			PartNumber:   p.PartNumber,
			PartName:     p.PartName,
			Customer:     p.Customer,
			Quantity:     r.printer.Sprintf("%d", p.QuantityTotal),
			Defects:      r.printer.Sprintf("%d", p.DefectTotal),
			Rate:         formatPercent(p.DefectRate),
			RatePositive: p.DefectRate > 0,
			Comment:      comment,
			HasComment:   comment != "",
			Remark:       remark,
		}
		for _, l := range p.Lots {
			lv := lotView{
				Machine:  l.MachineID,
				Quantity: r.printer.Sprintf("%d", l.Quantity),
				Defects:  r.printer.Sprintf("%d", l.DefectTotal),
				Rate:     formatPercent(l.DefectRate),
				Flagged:  l.DefectRate > lotFlagRate,
			}
			if !l.Date.IsZero() {
				lv.Date = l.Date.Format("01/02")
			}
			if l.Breakdown != noBreakdown {
				lv.Breakdown = l.Breakdown
			}
			v.Lots = append(v.Lots, lv)
		}
		out = append(out, v)
	}
	return out
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.2f%%", rate*100)
}
