package dashboard

import (
	"context"
	"fmt"
	"io"
	"time"

	"defect-dashboard/models"
	"defect-dashboard/services"
	"defect-dashboard/storage"
	"defect-dashboard/utils"
)

// PDFExporter prints a written HTML report to PDF.
type PDFExporter interface {
	Export(ctx context.Context, htmlPath, pdfPath string) error
}

// GeneratorFactory builds the comment generator for one run. Returning a
// nil generator and a nil error means comments are not configured.
type GeneratorFactory func(ctx context.Context) (services.CommentGenerator, error)

// Deps are the collaborators of a Generator. Inspections, Defects and
// Writer are required.
type Deps struct {
	Inspections storage.TableReader
	// Defects also serves the product master table.
	Defects storage.TableReader
	Writer  storage.ArtifactWriter

	PDF          PDFExporter
	PDFPath      func(htmlPath string) string
	NewGenerator GeneratorFactory

	Registry *services.WorstRegistry
	Terms    *services.TermResolver
	// Out receives the console digest; nil disables it.
	Out io.Writer
}

// Options configure a Generator.
type Options struct {
	InspectionTable string
	DefectTable     string
	ProductTable    string

	LogoText     string
	TemplatePath string
	WriteCSV     bool
	NoComments   bool

	Comment services.CommentOptions
}

// Result describes the artifacts of one run.
type Result struct {
	HTMLPath      string
	CSVPath       string
	PDFPath       string
	Summary       *models.DaySummary
	Comments      map[string]string
	CommentStatus string
}

// Generator runs the dashboard pipeline for one run date.
type Generator struct {
	deps     Deps
	opts     Options
	cleaner  *services.Cleaner
	summary  *services.SummaryService
	trend    *services.TrendService
	renderer *services.Renderer
	logger   *utils.Logger
}

// NewGenerator wires a Generator. It fails only when the template cannot
// be parsed or a required dependency is missing.
func NewGenerator(deps Deps, opts Options, logger *utils.Logger) (*Generator, error) {
	if deps.Inspections == nil || deps.Defects == nil || deps.Writer == nil {
		return nil, fmt.Errorf("dashboard: inspections, defects and writer are required")
	}
	if deps.Registry == nil {
		deps.Registry = services.DefaultWorstRegistry()
	}
	if deps.Terms == nil {
		deps.Terms = services.NewTermResolver()
	}

	renderer, err := services.NewRenderer(opts.TemplatePath)
	if err != nil {
		return nil, err
	}

	return &Generator{
		deps:     deps,
		opts:     opts,
		cleaner:  services.NewCleaner(logger),
		summary:  services.NewSummaryService(logger, deps.Registry),
		trend:    services.NewTrendService(logger),
		renderer: renderer,
		logger:   logger,
	}, nil
}

// Generate builds and writes the dashboard for runDate.
func (g *Generator) Generate(ctx context.Context, runDate time.Time) (*Result, error) {
	start := time.Now()
	runDate = time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.Local)
	g.logger.Info("[dashboard] Building report for %s", runDate.Format("2006-01-02"))

	inspections, err := g.deps.Inspections.FetchTable(ctx, g.opts.InspectionTable)
	if err != nil {
		return nil, fmt.Errorf("dashboard: read inspections: %w", err)
	}
	defects, err := g.deps.Defects.FetchTable(ctx, g.opts.DefectTable)
	if err != nil {
		return nil, fmt.Errorf("dashboard: read defects: %w", err)
	}
	var products *storage.Table
	if g.opts.ProductTable != "" {
		products, err = g.deps.Defects.FetchTable(ctx, g.opts.ProductTable)
		if err != nil {
			g.logger.Warn("[dashboard] Product master unavailable, names and customers left blank: %v", err)
			products = nil
		}
	}

	ds, err := g.cleaner.Clean(inspections, defects, products)
	if err != nil {
		return nil, fmt.Errorf("dashboard: clean: %w", err)
	}

	day, err := g.summary.Summarize(ds, runDate)
	if err != nil {
		return nil, fmt.Errorf("dashboard: summarize: %w", err)
	}

	targets := make([]string, 0, len(day.Parts))
	for _, p := range day.Parts {
		targets = append(targets, p.PartNumber)
	}
	trends := g.trend.Analyze(ds, targets, runDate)

	comments, status := g.enrich(ctx, day.Parts, trends)

	data := models.ReportData{
		RunDate:        runDate,
		Term:           g.deps.Terms.Resolve(runDate),
		WorstTerm:      g.deps.Registry.Term(),
		LogoText:       g.opts.LogoText,
		Worst:          day.Worst,
		Normal:         day.Normal,
		WorstLotCount:  countLots(day.Worst),
		NormalLotCount: countLots(day.Normal),
		TotalLots:      day.LotCount,
		Comments:       comments,
		TrendRemarks:   trends.Remarks,
		CommentState:   status,
	}
	html, err := g.renderer.Render(data)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	res := &Result{Summary: day, Comments: comments, CommentStatus: status}
	res.HTMLPath, err = g.deps.Writer.WriteHTML(runDate, html)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %w", err)
	}
	g.logger.Info("[dashboard] Report written: %s", res.HTMLPath)

	if g.opts.WriteCSV {
		res.CSVPath, err = g.deps.Writer.WriteBreakdownCSV(runDate, day.Breakdown)
		if err != nil {
			return nil, fmt.Errorf("dashboard: %w", err)
		}
		g.logger.Info("[dashboard] Breakdown written: %s", res.CSVPath)
	}

	if g.deps.PDF != nil && g.deps.PDFPath != nil {
		pdfPath := g.deps.PDFPath(res.HTMLPath)
		if err := g.deps.PDF.Export(ctx, res.HTMLPath, pdfPath); err != nil {
			g.logger.Warn("[dashboard] PDF export skipped: %v", err)
		} else {
			res.PDFPath = pdfPath
		}
	}

	if g.deps.Out != nil {
		services.PrintDigest(g.deps.Out, day, comments)
	}
	g.logger.Info("[dashboard] Done in %s", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// enrich asks for AI comments. Nothing that happens here fails the run;
// problems surface as the status shown in the report.
func (g *Generator) enrich(ctx context.Context, parts []models.PartDaySummary, trends *services.TrendResult) (comments map[string]string, status string) {
	comments = make(map[string]string)
	if g.opts.NoComments {
		return comments, services.StatusDisabled
	}

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("[dashboard] Comment generation panicked: %v", r)
			status = services.StatusFailed(fmt.Errorf("panic: %v", r))
		}
	}()

	var gen services.CommentGenerator
	if g.deps.NewGenerator != nil {
		var err error
		gen, err = g.deps.NewGenerator(ctx)
		if err != nil {
			g.logger.Warn("[dashboard] Comment generator unavailable: %v", err)
			return comments, services.StatusFailed(err)
		}
	}

	svc := services.NewCommentService(gen, g.deps.Registry, g.deps.Terms, g.opts.Comment, g.logger)
	return svc.Enrich(ctx, parts, trends)
}

func countLots(parts []models.PartDaySummary) int {
	n := 0
	for _, p := range parts {
		n += len(p.Lots)
	}
	return n
}
