package dashboard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defect-dashboard/models"
	"defect-dashboard/services"
	"defect-dashboard/storage"
	"defect-dashboard/utils"
)

var runDate = time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local)

type memoryReader struct {
	tables map[string]*storage.Table
}

func (m *memoryReader) FetchTable(_ context.Context, name string) (*storage.Table, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, errors.New("no such table: " + name)
	}
	return t, nil
}

func (m *memoryReader) Close() error { return nil }

type countingGenerator struct {
	calls int
	fail  func(call int) error
}

func (c *countingGenerator) Generate(_ context.Context, model, _ string) (string, error) {
	c.calls++
	if c.fail != nil {
		if err := c.fail(c.calls); err != nil {
			return "", err
		}
	}
	return "【評価】問題なし", nil
}

type fakePDF struct {
	err      error
	exported []string
}

func (f *fakePDF) Export(_ context.Context, htmlPath, pdfPath string) error {
	if f.err != nil {
		return f.err
	}
	f.exported = append(f.exported, pdfPath)
	return nil
}

func makeTable(name string, cols []string, rows ...[]any) *storage.Table {
	t := &storage.Table{Name: name, Columns: cols}
	for _, r := range rows {
		row := make(storage.Row, len(cols))
		for i, c := range cols {
			row[c] = r[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func scenario() (*memoryReader, *memoryReader) {
	ins := makeTable("inspections", []string{"lot_id", "part_number", "machine_id", "instruction_date", "quantity"},
		[]any{"L1", "P1", "M1", runDate, int64(100)},
		[]any{"L2", "W1", "M2", runDate, int64(400)},
		[]any{"L3", "P2", "M1", runDate, int64(1000)},
		[]any{"L0", "P1", "M1", runDate.AddDate(0, 0, -30), int64(100)},
	)
	def := makeTable("defects", []string{"lot_id", "part_number", "record_date", "scratch", "dent"},
		[]any{"L1", "P1", runDate, int64(5), int64(0)},
		[]any{"L3", "P2", runDate, int64(1), int64(0)},
		[]any{"L0", "P1", runDate.AddDate(0, 0, -30), int64(2), int64(1)},
	)
	products := makeTable("products", []string{"製品番号", "製品名", "客先名"},
		[]any{"P1", "ｼｬﾌﾄ", "B社"},
	)
	return &memoryReader{tables: map[string]*storage.Table{"inspections": ins}},
		&memoryReader{tables: map[string]*storage.Table{"defects": def, "products": products}}
}

func newTestGenerator(t *testing.T, gen services.CommentGenerator, mutate func(*Deps, *Options)) (*Generator, string) {
	t.Helper()
	dir := t.TempDir()
	writer, err := storage.NewReportWriter(dir)
	require.NoError(t, err)

	ins, def := scenario()
	deps := Deps{
		Inspections: ins,
		Defects:     def,
		Writer:      writer,
		Registry: services.NewWorstRegistry(41, []models.WorstPart{
			{PartNumber: "W1", Name: "ﾎﾝﾀｲ", Customer: "A社", MajorDefects: "内径寸法"},
		}),
		Terms: services.NewTermResolver(),
	}
	if gen != nil {
		deps.NewGenerator = func(context.Context) (services.CommentGenerator, error) { return gen, nil }
	}
	opts := Options{
		InspectionTable: "inspections",
		DefectTable:     "defects",
		ProductTable:    "products",
		LogoText:        "KT",
		WriteCSV:        true,
		Comment:         services.CommentOptions{Models: []string{"m1"}},
	}
	if mutate != nil {
		mutate(&deps, &opts)
	}

	g, err := NewGenerator(deps, opts, utils.NewNopLogger())
	require.NoError(t, err)
	return g, dir
}

func TestGenerateEndToEnd(t *testing.T) {
	gen := &countingGenerator{}
	g, _ := newTestGenerator(t, gen, nil)

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)

	var p1 *models.PartDaySummary
	for i := range res.Summary.Parts {
		if res.Summary.Parts[i].PartNumber == "P1" {
			p1 = &res.Summary.Parts[i]
		}
	}
	require.NotNil(t, p1)
	assert.Equal(t, 100, p1.QuantityTotal)
	assert.Equal(t, 5, p1.DefectTotal)
	assert.InDelta(t, 0.05, p1.DefectRate, 1e-9)
	assert.Equal(t, "scratch5", p1.Breakdown)
	assert.Equal(t, "ｼｬﾌﾄ", p1.PartName)

	require.Len(t, res.Summary.Worst, 1)
	assert.Equal(t, "W1", res.Summary.Worst[0].PartNumber)
	require.Len(t, res.Summary.Normal, 1, "P2 at 0.1% stays hidden")
	assert.Equal(t, "P1", res.Summary.Normal[0].PartNumber)

	assert.Equal(t, 3, gen.calls, "every part of the day is commented")
	assert.Len(t, res.Comments, 3)
	assert.Empty(t, res.CommentStatus)

	html, err := os.ReadFile(res.HTMLPath)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.HTMLPath, "defect_dashboard_2025-03-14.html"))
	assert.Contains(t, string(html), "scratch5")
	assert.Contains(t, string(html), "41期ワースト製品")
	assert.Contains(t, string(html), "検査ロット総数: 3")

	csv, err := os.ReadFile(res.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "P1,M1,2025-03-14,100,5,0.0500,scratch5")
}

func TestGenerateQuotaLatch(t *testing.T) {
	gen := &countingGenerator{fail: func(call int) error {
		if call >= 2 {
			return services.ErrQuotaExceeded
		}
		return nil
	}}
	g, _ := newTestGenerator(t, gen, nil)

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.Equal(t, services.StatusQuotaExceeded, res.CommentStatus)
	assert.Len(t, res.Comments, 1)

	html, err := os.ReadFile(res.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), services.StatusQuotaExceeded)
	assert.Contains(t, string(html), `data-comment="missing"`)
}

func TestGenerateWithoutCommentGenerator(t *testing.T) {
	g, _ := newTestGenerator(t, nil, nil)

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, services.StatusNotConfigured, res.CommentStatus)
	assert.Empty(t, res.Comments)
}

func TestGenerateCommentsDisabled(t *testing.T) {
	gen := &countingGenerator{}
	g, _ := newTestGenerator(t, gen, func(_ *Deps, o *Options) { o.NoComments = true })

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, services.StatusDisabled, res.CommentStatus)
	assert.Zero(t, gen.calls)
}

func TestGenerateFactoryFailureIsNotFatal(t *testing.T) {
	g, _ := newTestGenerator(t, nil, func(d *Deps, _ *Options) {
		d.NewGenerator = func(context.Context) (services.CommentGenerator, error) {
			return nil, errors.New("bad credentials")
		}
	})

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Contains(t, res.CommentStatus, "bad credentials")
}

func TestGeneratePanicInEnrichmentIsContained(t *testing.T) {
	gen := &countingGenerator{fail: func(int) error { panic("boom") }}
	g, _ := newTestGenerator(t, gen, nil)

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Contains(t, res.CommentStatus, "boom")
	assert.FileExists(t, res.HTMLPath)
}

func TestGenerateMissingDateColumnFallsBack(t *testing.T) {
	g, _ := newTestGenerator(t, nil, func(d *Deps, _ *Options) {
		d.Inspections = &memoryReader{tables: map[string]*storage.Table{
			"inspections": makeTable("inspections", []string{"lot_id", "part_number", "quantity"},
				[]any{"L1", "P1", int64(100)},
			),
		}}
	})

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.True(t, res.Summary.DateMissing)
	require.Len(t, res.Summary.Normal, 1)
	assert.Equal(t, 5, res.Summary.Normal[0].DefectTotal)
	assert.Equal(t, 1, res.Summary.LotCount)
}

func TestGenerateMissingLotColumnIsFatal(t *testing.T) {
	g, _ := newTestGenerator(t, nil, func(d *Deps, _ *Options) {
		d.Inspections = &memoryReader{tables: map[string]*storage.Table{
			"inspections": makeTable("inspections", []string{"part_number"}, []any{"P1"}),
		}}
	})

	_, err := g.Generate(context.Background(), runDate)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrMissingColumn)
}

func TestGenerateMissingProductMasterIsWarning(t *testing.T) {
	g, _ := newTestGenerator(t, nil, func(_ *Deps, o *Options) { o.ProductTable = "no_such_table" })

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	for _, p := range res.Summary.Parts {
		if p.PartNumber == "P1" {
			assert.Empty(t, p.PartName)
		}
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	g, _ := newTestGenerator(t, nil, nil)

	first, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	firstHTML, err := os.ReadFile(first.HTMLPath)
	require.NoError(t, err)

	second, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	secondHTML, err := os.ReadFile(second.HTMLPath)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Summary, second.Summary); diff != "" {
		t.Errorf("summary changed between runs (-first +second):\n%s", diff)
	}
	assert.Equal(t, first.HTMLPath, second.HTMLPath)
	assert.Equal(t, string(firstHTML), string(secondHTML))
}

func TestGeneratePDFAndDigest(t *testing.T) {
	pdf := &fakePDF{}
	var out bytes.Buffer
	g, _ := newTestGenerator(t, nil, func(d *Deps, _ *Options) {
		d.PDF = pdf
		d.PDFPath = func(h string) string { return strings.TrimSuffix(h, ".html") + ".pdf" }
		d.Out = &out
	})

	res, err := g.Generate(context.Background(), runDate)
	require.NoError(t, err)
	assert.Equal(t, []string{res.PDFPath}, pdf.exported)
	assert.True(t, strings.HasSuffix(res.PDFPath, ".pdf"))
	assert.Contains(t, out.String(), "DEFECT DASHBOARD 2025-03-14")

	pdf.err = errors.New("chrome missing")
	res, err = g.Generate(context.Background(), runDate)
	require.NoError(t, err, "a failed PDF export only logs a warning")
	assert.Empty(t, res.PDFPath)
}
