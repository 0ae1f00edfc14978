package services

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"defect-dashboard/models"
	"defect-dashboard/storage"
	"defect-dashboard/utils"
)

// ErrMissingColumn marks a structural problem with a source table that
// makes the run impossible.
var ErrMissingColumn = errors.New("required column missing")

// ColumnError reports which required field could not be found.
type ColumnError struct {
	Table      string
	Field      string
	Candidates []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s: table %q has none of %v (%s)", ErrMissingColumn, e.Table, e.Candidates, e.Field)
}

func (e *ColumnError) Unwrap() error { return ErrMissingColumn }

// ColumnMap lists, per logical field, the column names accepted in the
// source tables. The first name present wins.
type ColumnMap struct {
	LotID        []string
	PartNumber   []string
	MachineID    []string
	Quantity     []string
	TotalDefects []string
	Dates        []string

	ProductNumber   []string
	ProductName     []string
	ProductCustomer []string

	// Ignore holds columns that are never defect kinds even when numeric.
	Ignore []string
}

// DefaultColumnMap matches the Access tables of the inspection department
// and their English-named exports.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		LotID:        []string{"生産ロットID", "lot_id"},
		PartNumber:   []string{"品番", "part_number"},
		MachineID:    []string{"号機", "machine_id"},
		Quantity:     []string{"数量", "quantity"},
		TotalDefects: []string{"総不具合数", "total_defect_count"},
		Dates: []string{
			"指示日", "検査日", "検査日付", "日付", "実施日", "作成日",
			"instruction_date", "inspection_date", "record_date", "date",
		},
		ProductNumber:   []string{"製品番号", "part_number"},
		ProductName:     []string{"製品名", "part_name"},
		ProductCustomer: []string{"客先名", "customer"},
		Ignore: []string{
			"生産ロットID", "指示日", "検査日", "日付", "検査日付", "品番", "品名", "工程NO", "工程", "号機", "時間",
			"数量", "総不具合数", "不良率",
			"lot_id", "part_number", "part_name", "machine_id", "process", "instruction_date",
			"inspection_date", "record_date", "date", "time", "quantity", "total_defect_count", "defect_rate",
		},
	}
}

// Cleaner turns loosely typed source tables into a normalized Dataset.
type Cleaner struct {
	logger *utils.Logger
	cols   ColumnMap
	ignore map[string]struct{}
}

// NewCleaner creates a Cleaner with the default column map.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return NewCleanerWithColumns(logger, DefaultColumnMap())
}

// NewCleanerWithColumns creates a Cleaner with a custom column map.
func NewCleanerWithColumns(logger *utils.Logger, cols ColumnMap) *Cleaner {
	ignore := make(map[string]struct{}, len(cols.Ignore))
	for _, c := range cols.Ignore {
		ignore[c] = struct{}{}
	}
	return &Cleaner{logger: logger, cols: cols, ignore: ignore}
}

// Clean normalizes the inspection, defect and (optional) product master
// tables. A missing lot ID column on either source, or a part number
// column missing from both, is fatal.
func (c *Cleaner) Clean(inspections, defects, products *storage.Table) (*models.Dataset, error) {
	insLot := firstColumn(inspections, c.cols.LotID)
	if insLot == "" {
		return nil, &ColumnError{Table: inspections.Name, Field: "lot id", Candidates: c.cols.LotID}
	}
	defLot := firstColumn(defects, c.cols.LotID)
	if defLot == "" {
		return nil, &ColumnError{Table: defects.Name, Field: "lot id", Candidates: c.cols.LotID}
	}
	insPart := firstColumn(inspections, c.cols.PartNumber)
	defPart := firstColumn(defects, c.cols.PartNumber)
	if insPart == "" && defPart == "" {
		return nil, &ColumnError{Table: defects.Name, Field: "part number", Candidates: c.cols.PartNumber}
	}

	insMachine := firstColumn(inspections, c.cols.MachineID)
	defMachine := firstColumn(defects, c.cols.MachineID)
	insQty := firstColumn(inspections, c.cols.Quantity)
	defQty := firstColumn(defects, c.cols.Quantity)
	defTotal := firstColumn(defects, c.cols.TotalDefects)

	insDate := c.findDateColumn(inspections)
	defDate := c.findDateColumn(defects)
	if insDate == "" {
		c.logger.Warn("[cleaner] No date column in %s; every row counts as the run date", inspections.Name)
	}
	if defDate == "" {
		c.logger.Warn("[cleaner] No date column in %s; trend window cannot be applied", defects.Name)
	}

	ds := &models.Dataset{
		HasInspectionDate: insDate != "",
		HasDefectDate:     defDate != "",
		HasMachine:        insMachine != "" || defMachine != "",
	}

	for _, r := range inspections.Rows {
		ds.Inspections = append(ds.Inspections, models.InspectionRecord{
			LotID:           cellString(r, insLot),
			PartNumber:      cellString(r, insPart),
			MachineID:       cellString(r, insMachine),
			InstructionDate: cellDate(r, insDate),
			Quantity:        cellInt(r, insQty),
		})
	}

	ds.DefectKinds = c.detectDefectColumns(defects, defDate)
	if len(ds.DefectKinds) == 0 {
		c.logger.Warn("[cleaner] No defect-kind columns found in %s", defects.Name)
	}

	for _, r := range defects.Rows {
		rec := models.DefectRecord{
			LotID:      cellString(r, defLot),
			PartNumber: cellString(r, defPart),
			MachineID:  cellString(r, defMachine),
			RecordDate: cellDate(r, defDate),
			Kinds:      make(map[string]int, len(ds.DefectKinds)),
		}
		if defQty != "" && !isBlank(r[defQty]) {
			rec.Quantity = cellInt(r, defQty)
			rec.HasQuantity = true
		}

		sum := 0
		for _, k := range ds.DefectKinds {
			v, ok := r[k]
			if !ok || isBlank(v) {
				continue
			}
			n := toInt(v)
			rec.Kinds[k] = n
			sum += n
		}
		if defTotal != "" && !isBlank(r[defTotal]) {
			rec.TotalDefects = cellInt(r, defTotal)
		} else {
			rec.TotalDefects = sum
		}
		ds.Defects = append(ds.Defects, rec)
	}

	ds.Products = c.cleanProducts(products)

	c.logger.Info("[cleaner] %d inspection rows, %d defect rows, %d defect kinds",
		len(ds.Inspections), len(ds.Defects), len(ds.DefectKinds))
	return ds, nil
}

func (c *Cleaner) cleanProducts(t *storage.Table) map[string]models.Product {
	if t == nil {
		return nil
	}
	num := firstColumn(t, c.cols.ProductNumber)
	name := firstColumn(t, c.cols.ProductName)
	customer := firstColumn(t, c.cols.ProductCustomer)
	if num == "" || name == "" || customer == "" {
		c.logger.Warn("[cleaner] Product master %s lacks number/name/customer columns; skipping", t.Name)
		return nil
	}

	out := make(map[string]models.Product, len(t.Rows))
	for _, r := range t.Rows {
		pn := cellString(r, num)
		if pn == "" {
			continue
		}
		if _, dup := out[pn]; dup {
			continue
		}
		out[pn] = models.Product{
			PartNumber: pn,
			Name:       cellString(r, name),
			Customer:   cellString(r, customer),
		}
	}
	return out
}

// findDateColumn returns the first known date column, or failing that any
// column whose name looks like a date and whose values are all dates.
func (c *Cleaner) findDateColumn(t *storage.Table) string {
	if col := firstColumn(t, c.cols.Dates); col != "" {
		return col
	}
	for _, col := range t.Columns {
		if !strings.Contains(col, "日") && !strings.Contains(strings.ToLower(col), "date") {
			continue
		}
		if columnIsDate(t, col) {
			return col
		}
	}
	return ""
}

// detectDefectColumns returns the numeric columns that are not identifiers,
// dates or totals. When nothing qualifies the total column stands in as the
// only kind.
func (c *Cleaner) detectDefectColumns(t *storage.Table, dateCol string) []string {
	var cols []string
	for _, col := range t.Columns {
		if _, skip := c.ignore[col]; skip {
			continue
		}
		if col == dateCol || strings.HasPrefix(col, "ID") {
			continue
		}
		if columnIsNumeric(t, col) {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		if total := firstColumn(t, c.cols.TotalDefects); total != "" {
			cols = []string{total}
		}
	}
	return cols
}

func firstColumn(t *storage.Table, candidates []string) string {
	if t == nil {
		return ""
	}
	for _, c := range candidates {
		if t.HasColumn(c) {
			return c
		}
	}
	return ""
}

func columnIsNumeric(t *storage.Table, col string) bool {
	seen := false
	for _, r := range t.Rows {
		v := r[col]
		if isBlank(v) {
			continue
		}
		if !isNumber(v) {
			return false
		}
		seen = true
	}
	return seen
}

// isBlank treats NULL and empty text cells alike.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// toInt coerces a numeric cell. NUMERIC and DECIMAL values arrive from
// lib/pq as text, so "5" and "5.0" both yield 5.
func toInt(v any) int {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return int(math.Round(f))
}

func columnIsDate(t *storage.Table, col string) bool {
	seen := false
	for _, r := range t.Rows {
		v := r[col]
		if v == nil {
			continue
		}
		if _, ok := v.(time.Time); !ok {
			return false
		}
		seen = true
	}
	return seen
}

func isNumber(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case string:
		_, err := cast.ToFloat64E(strings.TrimSpace(n))
		return err == nil
	}
	return false
}

func cellString(r storage.Row, col string) string {
	if col == "" || r[col] == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(r[col]))
}

func cellInt(r storage.Row, col string) int {
	if col == "" || isBlank(r[col]) {
		return 0
	}
	return toInt(r[col])
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/1/2",
}

// cellDate parses a cell into a date-only value in local time. Unparseable
// values yield the zero time.
func cellDate(r storage.Row, col string) time.Time {
	if col == "" || r[col] == nil {
		return time.Time{}
	}
	switch v := r[col].(type) {
	case time.Time:
		return dateOnly(v)
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return dateOnly(t)
			}
		}
	}
	return time.Time{}
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
