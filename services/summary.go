package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"defect-dashboard/models"
	"defect-dashboard/utils"
)

// NormalRateThreshold is the defect rate a non-registered part must exceed
// to be reported.
const NormalRateThreshold = 0.01

const (
	breakdownSeparator = "、"
	noBreakdown        = "-"
)

// SummaryService joins the run date's inspected lots with their defect
// tallies and rolls them up per part number.
type SummaryService struct {
	logger   *utils.Logger
	registry *WorstRegistry
}

// NewSummaryService creates a SummaryService partitioning on registry.
func NewSummaryService(logger *utils.Logger, registry *WorstRegistry) *SummaryService {
	return &SummaryService{logger: logger, registry: registry}
}

type groupKey struct {
	part    string
	machine string
	date    string
}

type lotGroup struct {
	key      groupKey
	date     time.Time
	qty      int
	qtySet   bool
	total    int
	totalSet bool
	kinds    map[string]int
	lots     *utils.KeySet
}

// Summarize builds the day summary for runDate.
func (s *SummaryService) Summarize(ds *models.Dataset, runDate time.Time) (*models.DaySummary, error) {
	if ds == nil {
		return nil, errors.New("summary: nil dataset")
	}
	out := &models.DaySummary{RunDate: dateOnly(runDate)}

	today := ds.Inspections
	if ds.HasInspectionDate {
		today = make([]models.InspectionRecord, 0, len(ds.Inspections))
		for _, r := range ds.Inspections {
			if !r.InstructionDate.IsZero() && sameDay(r.InstructionDate, runDate) {
				today = append(today, r)
			}
		}
		s.logger.Info("[summary] Inspection rows for %s: %d", runDate.Format("2006-01-02"), len(today))
	} else {
		out.DateMissing = true
		s.logger.Warn("[summary] Inspection source has no date column; using all %d rows", len(today))
	}

	// first occurrence of a lot wins; quantities are never summed across duplicates
	seen := utils.NewKeySet()
	lots := make(map[string]models.InspectionRecord, len(today))
	var lotOrder []models.InspectionRecord
	for _, r := range today {
		if r.LotID == "" {
			continue
		}
		if !seen.Add(r.LotID) {
			continue
		}
		lots[r.LotID] = r
		lotOrder = append(lotOrder, r)
	}
	if dropped := len(today) - len(lotOrder); dropped > 0 {
		s.logger.Info("[summary] Removed %d duplicate or unidentified lot rows", dropped)
	}
	out.LotCount = len(lotOrder)

	groups := make(map[groupKey]*lotGroup)
	var order []*lotGroup
	groupFor := func(part, machine string, date time.Time) *lotGroup {
		k := groupKey{part: part, machine: machine, date: dateKey(date)}
		g, ok := groups[k]
		if !ok {
			g = &lotGroup{key: k, date: date, kinds: make(map[string]int), lots: utils.NewKeySet()}
			groups[k] = g
			order = append(order, g)
		}
		return g
	}

	for _, lot := range lotOrder {
		if lot.PartNumber == "" {
			continue
		}
		g := groupFor(lot.PartNumber, lot.MachineID, lot.InstructionDate)
		if !g.qtySet {
			g.qty = lot.Quantity
			g.qtySet = true
		}
		g.lots.Add(lot.LotID)
	}

	for _, d := range ds.Defects {
		lot, ok := lots[d.LotID]
		if !ok {
			continue
		}
		out.DefectRows++

		part := d.PartNumber
		if part == "" {
			part = lot.PartNumber
		}
		if part == "" {
			s.logger.Debug("[summary] Defect row for lot %s has no part number; skipped", d.LotID)
			continue
		}
		machine := d.MachineID
		if machine == "" {
			machine = lot.MachineID
		}

		g := groupFor(part, machine, lot.InstructionDate)
		if !g.qtySet && d.HasQuantity {
			g.qty = d.Quantity
			g.qtySet = true
		}
		if !g.totalSet {
			g.total = d.TotalDefects
			g.totalSet = true
		}
		for k, v := range d.Kinds {
			g.kinds[k] += v
		}
		g.lots.Add(d.LotID)
	}
	s.logger.Info("[summary] Defect rows joined to today's lots: %d", out.DefectRows)

	byPart := make(map[string]*models.PartDaySummary)
	var partOrder []string
	for _, g := range order {
		lot := models.LotSummary{
			PartNumber:   g.key.part,
			MachineID:    g.key.machine,
			Date:         g.date,
			Quantity:     g.qty,
			DefectTotal:  g.total,
			DefectRate:   rate(g.total, g.qty),
			Breakdown:    formatBreakdown(g.kinds, ds.DefectKinds),
			KindCounts:   g.kinds,
			SourceLotIDs: g.lots.Keys(),
		}
		out.Breakdown = append(out.Breakdown, lot)

		p, ok := byPart[lot.PartNumber]
		if !ok {
			p = &models.PartDaySummary{PartNumber: lot.PartNumber}
			byPart[lot.PartNumber] = p
			partOrder = append(partOrder, lot.PartNumber)
		}
		p.QuantityTotal += lot.Quantity
		p.DefectTotal += lot.DefectTotal
		p.Lots = append(p.Lots, lot)
	}
	sortByRate(out.Breakdown)

	sort.Strings(partOrder)
	for _, pn := range partOrder {
		p := byPart[pn]
		p.DefectRate = rate(p.DefectTotal, p.QuantityTotal)
		sortByRate(p.Lots)
		p.Breakdown = joinBreakdowns(p.Lots)
		s.label(p, ds.Products)

		if s.registry != nil && s.registry.Contains(pn) {
			p.Worst = true
		}
		out.Parts = append(out.Parts, *p)
	}

	for _, p := range out.Parts {
		switch {
		case p.Worst:
			out.Worst = append(out.Worst, p)
		case p.DefectRate > NormalRateThreshold:
			out.Normal = append(out.Normal, p)
		}
	}
	sortPartsByRate(out.Worst)
	sortPartsByRate(out.Normal)

	s.logger.Info("[summary] %d parts (%d worst, %d over %.0f%%)",
		len(out.Parts), len(out.Worst), len(out.Normal), NormalRateThreshold*100)
	return out, nil
}

func (s *SummaryService) label(p *models.PartDaySummary, products map[string]models.Product) {
	if prod, ok := products[p.PartNumber]; ok {
		p.PartName = prod.Name
		p.Customer = prod.Customer
	}
	if s.registry == nil {
		return
	}
	if wp, ok := s.registry.Lookup(p.PartNumber); ok {
		if p.PartName == "" {
			p.PartName = wp.Name
		}
		if p.Customer == "" {
			p.Customer = wp.Customer
		}
	}
}

// formatBreakdown renders the positive kind counts in column order, e.g.
// "キズ3、バリ1". It returns "-" when nothing is positive.
func formatBreakdown(counts map[string]int, kinds []string) string {
	var parts []string
	for _, k := range kinds {
		if v := counts[k]; v > 0 {
			parts = append(parts, fmt.Sprintf("%s%d", k, v))
		}
	}
	if len(parts) == 0 {
		return noBreakdown
	}
	return strings.Join(parts, breakdownSeparator)
}

func joinBreakdowns(lots []models.LotSummary) string {
	var parts []string
	for _, l := range lots {
		if l.Breakdown != "" && l.Breakdown != noBreakdown {
			parts = append(parts, l.Breakdown)
		}
	}
	if len(parts) == 0 {
		return noBreakdown
	}
	return strings.Join(parts, " / ")
}

func rate(defects, qty int) float64 {
	if qty <= 0 {
		return 0
	}
	return float64(defects) / float64(qty)
}

func sortByRate(lots []models.LotSummary) {
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].DefectRate > lots[j].DefectRate
	})
}

func sortPartsByRate(parts []models.PartDaySummary) {
	sort.SliceStable(parts, func(i, j int) bool {
		return parts[i].DefectRate > parts[j].DefectRate
	})
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
