package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"defect-dashboard/models"
	"defect-dashboard/utils"
)

// Sentinels returned instead of trend text when data is missing.
const (
	NoHistory           = "過去3年のロットデータなし"
	NoKindData          = "不具合区分データなし"
	InsufficientHistory = "過去データが少なく傾向判定できません。"
)

const (
	trendRising    = "直近3ヶ月で不良率が増加傾向です。要因の深掘りを推奨します。"
	trendImproving = "直近3ヶ月で不良率が改善傾向です。継続監視してください。"
	trendFlat      = "直近期で不良率は横ばいです。重点不具合の対策状況を確認してください。"
)

const (
	// DefaultRecentLots is how many lots the recent-lots table shows.
	DefaultRecentLots = 20
	maxKindsInSummary = 6
	historyYears      = 3
)

// TrendResult bundles the per-part history renderings for one run.
type TrendResult struct {
	History       models.History
	KindSummaries map[string]string
	Remarks       map[string]string
	Summaries     map[string]string
}

// TrendService builds 3-year defect histories for the parts of the day.
type TrendService struct {
	logger      *utils.Logger
	recentLimit int
}

// NewTrendService creates a TrendService showing DefaultRecentLots recent lots.
func NewTrendService(logger *utils.Logger) *TrendService {
	return &TrendService{logger: logger, recentLimit: DefaultRecentLots}
}

// Window returns the defect rows dated within three years of runDate. When
// the defect source has no date column every row is kept.
func (s *TrendService) Window(ds *models.Dataset, runDate time.Time) []models.DefectRecord {
	if !ds.HasDefectDate {
		s.logger.Warn("[trend] No date column in defect source; using all rows for 3-year stats")
		return ds.Defects
	}
	cutoff := dateOnly(runDate).AddDate(0, 0, -365*historyYears)
	out := make([]models.DefectRecord, 0, len(ds.Defects))
	for _, d := range ds.Defects {
		if d.RecordDate.IsZero() || d.RecordDate.Before(cutoff) {
			continue
		}
		out = append(out, d)
	}
	s.logger.Info("[trend] %d of %d defect rows fall in the 3-year window", len(out), len(ds.Defects))
	return out
}

// Analyze computes history, kind summaries, trend text and monthly remarks
// for each target part.
func (s *TrendService) Analyze(ds *models.Dataset, targets []string, runDate time.Time) *TrendResult {
	window := s.Window(ds, runDate)
	res := &TrendResult{
		History:       s.BuildHistory(window, targets),
		KindSummaries: make(map[string]string, len(targets)),
		Remarks:       make(map[string]string, len(targets)),
		Summaries:     make(map[string]string, len(targets)),
	}
	for _, pn := range targets {
		entries := res.History[pn]
		res.Summaries[pn] = TrendSummary(entries, s.recentLimit)
		res.KindSummaries[pn] = DefectKindSummary(window, ds.DefectKinds, pn)
		if len(entries) == 0 {
			res.Remarks[pn] = NoHistory
			continue
		}
		res.Remarks[pn] = TrendRemark(MonthlySeries(window, pn))
	}
	return res
}

type historyKey struct {
	part    string
	lot     string
	machine string
	date    string
}

// BuildHistory groups window rows of the target parts per lot and orders
// each part's lots chronologically.
func (s *TrendService) BuildHistory(window []models.DefectRecord, targets []string) models.History {
	wanted := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		wanted[t] = struct{}{}
	}

	index := make(map[historyKey]int)
	history := make(models.History)
	for _, d := range window {
		if _, ok := wanted[d.PartNumber]; !ok {
			continue
		}
		k := historyKey{part: d.PartNumber, lot: d.LotID, machine: d.MachineID, date: dateKey(d.RecordDate)}
		i, ok := index[k]
		if !ok {
			i = len(history[d.PartNumber])
			index[k] = i
			history[d.PartNumber] = append(history[d.PartNumber], models.LotHistoryEntry{
				LotID:     d.LotID,
				MachineID: d.MachineID,
				Date:      d.RecordDate,
			})
		}
		e := &history[d.PartNumber][i]
		e.DefectTotal += d.TotalDefects
		e.Quantity += d.Quantity
	}

	for pn, entries := range history {
		for i := range entries {
			entries[i].DefectRate = rate(entries[i].DefectTotal, entries[i].Quantity)
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Date.Before(entries[j].Date)
		})
		history[pn] = entries
	}
	return history
}

// RecentLotsTable renders the last limit entries as a fixed-width table.
func RecentLotsTable(entries []models.LotHistoryEntry, limit int) string {
	if len(entries) == 0 {
		return NoHistory
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s  %-16s  %-6s  %8s  %6s  %7s", "日付", "生産ロットID", "号機", "数量", "不良数", "不良率")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%-10s  %-16s  %-6s  %8d  %6d  %6.2f%%",
			dateKey(e.Date), e.LotID, e.MachineID, e.Quantity, e.DefectTotal, e.DefectRate*100)
	}
	return b.String()
}

// YearRollup sums quantity and defects per calendar year.
func YearRollup(entries []models.LotHistoryEntry) []string {
	type acc struct{ qty, ng int }
	years := make(map[string]*acc)
	for _, e := range entries {
		y := "unknown"
		if !e.Date.IsZero() {
			y = e.Date.Format("2006")
		}
		a, ok := years[y]
		if !ok {
			a = &acc{}
			years[y] = a
		}
		a.qty += e.Quantity
		a.ng += e.DefectTotal
	}

	keys := make([]string, 0, len(years))
	for y := range years {
		keys = append(keys, y)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, y := range keys {
		a := years[y]
		lines = append(lines, fmt.Sprintf("%s: 検査数%d / 不良数%d / 不良率%.2f%%", y, a.qty, a.ng, rate(a.ng, a.qty)*100))
	}
	return lines
}

// TrendSummary states the full period, lot count and yearly rollup before
// the recent-lots table, so the reader does not take the recent lots for
// the whole history.
func TrendSummary(entries []models.LotHistoryEntry, recentLimit int) string {
	if len(entries) == 0 {
		return NoHistory
	}

	var start, end string
	for _, e := range entries {
		d := dateKey(e.Date)
		if d == "" {
			continue
		}
		if start == "" || d < start {
			start = d
		}
		if d > end {
			end = d
		}
	}

	lines := []string{
		"【過去3年のロット推移 要約】",
		fmt.Sprintf("- 期間: %s 〜 %s", start, end),
		fmt.Sprintf("- ロット数: %d", len(entries)),
	}
	for _, l := range YearRollup(entries) {
		lines = append(lines, "- "+l)
	}
	lines = append(lines, "", fmt.Sprintf("【直近期%dロットの詳細】", recentLimit), RecentLotsTable(entries, recentLimit))
	return strings.Join(lines, "\n")
}

// DefectKindSummary lists the most frequent defect kinds of a part over the
// window with their share, e.g. "キズ: 12件 (60.0%) / バリ: 8件 (40.0%)".
func DefectKindSummary(window []models.DefectRecord, kinds []string, partNumber string) string {
	sums := make(map[string]int, len(kinds))
	found := false
	for _, d := range window {
		if d.PartNumber != partNumber {
			continue
		}
		found = true
		for k, v := range d.Kinds {
			sums[k] += v
		}
	}
	if !found || len(kinds) == 0 {
		return NoKindData
	}

	ordered := make([]string, len(kinds))
	copy(ordered, kinds)
	sort.SliceStable(ordered, func(i, j int) bool {
		return sums[ordered[i]] > sums[ordered[j]]
	})

	total := 0
	for _, k := range ordered {
		total += sums[k]
	}
	denom := float64(total)
	if total == 0 {
		denom = 1
	}

	if len(ordered) > maxKindsInSummary {
		ordered = ordered[:maxKindsInSummary]
	}
	var parts []string
	for _, k := range ordered {
		v := sums[k]
		if v <= 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %d件 (%.1f%%)", k, v, float64(v)/denom*100))
	}
	if len(parts) == 0 {
		return NoKindData
	}
	return strings.Join(parts, " / ")
}

// MonthlySeries aggregates a part's dated window rows per calendar month.
func MonthlySeries(window []models.DefectRecord, partNumber string) []models.MonthlyPoint {
	byMonth := make(map[time.Time]*models.MonthlyPoint)
	for _, d := range window {
		if d.PartNumber != partNumber || d.RecordDate.IsZero() {
			continue
		}
		m := time.Date(d.RecordDate.Year(), d.RecordDate.Month(), 1, 0, 0, 0, 0, time.Local)
		p, ok := byMonth[m]
		if !ok {
			p = &models.MonthlyPoint{Month: m}
			byMonth[m] = p
		}
		p.Quantity += d.Quantity
		p.DefectTotal += d.TotalDefects
	}

	out := make([]models.MonthlyPoint, 0, len(byMonth))
	for _, p := range byMonth {
		p.DefectRate = rate(p.DefectTotal, p.Quantity)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// TrendRemark classifies the last three months as rising, improving or flat.
func TrendRemark(series []models.MonthlyPoint) string {
	if len(series) < 3 {
		return InsufficientHistory
	}
	a, b, c := series[len(series)-3].DefectRate, series[len(series)-2].DefectRate, series[len(series)-1].DefectRate
	switch {
	case c > b && b > a:
		return trendRising
	case c < b && b < a:
		return trendImproving
	default:
		return trendFlat
	}
}
