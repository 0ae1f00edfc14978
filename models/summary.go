package models

import "time"

// LotSummary is one (part, machine, instruction date) group of the run date.
type LotSummary struct {
	PartNumber   string
	MachineID    string
	Date         time.Time
	Quantity     int
	DefectTotal  int
	DefectRate   float64
	Breakdown    string
	KindCounts   map[string]int
	SourceLotIDs []string
}

// PartDaySummary rolls the lot groups of one part number up for the run date.
type PartDaySummary struct {
	PartNumber    string
	PartName      string
	Customer      string
	QuantityTotal int
	DefectTotal   int
	DefectRate    float64
	Breakdown     string
	Worst         bool
	// Lots are ordered by DefectRate, highest first.
	Lots []LotSummary
}

// DaySummary is the output of the join & summary step.
type DaySummary struct {
	RunDate time.Time
	// Parts contains every part of the day, ordered by part number.
	Parts  []PartDaySummary
	Worst  []PartDaySummary
	Normal []PartDaySummary
	// Breakdown is the per-group table in summary order.
	Breakdown []LotSummary

	LotCount    int
	DefectRows  int
	DateMissing bool
}

// TermInfo describes one 12-month fiscal term.
type TermInfo struct {
	Number int
	Start  time.Time
	End    time.Time
}

// WorstPart is the static metadata of a chronic worst performer.
type WorstPart struct {
	PartNumber   string
	Name         string
	Customer     string
	MajorDefects string
}

// LotHistoryEntry is one lot of the 3-year defect history of a part.
type LotHistoryEntry struct {
	LotID       string
	MachineID   string
	Date        time.Time
	Quantity    int
	DefectTotal int
	DefectRate  float64
}

// History maps part numbers to their chronological lot history.
type History map[string][]LotHistoryEntry

// MonthlyPoint is one month of a part's defect history.
type MonthlyPoint struct {
	Month       time.Time
	Quantity    int
	DefectTotal int
	DefectRate  float64
}
