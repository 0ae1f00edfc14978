package models

import "time"

// ReportData is everything the renderer needs for one dashboard.
type ReportData struct {
	RunDate   time.Time
	Term      TermInfo
	WorstTerm int
	LogoText  string

	Worst  []PartDaySummary
	Normal []PartDaySummary

	WorstLotCount  int
	NormalLotCount int
	TotalLots      int

	Comments     map[string]string
	TrendRemarks map[string]string
	CommentState string
}
