package services

import (
	"fmt"
	"time"

	"defect-dashboard/models"
)

// TermResolver maps calendar dates onto numbered 12-month fiscal terms
// anchored at a fixed epoch.
type TermResolver struct {
	firstNumber int
	firstStart  time.Time
}

// NewTermResolver anchors term 41 at 2024-10-01.
func NewTermResolver() *TermResolver {
	return NewTermResolverAt(41, time.Date(2024, time.October, 1, 0, 0, 0, 0, time.Local))
}

// NewTermResolverAt anchors term number at start.
func NewTermResolverAt(number int, start time.Time) *TermResolver {
	return &TermResolver{firstNumber: number, firstStart: dateOnly(start)}
}

// Resolve returns the term containing d.
func (r *TermResolver) Resolve(d time.Time) models.TermInfo {
	months := (d.Year()-r.firstStart.Year())*12 + int(d.Month()) - int(r.firstStart.Month())
	offset := floorDiv(months, 12)
	return r.ByNumber(r.firstNumber + offset)
}

// Previous returns the term before the one containing d.
func (r *TermResolver) Previous(d time.Time) models.TermInfo {
	return r.ByNumber(r.Resolve(d).Number - 1)
}

// ByNumber returns the boundaries of term n.
func (r *TermResolver) ByNumber(n int) models.TermInfo {
	start := r.firstStart.AddDate(n-r.firstNumber, 0, 0)
	return models.TermInfo{
		Number: n,
		Start:  start,
		End:    start.AddDate(1, 0, -1),
	}
}

// TermLabel renders a term as e.g. "41期（2024/10/01〜2025/09/30）".
func TermLabel(t models.TermInfo) string {
	return fmt.Sprintf("%d期（%s〜%s）", t.Number, t.Start.Format("2006/01/02"), t.End.Format("2006/01/02"))
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
