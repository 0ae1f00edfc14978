package services

import (
	"fmt"
	"io"
	"strings"

	"defect-dashboard/models"
)

// PrintDigest writes a short terminal summary of the day to w.
func PrintDigest(w io.Writer, s *models.DaySummary, comments map[string]string) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  DEFECT DASHBOARD %s\033[0m\n", s.RunDate.Format("2006-01-02"))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Lots inspected      : \033[1m%d\033[0m\n", s.LotCount)
	fmt.Fprintf(w, "  Defect rows joined  : \033[1m%d\033[0m\n", s.DefectRows)
	fmt.Fprintf(w, "  Parts               : \033[1m%d\033[0m\n", len(s.Parts))
	fmt.Fprintf(w, "  AI comments         : \033[1m%d\033[0m\n", len(comments))
	if s.DateMissing {
		fmt.Fprintf(w, "  \033[33mInspection date column missing, all rows used\033[0m\n")
	}
	fmt.Fprintln(w)

	printParts(w, "Worst parts", s.Worst, thin)
	printParts(w, "Parts over 1%", s.Normal, thin)

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

func printParts(w io.Writer, title string, parts []models.PartDaySummary, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(parts) == 0 {
		fmt.Fprintf(w, "  none\n\n")
		return
	}
	for i, p := range parts {
		color := "32"
		if p.DefectRate > NormalRateThreshold {
			color = "31"
		}
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-20s %6d pcs %4d ng \033[1;%sm%6.2f%%\033[0m\n",
			i+1, truncate(p.PartNumber, 20), p.QuantityTotal, p.DefectTotal, color, p.DefectRate*100)
	}
	fmt.Fprintln(w)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
