package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ict-report/backend/internal/models"
)

var (
	passColor  = lipgloss.AdaptiveColor{Light: "#10B981", Dark: "#34D399"}
	failColor  = lipgloss.AdaptiveColor{Light: "#EF4444", Dark: "#F87171"}
	mutedColor = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}

	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(passColor)
	failStyle   = lipgloss.NewStyle().Foreground(failColor)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
)

func statusStyle(status models.UUTStatus) lipgloss.Style {
	if status == models.UUTStatusPassed {
		return passStyle
	}
	return failStyle
}

// column pads s to width. Styles are applied after padding so escape codes
// do not count toward the width.
func column(s string, width int, style lipgloss.Style) string {
	if len(s) > width-1 {
		s = s[:width-2] + "…"
	}
	pad := width - lipgloss.Width(s)
	if pad < 1 {
		pad = 1
	}
	return style.Render(s + strings.Repeat(" ", pad))
}

// printSummary writes one line per converted file and a totals line.
func printSummary(w io.Writer, results []fileResult) {
	const (
		fileWidth   = 32
		numberWidth = 9
	)

	fmt.Fprintln(w, headerStyle.Render(
		column("FILE", fileWidth, lipgloss.NewStyle())+
			column("REPORTS", numberWidth, lipgloss.NewStyle())+
			column("PASSED", numberWidth, lipgloss.NewStyle())+
			column("FAILED", numberWidth, lipgloss.NewStyle())+
			"RESULT"))

	var reports, passed, failed, broken int
	for _, r := range results {
		p, f := r.counts()
		reports += len(r.reports)
		passed += p
		failed += f

		result := passStyle.Render("ok")
		switch {
		case r.err != nil:
			broken++
			result = failStyle.Render(r.err.Error())
		case r.incomplete:
			result = mutedStyle.Render("ok, last run incomplete")
		}

		fmt.Fprintln(w,
			column(r.name, fileWidth, lipgloss.NewStyle())+
				column(fmt.Sprint(len(r.reports)), numberWidth, lipgloss.NewStyle())+
				column(fmt.Sprint(p), numberWidth, passStyle)+
				column(fmt.Sprint(f), numberWidth, failStyle)+
				result)
	}

	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf(
		"%d files, %d failed to convert, %d reports (%d passed, %d failed)",
		len(results), broken, reports, passed, failed)))
}

// reportLine renders one report for the watch feed.
func reportLine(r *models.UUTReport) string {
	return fmt.Sprintf("%s  %s  %s  %s",
		mutedStyle.Render(r.StartDateTime.Format("2006-01-02 15:04:05")),
		statusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status)),
		r.SerialNumber,
		mutedStyle.Render(fmt.Sprintf("%d steps, %.1fs, %s", r.Root.StepCount(), r.ExecutionTime, r.SourceFile)))
}
