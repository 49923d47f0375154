package tui

import (
	"fmt"
	"strings"
	"time"

	"imgpress/internal/processor"
)

type SummaryRow struct {
	Label string
	Value string
}

// ResultRows lays out a finished run for RenderSummary. Derived-format rows
// only appear when something was written.
func ResultRows(res processor.FinalResult) []SummaryRow {
	processed := fmt.Sprintf("%d/%d", res.ProcessedFiles, res.TotalFiles)
	if res.Canceled {
		processed += " (canceled)"
	}

	rows := []SummaryRow{
		{Label: "Files processed", Value: processed},
		{Label: "Original size", Value: HumanBytes(res.TotalOriginal)},
		{Label: "Optimized size", Value: HumanBytes(res.TotalOptimized)},
		{Label: "Space saved", Value: savedValue(res)},
	}
	if res.TotalWebP > 0 {
		rows = append(rows, SummaryRow{Label: "WebP output", Value: HumanBytes(res.TotalWebP)})
	}
	if res.TotalAVIF > 0 {
		rows = append(rows, SummaryRow{Label: "AVIF output", Value: HumanBytes(res.TotalAVIF)})
	}

	rows = append(rows,
		SummaryRow{Label: "Optimize time", Value: roundDuration(res.OptimizeDuration)},
		SummaryRow{Label: "WebP time", Value: roundDuration(res.WebPDuration)},
		SummaryRow{Label: "AVIF time", Value: roundDuration(res.AVIFDuration)},
		SummaryRow{Label: "Total time", Value: roundDuration(res.Duration)},
	)
	return rows
}

func savedValue(res processor.FinalResult) string {
	if res.TotalOriginal <= 0 || res.TotalOptimized <= 0 {
		return HumanBytes(res.TotalSaved)
	}
	pct := float64(res.TotalSaved) / float64(res.TotalOriginal) * 100
	return fmt.Sprintf("%s (%.1f%%)", HumanBytes(res.TotalSaved), pct)
}

func roundDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row.Label))
		valueWidth = max(valueWidth, len(row.Value))
	}

	hline := dimStyle.Render(strings.Repeat("-", labelWidth+valueWidth+3))
	lines := []string{hline}

	for _, row := range rows {
		style := valueStyle
		if row.Label == "Space saved" {
			style = savedStyle
		}
		line := fmt.Sprintf("%s | %s", labelStyle.Render(padRight(row.Label, labelWidth)), style.Render(padRight(row.Value, valueWidth)))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// HumanBytes formats a byte count with binary units.
func HumanBytes(n int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.2f GB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.2f MB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.2f KB", float64(n)/KB)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
