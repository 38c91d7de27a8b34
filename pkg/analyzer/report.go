package analyzer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gcodeview/pkg/model"
)

// FormatDuration renders seconds as "1h 02m 03s".
func FormatDuration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "-"
	}
	total := int64(math.Round(seconds))
	h, m, s := total/3600, (total/60)%60, total%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func formatAxis(a model.Axis) string {
	if !a.Finite() {
		return "-"
	}
	return fmt.Sprintf("%.2f", a.Value)
}

func formatRange(r Range) string {
	return fmt.Sprintf("%s .. %s", formatAxis(r.Min), formatAxis(r.Max))
}

// Tools returns the tool indices of a per-tool map in ascending order.
func Tools(filament map[int]float64) []int {
	tools := make([]int, 0, len(filament))
	for t := range filament {
		tools = append(tools, t)
	}
	sort.Ints(tools)
	return tools
}

func formatSpeeds(v []float64) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, s := range v {
		parts[i] = fmt.Sprintf("%g", s)
	}
	return strings.Join(parts, ", ")
}

// GenerateReport renders res as plain text. Verbose adds the per-height
// breakdown.
func GenerateReport(res *Result, title string, verbose bool) string {
	var sb strings.Builder

	if title != "" {
		sb.WriteString(title + "\n")
		sb.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	}

	fmt.Fprintf(&sb, "Print time:    %s\n", FormatDuration(res.PrintTime))
	fmt.Fprintf(&sb, "Filament:      %.2f mm\n", res.Filament())
	for _, t := range Tools(res.TotalFilament) {
		fmt.Fprintf(&sb, "  T%d:          %.2f mm\n", t, res.TotalFilament[t])
	}
	fmt.Fprintf(&sb, "Layers:        %d printed of %d\n", res.LayerCount, res.LayerTotal)
	fmt.Fprintf(&sb, "Layer height:  %s\n", formatAxis(res.LayerHeight))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Bounds X:      %s\n", formatRange(res.Bounds.X))
	fmt.Fprintf(&sb, "Bounds Y:      %s\n", formatRange(res.Bounds.Y))
	fmt.Fprintf(&sb, "Bounds Z:      %s\n", formatRange(res.Bounds.Z))
	fmt.Fprintf(&sb, "Size:          %s x %s x %s\n",
		formatAxis(res.Size.X), formatAxis(res.Size.Y), formatAxis(res.Size.Z))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Extrude speeds: %s\n", formatSpeeds(res.Speeds.Extrude))
	fmt.Fprintf(&sb, "Retract speeds: %s\n", formatSpeeds(res.Speeds.Retract))
	fmt.Fprintf(&sb, "Move speeds:    %s\n", formatSpeeds(res.Speeds.Move))

	if res.Anomalies > 0 {
		fmt.Fprintf(&sb, "\nWarning: %d moves both extruded and retracted\n", res.Anomalies)
	}

	if verbose && len(res.ByZ) > 0 {
		sb.WriteString("\nPer height:\n")
		sb.WriteString(fmt.Sprintf("  %10s  %12s  %10s\n", "Z", "Filament", "Time"))
		for _, z := range res.ByZ {
			total := 0.0
			for _, v := range z.Filament {
				total += v
			}
			fmt.Fprintf(&sb, "  %10.3f  %12.2f  %10s\n", z.Z, total, FormatDuration(z.PrintTime))
		}
	}

	return sb.String()
}
