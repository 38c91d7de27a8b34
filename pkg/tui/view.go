package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gcodeview/pkg/analyzer"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().
				PaddingLeft(2).
				Foreground(lipgloss.Color("205"))

	unselectedItemStyle = lipgloss.NewStyle().
				PaddingLeft(4).
				Foreground(lipgloss.Color("240"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	detailStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("63"))
)

func (m AppModel) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("gcodeview  "+m.Filename) + "\n\n")

	if m.Err != nil {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.Err)) + "\n\n")
		sb.WriteString(dimStyle.Render("  q: quit") + "\n")
		return sb.String()
	}

	if m.Stage != StageDone {
		sb.WriteString(m.progressView())
		sb.WriteString("\n" + dimStyle.Render("  q: quit") + "\n")
		return sb.String()
	}

	sb.WriteString(m.summaryView() + "\n\n")

	left := m.heightList()
	right := detailStyle.Width(m.Details.Width).Render(m.Details.View())
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	sb.WriteString("\n" + dimStyle.Render("  ↑/↓: select height  r: toggle full report  q: quit") + "\n")
	return sb.String()
}

func (m AppModel) progressView() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s\n", labelStyle.Render("Parse  "), m.Bar.ViewAs(m.ParsePercent/100))
	fmt.Fprintf(&sb, "  %s  %s\n", labelStyle.Render("Analyze"), m.Bar.ViewAs(m.AnalyzePercent/100))
	fmt.Fprintf(&sb, "\n  %s...  layers: %d  print time so far: %s\n",
		m.Stage, m.Layers, analyzer.FormatDuration(m.PrintTime))
	if n := len(m.Warnings); n > 0 {
		last := m.Warnings[n-1]
		sb.WriteString(warnStyle.Render(fmt.Sprintf("  %d warnings, last at line %d: %s", n, last.Line, last.Message)) + "\n")
	}
	return sb.String()
}

func (m AppModel) summaryView() string {
	res := m.Result
	if res == nil {
		return dimStyle.Render("  no result")
	}
	rows := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Print time"), analyzer.FormatDuration(res.PrintTime)),
		fmt.Sprintf("%s %.2f mm", labelStyle.Render("Filament"), res.Filament()),
		fmt.Sprintf("%s %d/%d", labelStyle.Render("Layers"), res.LayerCount, res.LayerTotal),
		fmt.Sprintf("%s %s", labelStyle.Render("Layer height"), res.LayerHeight),
	}
	summary := "  " + strings.Join(rows, "   ")
	if res.Anomalies > 0 || len(m.Warnings) > 0 {
		summary += "\n  " + warnStyle.Render(fmt.Sprintf("%d anomalies, %d warnings", res.Anomalies, len(m.Warnings)))
	}
	return summary
}

// heightList renders the Z buckets around the selection.
func (m AppModel) heightList() string {
	if m.Result == nil || len(m.Result.ByZ) == 0 {
		return dimStyle.Render("  no extrusion")
	}
	visible := m.Details.Height
	if visible < 5 {
		visible = 5
	}
	start := m.SelectedIdx - visible/2
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(m.Result.ByZ) {
		end = len(m.Result.ByZ)
	}

	var lines []string
	for i := start; i < end; i++ {
		z := m.Result.ByZ[i]
		text := fmt.Sprintf("Z %8.3f  %s", z.Z, analyzer.FormatDuration(z.PrintTime))
		if i == m.SelectedIdx {
			lines = append(lines, selectedItemStyle.Render("> "+text))
		} else {
			lines = append(lines, unselectedItemStyle.Render(text))
		}
	}
	return strings.Join(lines, "\n")
}

func zDetails(z *analyzer.ZStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Z %.3f\n\n", z.Z)
	fmt.Fprintf(&sb, "Print time: %s\n", analyzer.FormatDuration(z.PrintTime))
	for _, t := range analyzer.Tools(z.Filament) {
		fmt.Fprintf(&sb, "Filament T%d: %.2f mm\n", t, z.Filament[t])
	}
	sb.WriteString("\nSpeeds\n")
	for _, c := range []analyzer.Class{analyzer.ClassExtrude, analyzer.ClassRetract, analyzer.ClassMove} {
		speeds := z.Speeds.Of(c)
		parts := make([]string, len(speeds))
		for i, s := range speeds {
			parts[i] = fmt.Sprintf("%g", s)
		}
		fmt.Fprintf(&sb, "  %-8s %s\n", c, strings.Join(parts, ", "))
	}
	return sb.String()
}
