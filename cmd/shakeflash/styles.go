package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Terminal palette for the client commands. lipgloss drops the colors when
// stdout is not a terminal.
var (
	colorAccent = lipgloss.Color("#FFCC00")
	colorDim    = lipgloss.Color("#808080")
	colorOn     = lipgloss.Color("#00FF41")
	colorOff    = lipgloss.Color("#FF3300")
	colorEvent  = lipgloss.Color("#00AAFF")
)

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleKey    = lipgloss.NewStyle().Bold(true)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleOn     = lipgloss.NewStyle().Bold(true).Foreground(colorOn)
	styleOff    = lipgloss.NewStyle().Foreground(colorOff)
	styleEvent  = lipgloss.NewStyle().Bold(true).Foreground(colorEvent)
)

// renderTable lays out rows in columns padded to the widest cell. The first
// column is rendered with styleKey, the header with styleHeader.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style func(col int) lipgloss.Style) string {
		parts := make([]string, 0, len(cells))
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			s := style(i)
			if i < len(cells)-1 {
				s = s.Width(widths[i] + 2)
			}
			parts = append(parts, s.Render(cell))
		}
		return strings.Join(parts, "")
	}

	var b strings.Builder
	b.WriteString(line(header, func(int) lipgloss.Style { return styleHeader }))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(line(row, func(col int) lipgloss.Style {
			if col == 0 {
				return styleKey
			}
			return lipgloss.NewStyle()
		}))
		b.WriteByte('\n')
	}
	return b.String()
}

func renderTorch(on bool) string {
	if on {
		return styleOn.Render("on")
	}
	return styleOff.Render("off")
}
