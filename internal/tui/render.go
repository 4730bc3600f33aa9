// SPDX-License-Identifier: MIT
package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"spectrum/internal/sink"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))

	barStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	clipStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	selStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF5F87")).
			Padding(1, 2)
)

// blocks are the eighth-height glyphs, empty to full.
var blocks = []rune(" ▁▂▃▄▅▆▇█")

// renderBars draws bars as columns height rows tall. Clipped bars are drawn
// in the warning colour and the selected bar, if any, in white.
func renderBars(bars []sink.Bar, height, barWidth, selected int) string {
	if len(bars) == 0 || height <= 0 {
		return ""
	}
	rows := make([]strings.Builder, height)
	for i, b := range bars {
		style := barStyle
		switch {
		case b.Clipped:
			style = clipStyle
		case i == selected:
			style = selStyle
		}
		eighths := int(math.Round(math.Min(1, math.Max(0, b.Value)) * float64(height*8)))
		for r := range rows {
			fill := eighths - (height-1-r)*8
			fill = min(8, max(0, fill))
			rows[r].WriteString(style.Render(strings.Repeat(string(blocks[fill]), barWidth)))
			rows[r].WriteByte(' ')
		}
	}
	lines := make([]string, height)
	for i := range rows {
		lines[i] = strings.TrimRight(rows[i].String(), " ")
	}
	return strings.Join(lines, "\n")
}

// barMarker points at bar i in a row of bars barWidth wide.
func barMarker(i, barWidth int) string {
	if i < 0 || barWidth <= 0 {
		return ""
	}
	return strings.Repeat(" ", i*(barWidth+1)) + strings.Repeat("▲", barWidth)
}

// renderWaveform draws one row of width glyphs, each the peak magnitude of
// its share of samples.
func renderWaveform(samples []int16, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) == 0 {
		return dimStyle.Render(strings.Repeat("·", width))
	}
	var sb strings.Builder
	for c := 0; c < width; c++ {
		lo := c * len(samples) / width
		hi := max((c+1)*len(samples)/width, lo+1)
		hi = min(hi, len(samples))
		var peak float64
		for _, s := range samples[lo:hi] {
			peak = math.Max(peak, math.Abs(float64(s))/32768)
		}
		sb.WriteRune(blocks[int(math.Round(peak*8))])
	}
	return barStyle.Render(sb.String())
}
