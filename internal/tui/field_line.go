package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
)

const fieldGap = "   "

// fieldLine renders one form row: the label column, then the input view
// flattened to a single line and fitted to exactly width cells.
func fieldLine(label string, labelW int, focused bool, inputView string, width int) string {
	inputW := width - labelW - len(fieldGap)
	if inputW < 10 {
		inputW = 10
	}

	flat := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, inputView)
	flat = xansi.Truncate(" "+flat, inputW-1, "…")
	if pad := inputW - xansi.StringWidth(flat); pad > 0 {
		flat += lipgloss.NewStyle().Background(colorInputBg).Render(strings.Repeat(" ", pad))
	}
	return styleLabel(focused).Width(labelW).Render(label) + fieldGap + flat
}

// wrapBlock wraps every line of s to width, keeping ANSI sequences intact.
func wrapBlock(s string, width int) string {
	if width <= 0 {
		return s
	}
	return xansi.Wrap(s, width, "")
}
