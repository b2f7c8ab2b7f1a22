package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// overlay is the modal drawn over the main view, if any.
type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
)

const ansiReset = "\x1b[0m"

// renderOverlay dims base and draws box centred over it. Box lines wider
// than the screen are cut so the right edge of the view stays intact.
func renderOverlay(base, box string, width, height int) string {
	rows := strings.Split(base, "\n")
	for i, row := range rows {
		rows[i] = overlayDimStyle.Render(row)
	}

	boxRows := strings.Split(box, "\n")
	boxWidth := 0
	for _, r := range boxRows {
		boxWidth = max(boxWidth, lipgloss.Width(r))
	}
	top := max(1, (height-len(boxRows))/2)
	left := max(1, (width-boxWidth)/2)

	for i, r := range boxRows {
		y := top + i
		if y >= len(rows) {
			break
		}
		if width > left && lipgloss.Width(r) > width-left {
			r = ansi.Truncate(r, width-left, "")
		}
		rows[y] = splice(rows[y], r, left)
	}
	return strings.Join(rows, "\n")
}

// splice writes fg over bg starting at column x, keeping bg's escape codes
// on either side.
func splice(bg, fg string, x int) string {
	bgWidth := lipgloss.Width(bg)
	var b strings.Builder
	b.WriteString(ansi.Truncate(bg, x, ""))
	if pad := x - bgWidth; pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	b.WriteString(ansiReset)
	b.WriteString(fg)
	b.WriteString(ansiReset)
	if end := x + lipgloss.Width(fg); end < bgWidth {
		b.WriteString(ansi.Cut(bg, end, bgWidth))
	}
	return b.String()
}
