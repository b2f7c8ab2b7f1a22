package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gunlicence/licensedesk/internal/display"
)

func renderHeader(version string, proj display.Projection, width int) string {
	dot := lipgloss.NewStyle().Foreground(colorCyan).Render("●")
	name := lipgloss.NewStyle().Bold(true).Render("licensedesk")
	left := fmt.Sprintf(" %s %s %s", dot, name, hintStyle.Render(version))
	right := renderPhaseBadge(proj) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return headerStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

func renderPhaseBadge(proj display.Projection) string {
	switch proj.Phase {
	case display.PhaseChecking, display.PhaseInstalling:
		return badgeActiveStyle.Render("● " + proj.Label())
	case display.PhaseDownloading:
		return badgeActiveStyle.Render(fmt.Sprintf("● %d%%", int(proj.Percent)))
	case display.PhaseConfirmDownload, display.PhaseInstall:
		return badgeReadyStyle.Render("● Update ready")
	case display.PhaseLatest:
		return badgeReadyStyle.Render("● Up to date")
	case display.PhaseError:
		return badgeErrorStyle.Render("⚠ Update failed")
	default:
		return badgeIdleStyle.Render("● Idle")
	}
}
