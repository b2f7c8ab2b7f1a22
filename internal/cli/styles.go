package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Shared with the TUI palette.
var (
	fgText   = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	fgMuted  = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	fgOK     = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	fgBad    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	fgWarn   = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	fgAction = lipgloss.AdaptiveColor{Light: "166", Dark: "208"}
	fgBrand  = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
)

var (
	plain = lipgloss.NewStyle()

	styleBrand   = plain.Bold(true).Foreground(fgBrand)
	styleVersion = plain.Foreground(fgOK)
	styleLabel   = plain.Foreground(fgMuted)
	styleValue   = plain.Foreground(fgText)
	styleSuccess = plain.Foreground(fgOK)
	styleWarning = plain.Bold(true).Foreground(fgWarn)
	styleError   = plain.Bold(true).Foreground(fgBad)
	styleHint    = plain.Foreground(fgMuted)
	styleCommand = plain.Bold(true).Foreground(fgText)
	styleUpdate  = plain.Bold(true).Foreground(fgAction)
)

var (
	badgeIdle   = plain.Foreground(fgMuted)
	badgeBusy   = plain.Foreground(fgBrand)
	badgeAction = plain.Bold(true).Foreground(fgAction)
	badgeDone   = plain.Foreground(fgOK)
	badgeFailed = plain.Bold(true).Foreground(fgBad)
)

// stateBadge colours an update state by what it asks of the user.
func stateBadge(state models.UpdateState) string {
	style := badgeIdle
	switch state {
	case models.StateAwaitingDownloadConfirmation, models.StateReadyToInstall:
		style = badgeAction
	case models.StateChecking, models.StateDownloading, models.StateInstalling:
		style = badgeBusy
	case models.StateUpToDate:
		style = badgeDone
	}
	if state.Failed() {
		style = badgeFailed
	}
	return style.Render(string(state))
}
