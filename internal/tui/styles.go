package tui

import "github.com/charmbracelet/lipgloss"

// Colors using AdaptiveColor for light/dark terminal support.
var (
	colorWhite  = lipgloss.AdaptiveColor{Light: "0", Dark: "15"}
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
	colorCyan   = lipgloss.AdaptiveColor{Light: "30", Dark: "45"}
)

// Layout styles.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Background(lipgloss.AdaptiveColor{Light: "235", Dark: "236"})

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWhite).
			Padding(1, 2)
)

// Update panel styles.
var (
	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			MarginBottom(1)

	actionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	busyStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	latestStyle = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(colorYellow)
	notesStyle  = lipgloss.NewStyle().Foreground(colorDim)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
)

// Badge styles for the header.
var (
	badgeIdleStyle   = lipgloss.NewStyle().Foreground(colorDim)
	badgeActiveStyle = lipgloss.NewStyle().Foreground(colorYellow).Bold(true)
	badgeReadyStyle  = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	badgeErrorStyle  = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)

// Overlay styles.
var (
	overlayStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorWhite).
			Padding(1, 2)

	overlayTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite).
				MarginBottom(1)

	overlayDimStyle = lipgloss.NewStyle().
			Foreground(colorDim)
)

// Key hint styles for status bar.
var (
	keyStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	hintStyle = lipgloss.NewStyle().Foreground(colorDim)
)
