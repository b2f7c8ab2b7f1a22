package tui

import "github.com/charmbracelet/bubbles/key"

// GlobalKeys are always active.
type GlobalKeys struct {
	Quit key.Binding
	Help key.Binding
}

var globalKeys = GlobalKeys{
	Quit: key.NewBinding(
		key.WithKeys("ctrl+q", "q"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("ctrl+h", "?"),
		key.WithHelp("?", "help"),
	),
}

// UpdateKeys drive the update panel.
type UpdateKeys struct {
	Check   key.Binding
	Confirm key.Binding
	Retry   key.Binding
	Dismiss key.Binding
}

var updateKeys = UpdateKeys{
	Check: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "check for updates"),
	),
	Confirm: key.NewBinding(
		key.WithKeys("enter", "y"),
		key.WithHelp("Enter", "confirm"),
	),
	Retry: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "retry"),
	),
	Dismiss: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("Esc", "dismiss"),
	),
}

// OverlayKeys are active when an overlay is shown.
type OverlayKeys struct {
	Close key.Binding
}

var overlayKeys = OverlayKeys{
	Close: key.NewBinding(
		key.WithKeys("esc", "ctrl+h", "?"),
		key.WithHelp("Esc", "close"),
	),
}
