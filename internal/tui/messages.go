package tui

import (
	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// UpdateEventMsg carries one event received from the bridge.
type UpdateEventMsg struct {
	Event bridge.Event
}

// StatusLoadedMsg carries the host's session snapshot.
type StatusLoadedMsg struct {
	Snapshot models.UpdateSnapshot
	Err      error
}

// ConnectionMsg reports the event stream going up or down.
type ConnectionMsg struct {
	Connected bool
}

// ErrorMsg carries an error to display.
type ErrorMsg struct {
	Err error
}

// NoticeMsg carries a transient status bar notification.
type NoticeMsg struct {
	Text string
}

// ClearErrorMsg clears the error display.
type ClearErrorMsg struct{}

// clearNoticeMsg clears the notification if it is still the one shown.
type clearNoticeMsg struct {
	seq int
}

// commandFailedMsg reports a command that never reached the host.
type commandFailedMsg struct {
	command bridge.Command
	err     error
}

// latestExpiredMsg reverts "Up to date" to the idle affordance.
type latestExpiredMsg struct {
	token int
}
