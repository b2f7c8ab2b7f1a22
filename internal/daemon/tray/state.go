// Package tray implements the system tray icon and menu for the daemon.
package tray

import "github.com/gunlicence/licensedesk/internal/bridge"

// DaemonState provides the tray's view of the daemon.
type DaemonState interface {
	Port() int
	// UpdateBridge is the in-process bridge to the update coordinator.
	UpdateBridge() bridge.Bridge
	// AttachDisplay reports the tray as a ready display. The returned func
	// reports the detach.
	AttachDisplay() (detach func())
	RequestShutdown()
}
