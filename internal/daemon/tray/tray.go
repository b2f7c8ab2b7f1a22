package tray

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/getlantern/systray"
	log "github.com/sirupsen/logrus"
)

//go:embed icon.png
var iconData []byte

var (
	state   DaemonState
	onStart func()
	onExit  func()

	portItem   *systray.MenuItem
	statusItem *systray.MenuItem
	actionItem *systray.MenuItem
	quitItem   *systray.MenuItem

	updates *presenter
	detach  func()

	// UpToDateReset is how long "Up to date" stays in the menu.
	UpToDateReset = 3 * time.Second
)

// Run starts the system tray. This blocks the calling goroutine (must be main).
// onStartFn is called when the tray is ready (launch gRPC server here).
// onExitFn is called when the tray exits (cleanup here).
func Run(s DaemonState, onStartFn, onExitFn func()) {
	state = s
	onStart = onStartFn
	onExit = onExitFn
	systray.Run(onReady, onQuit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

func onReady() {
	systray.SetTemplateIcon(iconData, iconData)
	systray.SetTooltip("licensedesk")

	header := systray.AddMenuItem("licensedesk", "")
	header.Disable()

	portItem = systray.AddMenuItem("Starting...", "")
	portItem.Disable()

	systray.AddSeparator()

	statusItem = systray.AddMenuItem("Updates", "")
	statusItem.Disable()
	actionItem = systray.AddMenuItem("Check for Updates", "Check for a newer licensedesk release")

	systray.AddSeparator()

	quitItem = systray.AddMenuItem("Quit", "Shut down licensedesk daemon")

	// Start the daemon services
	if onStart != nil {
		onStart()
	}

	if state != nil {
		portItem.SetTitle(fmt.Sprintf("Running on port: %d", state.Port()))
		mountUpdates()
	}

	go handleClicks()
}

func mountUpdates() {
	updates = newPresenter(state.UpdateBridge(), systrayMenu{}, UpToDateReset)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := updates.mount(ctx); err != nil {
		log.Errorf("[tray] %v", err)
		actionItem.Disable()
		return
	}
	// The tray is a display for the whole life of the process.
	detach = state.AttachDisplay()
}

func onQuit() {
	if updates != nil {
		updates.unmount()
	}
	// Detach after the daemon has stopped so the last detach does not
	// cancel an update that is about to be staged.
	if onExit != nil {
		onExit()
	}
	if detach != nil {
		detach()
	}
}

func handleClicks() {
	for {
		select {
		case <-actionItem.ClickedCh:
			if updates != nil {
				go updates.click()
			}

		case <-quitItem.ClickedCh:
			if state != nil {
				state.RequestShutdown()
			}
		}
	}
}

// systrayMenu draws the presenter's output on the tray items.
type systrayMenu struct{}

func (systrayMenu) SetStatus(text string) {
	statusItem.SetTitle(text)
}

func (systrayMenu) SetAction(title string, enabled bool) {
	actionItem.SetTitle(title)
	if enabled {
		actionItem.Enable()
	} else {
		actionItem.Disable()
	}
}

func (systrayMenu) SetTooltip(text string) {
	systray.SetTooltip(text)
}
