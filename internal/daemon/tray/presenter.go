package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/display"
)

// menu is the part of the tray the presenter draws on.
type menu interface {
	SetStatus(text string)
	SetAction(title string, enabled bool)
	SetTooltip(text string)
}

// presenter keeps the tray's update items in step with bridge events.
// Listeners run on the hub's dispatcher and clicks on the tray's click loop.
type presenter struct {
	b          bridge.Bridge
	menu       menu
	resetAfter time.Duration

	mu      sync.Mutex
	proj    *display.Projection
	current string
	subs    []bridge.Subscription
	reset   *time.Timer
}

func newPresenter(b bridge.Bridge, m menu, resetAfter time.Duration) *presenter {
	if resetAfter <= 0 {
		resetAfter = 3 * time.Second
	}
	return &presenter{b: b, menu: m, resetAfter: resetAfter, proj: display.New()}
}

// mount subscribes to every update event and seeds the menu from the
// host's snapshot.
func (p *presenter) mount(ctx context.Context) error {
	p.mu.Lock()
	if p.subs != nil {
		p.mu.Unlock()
		return nil
	}
	for _, ch := range bridge.Channels {
		sub, err := p.b.Subscribe(ch, p.handle)
		if err != nil {
			p.unsubscribeLocked()
			p.mu.Unlock()
			return fmt.Errorf("failed to subscribe to %s: %w", ch, err)
		}
		p.subs = append(p.subs, sub)
	}
	p.mu.Unlock()

	// Events may land while the status is loading; Seed keeps whichever
	// of the two is newer.
	snap, err := p.b.Status(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs == nil {
		return nil
	}
	if err != nil {
		log.Warnf("[tray] failed to load update status: %v", err)
	} else {
		p.current = snap.CurrentVersion
		p.proj.Seed(snap)
	}
	p.renderLocked()
	return nil
}

func (p *presenter) unmount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubscribeLocked()
	if p.reset != nil {
		p.reset.Stop()
		p.reset = nil
	}
}

func (p *presenter) unsubscribeLocked() {
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
}

func (p *presenter) handle(ev bridge.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proj.Apply(ev) {
		p.renderLocked()
	}
}

// click runs the action item's current command.
func (p *presenter) click() {
	p.mu.Lock()
	var send func(context.Context) error
	switch p.proj.Phase {
	case display.PhaseConfirmDownload:
		p.proj.BeginDownload()
		send = p.b.ConfirmDownload
	case display.PhaseInstall:
		p.proj.BeginInstall()
		send = p.b.ConfirmInstall
	default:
		if p.proj.BeginCheck() {
			send = p.b.CheckForUpdates
		}
	}
	p.renderLocked()
	p.mu.Unlock()

	if send == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := send(ctx); err != nil {
		log.Errorf("[tray] update command failed: %v", err)
	}
}

func (p *presenter) renderLocked() {
	status := p.statusLocked()
	p.menu.SetStatus(status)
	p.menu.SetAction(p.proj.Label(), !p.proj.Busy())
	p.menu.SetTooltip("licensedesk: " + status)

	if p.proj.Phase == display.PhaseLatest {
		token := p.proj.LatestToken
		if p.reset != nil {
			p.reset.Stop()
		}
		p.reset = time.AfterFunc(p.resetAfter, func() { p.expire(token) })
	}
}

func (p *presenter) expire(token int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.proj.ExpireLatest(token) {
		p.renderLocked()
	}
}

func (p *presenter) statusLocked() string {
	proj := p.proj
	version := "update"
	if proj.Release != nil && proj.Release.Version != "" {
		version = "v" + proj.Release.Version
	}
	switch proj.Phase {
	case display.PhaseChecking:
		return "Checking for updates…"
	case display.PhaseConfirmDownload:
		return version + " available"
	case display.PhaseDownloading:
		if proj.Total > 0 {
			return fmt.Sprintf("Downloading %d%% (%s of %s)", int(proj.Percent),
				display.FormatBytes(proj.Transferred), display.FormatBytes(proj.Total))
		}
		return fmt.Sprintf("Downloading %d%%", int(proj.Percent))
	case display.PhaseInstall:
		return version + " ready to install"
	case display.PhaseInstalling:
		return "Installing " + version + "…"
	case display.PhaseLatest:
		if p.current != "" {
			return "Up to date (v" + p.current + ")"
		}
		return "Up to date"
	case display.PhaseError:
		return "Update failed: " + proj.ErrorMessage
	}
	if p.current != "" {
		return "Version " + p.current
	}
	return "Updates"
}
