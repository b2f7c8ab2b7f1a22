package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/display"
)

// PanelOptions configures an UpdatePanel.
type PanelOptions struct {
	// CheckOnMount sends one check-for-updates after the first status load.
	CheckOnMount bool
	// UpToDateReset is how long "Up to date" stays before reverting.
	UpToDateReset time.Duration
}

// UpdatePanel renders the host's update session and turns key presses into
// bridge commands. It holds one subscription per event channel while mounted.
type UpdatePanel struct {
	bridge bridge.Bridge
	opts   PanelOptions

	proj    *display.Projection
	current string

	mounted bool
	subs    []bridge.Subscription

	pendingMountCheck bool
	changesSinceSeed  int
	armedToken        int

	spinner  spinner.Model
	spinning bool
	progress progress.Model
	width    int
}

// NewUpdatePanel creates an unmounted panel over b.
func NewUpdatePanel(b bridge.Bridge, opts PanelOptions) *UpdatePanel {
	if opts.UpToDateReset <= 0 {
		opts.UpToDateReset = 3 * time.Second
	}
	return &UpdatePanel{
		bridge:   b,
		opts:     opts,
		proj:     display.New(),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(busyStyle)),
		progress: progress.New(progress.WithDefaultGradient()),
		width:    60,
	}
}

// Mount subscribes to every update event. Events are handed to send as
// UpdateEventMsg. Mounting twice is a no-op.
func (p *UpdatePanel) Mount(send func(tea.Msg)) error {
	if p.mounted {
		return nil
	}
	listener := func(ev bridge.Event) {
		send(UpdateEventMsg{Event: ev})
	}
	for _, ch := range bridge.Channels {
		sub, err := p.bridge.Subscribe(ch, listener)
		if err != nil {
			p.unsubscribeAll()
			return fmt.Errorf("failed to subscribe to %s: %w", ch, err)
		}
		p.subs = append(p.subs, sub)
	}
	p.mounted = true
	p.pendingMountCheck = p.opts.CheckOnMount
	return nil
}

// Unmount removes every subscription made by Mount.
func (p *UpdatePanel) Unmount() {
	if !p.mounted {
		return
	}
	p.unsubscribeAll()
	p.mounted = false
	p.pendingMountCheck = false
}

func (p *UpdatePanel) unsubscribeAll() {
	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
}

// Mounted reports whether the panel holds its subscriptions.
func (p *UpdatePanel) Mounted() bool {
	return p.mounted
}

// Seed fetches the host's snapshot. Events and local commands that happen
// before the snapshot arrives win over it.
func (p *UpdatePanel) Seed() tea.Cmd {
	p.changesSinceSeed = 0
	return loadStatusCmd(p.bridge)
}

// Projection returns a copy of the panel's display state.
func (p *UpdatePanel) Projection() display.Projection {
	return *p.proj
}

// SetWidth sets the panel's content width.
func (p *UpdatePanel) SetWidth(w int) {
	p.width = w
}

// Update handles panel messages.
func (p *UpdatePanel) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case UpdateEventMsg:
		p.changesSinceSeed++
		if !p.proj.Apply(msg.Event) {
			return nil
		}
		cmds := []tea.Cmd{p.afterChange()}
		if msg.Event.Channel == bridge.ChannelUpdateCancelled {
			cmds = append(cmds, noticeCmd("Update cancelled"))
		}
		return tea.Batch(cmds...)

	case StatusLoadedMsg:
		var cmds []tea.Cmd
		if msg.Err != nil {
			cmds = append(cmds, errorCmd(msg.Err))
		} else {
			p.current = msg.Snapshot.CurrentVersion
			if p.changesSinceSeed == 0 {
				p.proj.FromSnapshot(msg.Snapshot)
			}
		}
		if p.pendingMountCheck {
			p.pendingMountCheck = false
			cmds = append(cmds, p.Check())
		}
		cmds = append(cmds, p.afterChange())
		return tea.Batch(cmds...)

	case commandFailedMsg:
		cmds := []tea.Cmd{errorCmd(msg.err)}
		if p.proj.CommandFailed(msg.command, msg.err.Error()) {
			p.changesSinceSeed++
			cmds = append(cmds, p.afterChange())
		}
		return tea.Batch(cmds...)

	case latestExpiredMsg:
		p.proj.ExpireLatest(msg.token)
		return nil

	case spinner.TickMsg:
		if !p.proj.Busy() {
			p.spinning = false
			return nil
		}
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		return cmd

	case tea.KeyMsg:
		return p.HandleKey(msg)
	}
	return nil
}

// HandleKey maps a key press to a bridge command.
func (p *UpdatePanel) HandleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, updateKeys.Check):
		if p.proj.Phase == display.PhaseError {
			return nil
		}
		return p.Check()

	case key.Matches(msg, updateKeys.Retry):
		if p.proj.Phase != display.PhaseError {
			return nil
		}
		return p.Check()

	case key.Matches(msg, updateKeys.Confirm):
		switch p.proj.Phase {
		case display.PhaseConfirmDownload:
			p.proj.BeginDownload()
			p.changesSinceSeed++
			return tea.Batch(confirmDownloadCmd(p.bridge), p.afterChange())
		case display.PhaseInstall:
			p.proj.BeginInstall()
			p.changesSinceSeed++
			return tea.Batch(confirmInstallCmd(p.bridge), p.afterChange())
		case display.PhaseCheck, display.PhaseLatest:
			return p.Check()
		}

	case key.Matches(msg, updateKeys.Dismiss):
		p.proj.Dismiss()
	}
	return nil
}

// Check sends check-for-updates unless a check is already showing.
func (p *UpdatePanel) Check() tea.Cmd {
	if !p.proj.BeginCheck() {
		return nil
	}
	p.changesSinceSeed++
	return tea.Batch(checkForUpdatesCmd(p.bridge), p.afterChange())
}

// afterChange arms the "Up to date" reset and keeps the spinner running
// while the host is busy.
func (p *UpdatePanel) afterChange() tea.Cmd {
	var cmds []tea.Cmd
	if p.proj.Phase == display.PhaseLatest && p.proj.LatestToken != p.armedToken {
		p.armedToken = p.proj.LatestToken
		cmds = append(cmds, expireLatestAfter(p.opts.UpToDateReset, p.armedToken))
	}
	if p.proj.Busy() && !p.spinning {
		p.spinning = true
		cmds = append(cmds, p.spinner.Tick)
	}
	return tea.Batch(cmds...)
}

// View renders the panel.
func (p *UpdatePanel) View() string {
	lines := []string{panelTitleStyle.Render("Software update")}
	if p.current != "" {
		lines = append(lines, dimStyle.Render("Installed: v"+strings.TrimPrefix(p.current, "v")), "")
	}

	proj := p.proj
	switch proj.Phase {
	case display.PhaseChecking:
		lines = append(lines, p.spinner.View()+" "+busyStyle.Render(proj.Label()))

	case display.PhaseConfirmDownload:
		lines = append(lines, actionStyle.Render("A new version is available: "+releaseVersion(proj)))
		lines = append(lines, p.notes()...)
		lines = append(lines, "", keyHint("Enter", "download "+releaseVersion(proj)))

	case display.PhaseDownloading:
		p.progress.Width = max(10, p.width-4)
		lines = append(lines,
			busyStyle.Render(proj.Label()),
			p.progress.ViewAs(proj.Percent/100),
		)
		if proj.Total > 0 {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("%s / %s",
				display.FormatBytes(proj.Transferred), display.FormatBytes(proj.Total))))
		}

	case display.PhaseInstall:
		lines = append(lines,
			latestStyle.Render(releaseVersion(proj)+" downloaded"),
			"",
			keyHint("Enter", "install now and restart"),
		)

	case display.PhaseInstalling:
		lines = append(lines, p.spinner.View()+" "+busyStyle.Render(proj.Label()))

	case display.PhaseLatest:
		lines = append(lines, latestStyle.Render("✓ Up to date"))

	case display.PhaseError:
		lines = append(lines,
			errorStyle.Render("Error: "+proj.ErrorMessage),
			"",
			keyHint("r", "retry")+"  "+keyHint("Esc", "dismiss"),
		)

	default:
		lines = append(lines, actionStyle.Render("Check for updates"), "", keyHint("c", "check now"))
	}

	if proj.Notice != "" {
		lines = append(lines, "", noticeStyle.Render(proj.Notice))
	}
	return lipgloss.NewStyle().Width(p.width).Render(strings.Join(lines, "\n"))
}

func (p *UpdatePanel) notes() []string {
	if p.proj.Release == nil || strings.TrimSpace(p.proj.Release.Notes) == "" {
		return nil
	}
	notes := strings.Split(strings.TrimSpace(p.proj.Release.Notes), "\n")
	if len(notes) > 8 {
		notes = append(notes[:8], "…")
	}
	out := []string{""}
	for _, n := range notes {
		out = append(out, notesStyle.Render("  "+n))
	}
	return out
}

func releaseVersion(proj *display.Projection) string {
	if proj.Release == nil || proj.Release.Version == "" {
		return "update"
	}
	return "v" + strings.TrimPrefix(proj.Release.Version, "v")
}

func noticeCmd(text string) tea.Cmd {
	return func() tea.Msg { return NoticeMsg{Text: text} }
}

func errorCmd(err error) tea.Cmd {
	return func() tea.Msg { return ErrorMsg{Err: err} }
}
