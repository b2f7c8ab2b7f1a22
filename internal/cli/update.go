package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/display"
	"github.com/gunlicence/licensedesk/internal/models"
)

var updateYes bool

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and install a newer licensedesk",
	Long: `Ask the daemon to check the release feed. When a newer release exists you
are asked before it is downloaded and again before it is installed. With
--yes both questions are answered for you.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := EnsureDaemon(); err != nil {
			return err
		}
		client, err := dialBridge()
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p := newTextPresenter(client, os.Stdin, os.Stdout, updateYes)
		return p.run(ctx)
	},
}

func init() {
	updateCmd.Flags().BoolVarP(&updateYes, "yes", "y", false, "Download and install without asking")
}

var errUpdateCancelled = errors.New("update cancelled")

// textPresenter drives one update session on a terminal.
type textPresenter struct {
	bridge bridge.Bridge
	in     *bufio.Reader
	out    io.Writer
	yes    bool

	proj        *display.Projection
	events      chan bridge.Event
	quit        chan struct{}
	lastPercent int

	// Versions already offered. An event can repeat what the snapshot
	// showed.
	downloadOffered string
	installOffered  string
}

func newTextPresenter(b bridge.Bridge, in io.Reader, out io.Writer, yes bool) *textPresenter {
	return &textPresenter{
		bridge:      b,
		in:          bufio.NewReader(in),
		out:         out,
		yes:         yes,
		proj:        display.New(),
		events:      make(chan bridge.Event, 64),
		quit:        make(chan struct{}),
		lastPercent: -1,
	}
}

// run subscribes, starts or resumes the session and follows it until there
// is nothing left to do.
func (p *textPresenter) run(ctx context.Context) error {
	for _, ch := range bridge.Channels {
		sub, err := p.bridge.Subscribe(ch, p.enqueue)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", ch, err)
		}
		defer sub.Unsubscribe()
	}
	defer close(p.quit)

	snap, err := p.status(ctx)
	if err != nil {
		return err
	}
	p.proj.FromSnapshot(snap)
	if snap.CurrentVersion != "" {
		fmt.Fprintf(p.out, "%s %s\n", styleLabel.Render("Installed:"), styleValue.Render("v"+strings.TrimPrefix(snap.CurrentVersion, "v")))
	}

	done, err := p.step(ctx)
	for !done && err == nil {
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return ctx.Err()
		case ev := <-p.events:
			if !p.proj.Apply(ev) {
				continue
			}
			done, err = p.onEvent(ctx, ev)
		}
	}
	return err
}

func (p *textPresenter) enqueue(ev bridge.Event) {
	select {
	case p.events <- ev:
	case <-p.quit:
	}
}

func (p *textPresenter) status(ctx context.Context) (models.UpdateSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	snap, err := p.bridge.Status(ctx)
	if err != nil {
		return models.UpdateSnapshot{}, fmt.Errorf("failed to get update status: %w", err)
	}
	return snap, nil
}

// step acts on the projection's current phase. It reports true once the
// session needs nothing more from this command.
func (p *textPresenter) step(ctx context.Context) (bool, error) {
	switch p.proj.Phase {
	case display.PhaseCheck, display.PhaseLatest, display.PhaseError:
		p.proj.BeginCheck()
		fmt.Fprintln(p.out, styleHint.Render("Checking for updates..."))
		return false, p.send(ctx, p.bridge.CheckForUpdates)
	case display.PhaseChecking:
		fmt.Fprintln(p.out, styleHint.Render("Checking for updates..."))
	case display.PhaseConfirmDownload:
		return p.offerDownload(ctx)
	case display.PhaseDownloading:
		p.printProgress()
	case display.PhaseInstall:
		return p.offerInstall(ctx)
	case display.PhaseInstalling:
		fmt.Fprintln(p.out, styleHint.Render("An update is already being installed."))
		return true, nil
	}
	return false, nil
}

func (p *textPresenter) onEvent(ctx context.Context, ev bridge.Event) (bool, error) {
	switch ev.Channel {
	case bridge.ChannelUpdateAvailable:
		return p.offerDownload(ctx)

	case bridge.ChannelUpdateNotAvailable:
		fmt.Fprintln(p.out, styleSuccess.Render("✓ Already up to date."))
		return true, nil

	case bridge.ChannelDownloadProgress:
		p.printProgress()

	case bridge.ChannelUpdateDownloaded:
		p.endProgress()
		return p.offerInstall(ctx)

	case bridge.ChannelUpdateError:
		p.endProgress()
		if ev.Retry != nil {
			fmt.Fprintln(p.out, styleWarning.Render("! ")+styleHint.Render(p.proj.Notice))
			return false, nil
		}
		return true, errors.New(ev.Message)

	case bridge.ChannelUpdateCancelled:
		p.endProgress()
		return true, errUpdateCancelled
	}
	return false, nil
}

func (p *textPresenter) offerDownload(ctx context.Context) (bool, error) {
	rel := p.proj.Release
	version := "the update"
	if rel != nil && rel.Version != "" {
		version = "v" + strings.TrimPrefix(rel.Version, "v")
	}
	if p.downloadOffered == version {
		return false, nil
	}
	p.downloadOffered = version
	fmt.Fprintf(p.out, "%s %s\n", styleUpdate.Render("Update available:"), styleVersion.Render(version))
	if rel != nil && strings.TrimSpace(rel.Notes) != "" {
		for _, line := range strings.Split(strings.TrimSpace(rel.Notes), "\n") {
			fmt.Fprintln(p.out, styleHint.Render("  "+line))
		}
	}
	if !p.confirm(fmt.Sprintf("Download %s?", version)) {
		fmt.Fprintln(p.out, "Update skipped.")
		return true, nil
	}
	p.proj.BeginDownload()
	return false, p.send(ctx, p.bridge.ConfirmDownload)
}

func (p *textPresenter) offerInstall(ctx context.Context) (bool, error) {
	label := p.proj.Label()
	if p.installOffered == label {
		return false, nil
	}
	p.installOffered = label
	fmt.Fprintln(p.out, styleSuccess.Render("Download complete."))
	if !p.confirm(label + "?") {
		fmt.Fprintln(p.out, "The update stays ready. Run "+styleCommand.Render("licensedesk update")+" to install it later.")
		return true, nil
	}
	p.proj.BeginInstall()
	if err := p.send(ctx, p.bridge.ConfirmInstall); err != nil {
		return true, err
	}
	fmt.Fprintln(p.out, styleSuccess.Render("Installing. licensedeskd will restart on the new version."))
	return true, nil
}

func (p *textPresenter) send(ctx context.Context, cmd func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return cmd(ctx)
}

// confirm asks a yes/no question. Anything but y/yes is a no.
func (p *textPresenter) confirm(question string) bool {
	if p.yes {
		return true
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	answer, _ := p.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func (p *textPresenter) printProgress() {
	percent := int(p.proj.Percent)
	if percent == p.lastPercent {
		return
	}
	p.lastPercent = percent
	line := p.proj.Label()
	if p.proj.Total > 0 {
		line += fmt.Sprintf(" (%s / %s)", display.FormatBytes(p.proj.Transferred), display.FormatBytes(p.proj.Total))
	}
	fmt.Fprintf(p.out, "\r%s", line)
}

func (p *textPresenter) endProgress() {
	if p.lastPercent >= 0 {
		fmt.Fprintln(p.out)
		p.lastPercent = -1
	}
}
