// Package display holds the presenter-side view of the update session,
// shared by every display surface (TUI, tray, CLI).
package display

import (
	"fmt"
	"math"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

// Phase is what a display currently offers the user.
type Phase string

// Phases.
const (
	PhaseCheck           Phase = "check"
	PhaseChecking        Phase = "checking"
	PhaseConfirmDownload Phase = "confirm-download"
	PhaseDownloading     Phase = "downloading"
	PhaseInstall         Phase = "install"
	PhaseInstalling      Phase = "installing"
	PhaseLatest          Phase = "latest"
	PhaseError           Phase = "error"
)

// Projection folds bridge events into display state. It is not safe for
// concurrent use; each surface owns its own.
type Projection struct {
	Phase       Phase
	Release     *models.Release
	Percent     float64
	Transferred int64
	Total       int64
	Attempt     int

	// ErrorMessage and ErrorKind describe the settled failure in PhaseError.
	ErrorMessage string
	ErrorKind    string

	// Notice is a transient line, e.g. an automatic retry in progress.
	Notice string

	// LatestToken changes every time PhaseLatest is entered, so a stale
	// reset timer can be recognised.
	LatestToken int

	// SessionID and Seq identify the newest host event or snapshot folded
	// in. Events that are not newer are dropped.
	SessionID string
	Seq       uint64
}

// New returns a projection in PhaseCheck.
func New() *Projection {
	return &Projection{Phase: PhaseCheck}
}

// Apply folds ev into the projection and reports whether anything changed.
// Events published before the state already folded in are ignored.
func (p *Projection) Apply(ev bridge.Event) bool {
	if p.stale(ev) || !p.apply(ev) {
		return false
	}
	if ev.Seq != 0 {
		p.SessionID, p.Seq = ev.SessionID, ev.Seq
	}
	return true
}

func (p *Projection) stale(ev bridge.Event) bool {
	return ev.Seq != 0 && ev.SessionID == p.SessionID && ev.Seq <= p.Seq
}

func (p *Projection) apply(ev bridge.Event) bool {
	switch ev.Channel {
	case bridge.ChannelUpdateAvailable:
		p.clear()
		p.Phase = PhaseConfirmDownload
		p.Release = copyRelease(ev.Release)
	case bridge.ChannelUpdateNotAvailable:
		p.clear()
		p.Phase = PhaseLatest
		p.LatestToken++
	case bridge.ChannelUpdateDownloaded:
		rel := copyRelease(ev.Release)
		if rel == nil {
			rel = p.Release
		}
		p.clear()
		p.Phase = PhaseInstall
		p.Release = rel
		p.Percent = 100
	case bridge.ChannelDownloadProgress:
		if ev.Progress == nil {
			return false
		}
		return p.applyProgress(*ev.Progress)
	case bridge.ChannelUpdateError:
		if ev.Retry != nil {
			p.Notice = fmt.Sprintf("%s (retry %d/%d in %s)", ev.Message, ev.Retry.Attempt, ev.Retry.Max, ev.Retry.Backoff())
			return true
		}
		rel := p.Release
		p.clear()
		p.Release = rel
		p.Phase = PhaseError
		p.ErrorMessage = ev.Message
		p.ErrorKind = ev.ErrorKind
	case bridge.ChannelUpdateCancelled:
		p.clear()
		p.Phase = PhaseCheck
	default:
		return false
	}
	return true
}

func (p *Projection) applyProgress(pr models.Progress) bool {
	if p.Phase != PhaseDownloading {
		p.Phase = PhaseDownloading
		p.Percent = 0
		p.Attempt = pr.Attempt
	}
	if pr.Attempt != p.Attempt {
		p.Attempt = pr.Attempt
		p.Percent = 0
	}
	percent := math.Max(0, math.Min(100, pr.Percent))
	if percent < p.Percent {
		return false
	}
	p.Percent = percent
	p.Transferred = pr.TransferredBytes
	p.Total = pr.TotalBytes
	return true
}

// Seed replaces the projection with s unless events newer than s have
// already been folded in, and reports whether it did.
func (p *Projection) Seed(s models.UpdateSnapshot) bool {
	if p.Seq != 0 && s.SessionID == p.SessionID && s.Seq < p.Seq {
		return false
	}
	p.FromSnapshot(s)
	return true
}

// FromSnapshot replaces the projection with the host's session state.
func (p *Projection) FromSnapshot(s models.UpdateSnapshot) {
	token := p.LatestToken
	*p = Projection{
		LatestToken: token,
		SessionID:   s.SessionID,
		Seq:         s.Seq,
		Release:     copyRelease(s.Release),
	}
	switch s.State {
	case models.StateChecking:
		p.Phase = PhaseChecking
	case models.StateUpToDate:
		p.Phase = PhaseLatest
		p.LatestToken++
	case models.StateAwaitingDownloadConfirmation:
		p.Phase = PhaseConfirmDownload
	case models.StateDownloading:
		p.Phase = PhaseDownloading
		if s.Progress != nil {
			p.Percent = s.Progress.Percent
			p.Transferred = s.Progress.TransferredBytes
			p.Total = s.Progress.TotalBytes
			p.Attempt = s.Progress.Attempt
		}
	case models.StateReadyToInstall:
		p.Phase = PhaseInstall
		p.Percent = 100
	case models.StateInstalling:
		p.Phase = PhaseInstalling
	case models.StateCheckFailed, models.StateDownloadFailed, models.StateInstallFailed:
		p.Phase = PhaseError
		p.ErrorMessage = s.LastError
	default:
		p.Phase = PhaseCheck
	}
}

// BeginCheck moves to PhaseChecking if a check may be requested now. The
// host enforces its own guard; this one only avoids redundant commands.
func (p *Projection) BeginCheck() bool {
	switch p.Phase {
	case PhaseCheck, PhaseLatest, PhaseError:
		p.clear()
		p.Phase = PhaseChecking
		return true
	}
	return false
}

// BeginDownload moves to PhaseDownloading if the user is being asked to
// confirm a download.
func (p *Projection) BeginDownload() bool {
	if p.Phase != PhaseConfirmDownload {
		return false
	}
	p.Phase = PhaseDownloading
	p.Percent = 0
	p.Attempt = 0
	p.Notice = ""
	return true
}

// BeginInstall moves to PhaseInstalling if a payload is ready.
func (p *Projection) BeginInstall() bool {
	if p.Phase != PhaseInstall {
		return false
	}
	p.Phase = PhaseInstalling
	return true
}

// CommandFailed settles the phase that command optimistically entered into
// PhaseError, since the host never heard it and will send nothing. It reports
// false when host events have already moved the projection on.
func (p *Projection) CommandFailed(command bridge.Command, message string) bool {
	var pending bool
	switch command {
	case bridge.CommandCheckForUpdates:
		pending = p.Phase == PhaseChecking
	case bridge.CommandConfirmDownload:
		pending = p.Phase == PhaseDownloading && p.Attempt == 0 && p.Percent == 0
	case bridge.CommandConfirmInstall:
		pending = p.Phase == PhaseInstalling
	}
	if !pending {
		return false
	}
	rel := p.Release
	p.clear()
	p.Release = rel
	p.Phase = PhaseError
	p.ErrorMessage = message
	return true
}

// ExpireLatest reverts PhaseLatest to PhaseCheck if token is still current.
func (p *Projection) ExpireLatest(token int) bool {
	if p.Phase != PhaseLatest || token != p.LatestToken {
		return false
	}
	p.Phase = PhaseCheck
	return true
}

// Dismiss clears a settled error.
func (p *Projection) Dismiss() bool {
	if p.Phase != PhaseError {
		return false
	}
	p.clear()
	p.Phase = PhaseCheck
	return true
}

// Busy reports whether the host is working and no action is offered.
func (p *Projection) Busy() bool {
	switch p.Phase {
	case PhaseChecking, PhaseDownloading, PhaseInstalling:
		return true
	}
	return false
}

// Label is the single-line action text shown for the current phase.
func (p *Projection) Label() string {
	switch p.Phase {
	case PhaseChecking:
		return "Checking…"
	case PhaseConfirmDownload:
		return "Download " + p.version()
	case PhaseDownloading:
		return fmt.Sprintf("Downloading %d%%", int(p.Percent))
	case PhaseInstall:
		return "Install " + p.version() + " and Restart"
	case PhaseInstalling:
		return "Installing…"
	case PhaseLatest:
		return "Up to date"
	case PhaseError:
		return "Retry update check"
	default:
		return "Check for Updates"
	}
}

func (p *Projection) version() string {
	if p.Release == nil || p.Release.Version == "" {
		return "update"
	}
	return "v" + p.Release.Version
}

func (p *Projection) clear() {
	*p = Projection{LatestToken: p.LatestToken, SessionID: p.SessionID, Seq: p.Seq}
}

func copyRelease(r *models.Release) *models.Release {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// FormatBytes renders n as a short human-readable size.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
