package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Channel names an event the host may push to displays.
type Channel string

// Event channels. Names are part of the wire contract.
const (
	ChannelUpdateAvailable    Channel = "update-available"
	ChannelUpdateNotAvailable Channel = "update-not-available"
	ChannelUpdateDownloaded   Channel = "update-downloaded"
	ChannelDownloadProgress   Channel = "download-progress"
	ChannelUpdateError        Channel = "update-error"
	ChannelUpdateCancelled    Channel = "update-cancelled"
)

// Channels is the host → display allow-list.
var Channels = []Channel{
	ChannelUpdateAvailable,
	ChannelUpdateNotAvailable,
	ChannelUpdateDownloaded,
	ChannelDownloadProgress,
	ChannelUpdateError,
	ChannelUpdateCancelled,
}

// Command names an operation a display may ask the host to perform.
type Command string

// Commands. Names are part of the wire contract.
const (
	CommandCheckForUpdates Command = "check-for-updates"
	CommandConfirmDownload Command = "confirm-download"
	CommandConfirmInstall  Command = "confirm-install"
)

// Commands is the display → host allow-list.
var Commands = []Command{
	CommandCheckForUpdates,
	CommandConfirmDownload,
	CommandConfirmInstall,
}

var (
	// ErrChannelNotAllowed is returned for event names outside the allow-list.
	ErrChannelNotAllowed = errors.New("bridge: channel not allowed")
	// ErrCommandNotAllowed is returned for command names outside the allow-list.
	ErrCommandNotAllowed = errors.New("bridge: command not allowed")
	// ErrClosed is returned when using a bridge after Close.
	ErrClosed = errors.New("bridge: closed")
)

// Valid reports whether c is on the event allow-list.
func (c Channel) Valid() bool {
	for _, ch := range Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// ParseChannel converts s to a Channel, rejecting unknown names.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrChannelNotAllowed, s)
	}
	return c, nil
}

// Valid reports whether c is on the command allow-list.
func (c Command) Valid() bool {
	for _, cmd := range Commands {
		if c == cmd {
			return true
		}
	}
	return false
}

// ParseCommand converts s to a Command, rejecting unknown names.
func ParseCommand(s string) (Command, error) {
	c := Command(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrCommandNotAllowed, s)
	}
	return c, nil
}

// RetryInfo accompanies an update-error that will be retried automatically.
type RetryInfo struct {
	Attempt   int   `json:"attempt"`
	Max       int   `json:"max"`
	BackoffMs int64 `json:"backoffMs"`
}

// Backoff returns the wait before the next attempt.
func (r RetryInfo) Backoff() time.Duration {
	return time.Duration(r.BackoffMs) * time.Millisecond
}

// Event is a single host → display notification.
type Event struct {
	Channel   Channel          `json:"channel"`
	SessionID string           `json:"sessionId,omitempty"`
	Seq       uint64           `json:"seq,omitempty"`
	Release   *models.Release  `json:"release,omitempty"`
	Progress  *models.Progress `json:"progress,omitempty"`
	Message   string           `json:"message,omitempty"`
	ErrorKind string           `json:"errorKind,omitempty"`
	Retry     *RetryInfo       `json:"retry,omitempty"`
	Time      time.Time        `json:"time"`
}

// Listener receives events for one subscription.
type Listener func(Event)

// Subscription is a registered listener. Unsubscribe removes exactly that
// listener and is safe to call more than once.
type Subscription interface {
	Unsubscribe()
}
