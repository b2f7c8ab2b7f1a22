// Package bridge relays update commands from displays to the host and update
// events from the host to displays. It carries no update logic of its own:
// every operation is a named method and every event name is on a fixed
// allow-list.
package bridge

import (
	"context"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Bridge is the display-side view of the host's update capability.
// Commands are fire-and-forget: a nil error means the command was delivered,
// not that the host acted on it.
type Bridge interface {
	CheckForUpdates(ctx context.Context) error
	ConfirmDownload(ctx context.Context) error
	ConfirmInstall(ctx context.Context) error

	// Subscribe registers fn for ch. Unknown channels fail with
	// ErrChannelNotAllowed.
	Subscribe(ch Channel, fn Listener) (Subscription, error)

	// Status returns a read-only snapshot of the host's update session.
	Status(ctx context.Context) (models.UpdateSnapshot, error)
}

// Host is the command target behind a bridge.
type Host interface {
	CheckForUpdates()
	ConfirmDownload()
	ConfirmInstall()
	Snapshot() models.UpdateSnapshot
}

// DisplayTracker is implemented by hosts that want to know when a display
// attaches or detaches.
type DisplayTracker interface {
	DisplayAttached()
	DisplayDetached()
}
