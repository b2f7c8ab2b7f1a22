package bridge

import (
	"context"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Local is an in-process Bridge over a Hub and a Host.
type Local struct {
	host Host
	hub  *Hub
}

// NewLocal creates a bridge that forwards commands to host and serves
// subscriptions from hub.
func NewLocal(host Host, hub *Hub) *Local {
	return &Local{host: host, hub: hub}
}

func (l *Local) CheckForUpdates(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.host.CheckForUpdates()
	return nil
}

func (l *Local) ConfirmDownload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.host.ConfirmDownload()
	return nil
}

func (l *Local) ConfirmInstall(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.host.ConfirmInstall()
	return nil
}

func (l *Local) Subscribe(ch Channel, fn Listener) (Subscription, error) {
	return l.hub.Subscribe(ch, fn)
}

func (l *Local) Status(ctx context.Context) (models.UpdateSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.UpdateSnapshot{}, err
	}
	return l.host.Snapshot(), nil
}

// Attach tells a DisplayTracker host that an in-process display is ready.
// The returned func reports the detach.
func (l *Local) Attach() (detach func()) {
	t, ok := l.host.(DisplayTracker)
	if !ok {
		return func() {}
	}
	t.DisplayAttached()
	return t.DisplayDetached
}
