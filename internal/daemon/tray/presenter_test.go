package tray

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/models"
)

type fakeMenu struct {
	mu      sync.Mutex
	status  string
	action  string
	enabled bool
	tooltip string
}

func (m *fakeMenu) SetStatus(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = text
}

func (m *fakeMenu) SetAction(title string, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.action, m.enabled = title, enabled
}

func (m *fakeMenu) SetTooltip(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tooltip = text
}

func (m *fakeMenu) Action() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.action, m.enabled
}

func (m *fakeMenu) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

type fakeHost struct {
	mu       sync.Mutex
	commands []bridge.Command
	snap     models.UpdateSnapshot
}

func (h *fakeHost) record(c bridge.Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, c)
}

func (h *fakeHost) CheckForUpdates() { h.record(bridge.CommandCheckForUpdates) }
func (h *fakeHost) ConfirmDownload() { h.record(bridge.CommandConfirmDownload) }
func (h *fakeHost) ConfirmInstall()  { h.record(bridge.CommandConfirmInstall) }
func (h *fakeHost) Snapshot() models.UpdateSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *fakeHost) Commands() []bridge.Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]bridge.Command(nil), h.commands...)
}

func setup(t *testing.T, snap models.UpdateSnapshot) (*presenter, *fakeMenu, *fakeHost, *bridge.Hub) {
	t.Helper()
	hub := bridge.NewHub()
	t.Cleanup(hub.Close)
	host := &fakeHost{snap: snap}
	m := &fakeMenu{}
	p := newPresenter(bridge.NewLocal(host, hub), m, 50*time.Millisecond)
	require.NoError(t, p.mount(context.Background()))
	t.Cleanup(p.unmount)
	return p, m, host, hub
}

func TestPresenter_FollowsUpdateFlow(t *testing.T) {
	p, m, host, hub := setup(t, models.UpdateSnapshot{State: models.StateIdle, CurrentVersion: "1.9.0"})

	title, enabled := m.Action()
	assert.Equal(t, "Check for Updates", title)
	assert.True(t, enabled)
	assert.Equal(t, "Version 1.9.0", m.Status())

	p.click()
	title, enabled = m.Action()
	assert.Equal(t, "Checking…", title)
	assert.False(t, enabled)

	hub.Publish(bridge.Event{Channel: bridge.ChannelUpdateAvailable, Release: &models.Release{Version: "2.0.0"}})
	hub.Flush()
	title, _ = m.Action()
	assert.Equal(t, "Download v2.0.0", title)

	p.click()
	hub.Publish(bridge.Event{Channel: bridge.ChannelDownloadProgress, Progress: &models.Progress{Percent: 42, TransferredBytes: 420, TotalBytes: 1000}})
	hub.Flush()
	title, enabled = m.Action()
	assert.Equal(t, "Downloading 42%", title)
	assert.False(t, enabled)

	hub.Publish(bridge.Event{Channel: bridge.ChannelUpdateDownloaded, Release: &models.Release{Version: "2.0.0"}})
	hub.Flush()
	title, enabled = m.Action()
	assert.Equal(t, "Install v2.0.0 and Restart", title)
	assert.True(t, enabled)

	p.click()
	assert.Equal(t, []bridge.Command{
		bridge.CommandCheckForUpdates,
		bridge.CommandConfirmDownload,
		bridge.CommandConfirmInstall,
	}, host.Commands())
}

func TestPresenter_UpToDateResets(t *testing.T) {
	_, m, _, hub := setup(t, models.UpdateSnapshot{State: models.StateIdle, CurrentVersion: "1.9.0"})

	hub.Publish(bridge.Event{Channel: bridge.ChannelUpdateNotAvailable})
	hub.Flush()
	title, _ := m.Action()
	assert.Equal(t, "Up to date", title)
	assert.Equal(t, "Up to date (v1.9.0)", m.Status())

	require.Eventually(t, func() bool {
		title, _ := m.Action()
		return title == "Check for Updates"
	}, time.Second, 5*time.Millisecond)
}

func TestPresenter_SeedsFromSnapshot(t *testing.T) {
	_, m, _, _ := setup(t, models.UpdateSnapshot{
		State:   models.StateReadyToInstall,
		Release: &models.Release{Version: "2.0.0"},
	})
	title, enabled := m.Action()
	assert.Equal(t, "Install v2.0.0 and Restart", title)
	assert.True(t, enabled)
	assert.Equal(t, "v2.0.0 ready to install", m.Status())
}

func TestPresenter_UnmountReleasesListeners(t *testing.T) {
	p, _, _, hub := setup(t, models.UpdateSnapshot{})
	assert.Equal(t, len(bridge.Channels), hub.TotalListeners())
	p.unmount()
	assert.Zero(t, hub.TotalListeners())
}

// lateHost queues events on the hub while its status is being read, as the
// coordinator does when it publishes between a subscribe and a status call.
type lateHost struct {
	fakeHost
	hub    *bridge.Hub
	queued []bridge.Event
}

func (h *lateHost) Snapshot() models.UpdateSnapshot {
	for _, ev := range h.queued {
		h.hub.Publish(ev)
	}
	return h.fakeHost.Snapshot()
}

func TestPresenter_IgnoresEventsOlderThanSnapshot(t *testing.T) {
	hub := bridge.NewHub()
	t.Cleanup(hub.Close)
	rel := &models.Release{Version: "2.0.0"}
	host := &lateHost{
		fakeHost: fakeHost{snap: models.UpdateSnapshot{
			SessionID: "s1",
			Seq:       5,
			State:     models.StateDownloading,
			Release:   rel,
			Progress:  &models.Progress{Percent: 40},
		}},
		hub: hub,
		queued: []bridge.Event{
			{Channel: bridge.ChannelUpdateAvailable, SessionID: "s1", Seq: 3, Release: rel},
			{Channel: bridge.ChannelDownloadProgress, SessionID: "s1", Seq: 4, Progress: &models.Progress{Percent: 10}},
		},
	}
	m := &fakeMenu{}
	p := newPresenter(bridge.NewLocal(host, hub), m, 50*time.Millisecond)
	require.NoError(t, p.mount(context.Background()))
	t.Cleanup(p.unmount)
	hub.Flush()

	title, enabled := m.Action()
	assert.Equal(t, "Downloading 40%", title)
	assert.False(t, enabled)

	hub.Publish(bridge.Event{Channel: bridge.ChannelUpdateDownloaded, SessionID: "s1", Seq: 6, Release: rel})
	hub.Flush()
	title, enabled = m.Action()
	assert.Equal(t, "Install v2.0.0 and Restart", title)
	assert.True(t, enabled)
}
