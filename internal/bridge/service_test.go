package bridge

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gunlicence/licensedesk/internal/models"
)

type fakeHost struct {
	mu       sync.Mutex
	commands []Command
	attached int
	detached int
	snap     models.UpdateSnapshot
}

func (h *fakeHost) record(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)
}

func (h *fakeHost) CheckForUpdates() { h.record(CommandCheckForUpdates) }
func (h *fakeHost) ConfirmDownload() { h.record(CommandConfirmDownload) }
func (h *fakeHost) ConfirmInstall()  { h.record(CommandConfirmInstall) }

func (h *fakeHost) Snapshot() models.UpdateSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

func (h *fakeHost) DisplayAttached() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached++
}

func (h *fakeHost) DisplayDetached() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detached++
}

func (h *fakeHost) Commands() []Command {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Command(nil), h.commands...)
}

func (h *fakeHost) Attachments() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached, h.detached
}

func startBufconn(t *testing.T, host Host, hub *Hub) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterService(srv, NewService(host, hub))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestService_CommandsReachHost(t *testing.T) {
	host := &fakeHost{}
	hub := NewHub()
	defer hub.Close()
	client := startBufconn(t, host, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.CheckForUpdates(ctx))
	require.NoError(t, client.ConfirmDownload(ctx))
	require.NoError(t, client.ConfirmInstall(ctx))

	assert.Equal(t, []Command{CommandCheckForUpdates, CommandConfirmDownload, CommandConfirmInstall}, host.Commands())
}

func TestService_GetStatus(t *testing.T) {
	host := &fakeHost{snap: models.UpdateSnapshot{
		SessionID: "s-1",
		State:     models.StateDownloading,
		Progress:  &models.Progress{Percent: 42, TransferredBytes: 42, TotalBytes: 100},
		Release:   &models.Release{Version: "2.0.0"},
	}}
	hub := NewHub()
	defer hub.Close()
	client := startBufconn(t, host, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, host.snap, snap)
}

func TestService_StreamsEventsInOrder(t *testing.T) {
	host := &fakeHost{}
	hub := NewHub()
	defer hub.Close()
	client := startBufconn(t, host, hub)

	var c collector
	subs := make([]Subscription, 0, len(Channels))
	for _, ch := range Channels {
		sub, err := client.Subscribe(ch, c.listen)
		require.NoError(t, err)
		subs = append(subs, sub)
	}

	require.Eventually(t, client.Connected, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.TotalListeners() == len(Channels) }, time.Second, time.Millisecond)

	hub.Publish(Event{Channel: ChannelUpdateAvailable, Message: "a", Release: &models.Release{Version: "2.0.0"}})
	hub.Publish(Event{Channel: ChannelDownloadProgress, Message: "b", Progress: &models.Progress{Percent: 10}})
	hub.Publish(Event{Channel: ChannelDownloadProgress, Message: "c", Progress: &models.Progress{Percent: 90}})
	hub.Publish(Event{Channel: ChannelUpdateDownloaded, Message: "d"})

	require.Eventually(t, func() bool { return len(c.messages()) == 4 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.messages())

	c.mu.Lock()
	assert.Equal(t, "2.0.0", c.events[0].Release.Version)
	assert.Equal(t, 90.0, c.events[2].Progress.Percent)
	c.mu.Unlock()

	attached, _ := host.Attachments()
	assert.Equal(t, 1, attached, "one stream per client regardless of listener count")

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	for _, ch := range Channels {
		assert.Zero(t, client.ListenerCount(ch))
	}
}

func TestService_DetachOnClientClose(t *testing.T) {
	host := &fakeHost{}
	hub := NewHub()
	defer hub.Close()
	client := startBufconn(t, host, hub)

	_, err := client.Subscribe(ChannelUpdateError, func(Event) {})
	require.NoError(t, err)
	require.Eventually(t, client.Connected, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		_, detached := host.Attachments()
		return detached == 1
	}, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return hub.TotalListeners() == 0 }, time.Second, time.Millisecond)
}

func TestService_RejectsUnknownChannel(t *testing.T) {
	host := &fakeHost{}
	hub := NewHub()
	defer hub.Close()
	client := startBufconn(t, host, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.conn.NewStream(ctx, &subscribeStreamDesc, fullMethod(streamSubscribeEvents), grpc.CallContentSubtype(CodecName))
	require.NoError(t, err)
	require.NoError(t, stream.SendMsg(&SubscribeRequest{Channels: []string{"open-external-url"}}))
	require.NoError(t, stream.CloseSend())

	var ev Event
	err = stream.RecvMsg(&ev)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
	assert.Zero(t, hub.TotalListeners())
}

func TestClient_SubscribeRejectsUnknownChannel(t *testing.T) {
	host := &fakeHost{}
	hub := NewHub()
	defer hub.Close()
	client := startBufconn(t, host, hub)

	_, err := client.Subscribe(Channel("shell-exec"), func(Event) {})
	assert.ErrorIs(t, err, ErrChannelNotAllowed)
}
