package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/daemon/control"
	"github.com/gunlicence/licensedesk/internal/models"
)

type fakeFeed struct {
	release *models.Release
	calls   atomic.Int32
}

func (f *fakeFeed) Latest(context.Context, string) (*models.Release, error) {
	f.calls.Add(1)
	if f.release == nil {
		return nil, nil
	}
	rel := *f.release
	return &rel, nil
}

type noopDownloader struct{}

func (noopDownloader) Download(context.Context, models.Release, func(models.Progress)) (string, error) {
	return "", nil
}

type noopInstaller struct{}

func (noopInstaller) Apply(context.Context, string) error { return nil }
func (noopInstaller) Stage(string) error                  { return nil }

type testServer struct {
	*Server
	feed      *fakeFeed
	shutdowns *atomic.Int32
}

func writeSettings(t *testing.T, mutate func(*models.Settings)) {
	t.Helper()
	s := models.NewSettings()
	mutate(s)
	require.NoError(t, config.SaveSettings(s))
}

func newTestServer(t *testing.T, rel *models.Release) *testServer {
	t.Helper()
	feed := &fakeFeed{release: rel}
	var shutdowns atomic.Int32
	srv, err := New(Options{
		Version:    "1.0.0",
		Feed:       feed,
		Downloader: noopDownloader{},
		Installer:  noopInstaller{},
		OnShutdown: func() { shutdowns.Add(1) },
	})
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(srv.Stop)
	return &testServer{Server: srv, feed: feed, shutdowns: &shutdowns}
}

func waitState(t *testing.T, srv *Server, want models.UpdateState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return srv.Snapshot().State == want
	}, 5*time.Second, 5*time.Millisecond, "want state %s", want)
}

func TestServer_StartupCheckPersistsLastChecked(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	srv := newTestServer(t, &models.Release{Version: "2.0.0"})

	waitState(t, srv.Server, models.StateAwaitingDownloadConfirmation)
	assert.Equal(t, int32(1), srv.feed.calls.Load())

	require.Eventually(t, func() bool {
		s, err := config.LoadSettings()
		return err == nil && s.Updates.LastChecked != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_StartupCheckHonorsFrequency(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	now := time.Now().UTC()
	writeSettings(t, func(s *models.Settings) {
		s.Updates.CheckFrequency = models.CheckDaily
		s.Updates.LastChecked = &now
	})

	srv := newTestServer(t, &models.Release{Version: "2.0.0"})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), srv.feed.calls.Load())
	assert.Equal(t, models.StateIdle, srv.Snapshot().State)
}

func TestServer_LastDisplayDetachCancels(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	srv := newTestServer(t, &models.Release{Version: "2.0.0"})
	waitState(t, srv.Server, models.StateAwaitingDownloadConfirmation)

	detachTray := srv.UpdateBridge().Attach()
	srv.DisplayAttached()
	srv.DisplayDetached()
	assert.Equal(t, models.StateAwaitingDownloadConfirmation, srv.Snapshot().State, "tray still attached")

	detachTray()
	assert.Equal(t, 0, srv.Displays())
	waitState(t, srv.Server, models.StateIdle)
}

func TestServer_LastDetachKeepsReadyUpdate(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	srv := newTestServer(t, &models.Release{Version: "2.0.0"})
	waitState(t, srv.Server, models.StateAwaitingDownloadConfirmation)

	client, err := bridge.Dial(fmt.Sprintf("localhost:%d", srv.Port()))
	require.NoError(t, err)
	sub, err := client.Subscribe(bridge.ChannelUpdateDownloaded, func(bridge.Event) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Displays() == 1 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.ConfirmDownload(ctx))
	waitState(t, srv.Server, models.StateReadyToInstall)

	sub.Unsubscribe()
	require.NoError(t, client.Close())
	require.Eventually(t, func() bool { return srv.Displays() == 0 }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, models.StateReadyToInstall, srv.Snapshot().State)
}

func TestServer_ReloadsSettings(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	srv := newTestServer(t, nil)
	waitState(t, srv.Server, models.StateUpToDate)
	require.Eventually(t, func() bool {
		s, err := config.LoadSettings()
		return err == nil && s.Updates.LastChecked != nil
	}, 5*time.Second, 10*time.Millisecond)

	writeSettings(t, func(s *models.Settings) {
		s.Updates.MaxCheckRetries = 7
		s.Updates.AutoInstallOnQuit = true
	})

	require.Eventually(t, func() bool {
		cfg := srv.Coordinator().Config()
		return cfg.MaxCheckRetries == 7 && cfg.AutoInstallOnQuit
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServer_RestartIntoRequestsShutdown(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	srv := newTestServer(t, nil)

	path := filepath.Join(t.TempDir(), "licensedeskd")
	require.NoError(t, srv.restartInto(path))
	assert.Equal(t, path, srv.RelaunchPath())
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}

func TestServer_ServesBridgeAndControl(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	writeSettings(t, func(s *models.Settings) { s.Updates.CheckOnStartup = false })
	srv := newTestServer(t, &models.Release{Version: "2.0.0"})
	addr := fmt.Sprintf("localhost:%d", srv.Port())

	client, err := bridge.Dial(addr)
	require.NoError(t, err)
	defer client.Close()

	var got atomic.Int32
	sub, err := client.Subscribe(bridge.ChannelUpdateAvailable, func(bridge.Event) { got.Add(1) })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.Eventually(t, client.Connected, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return srv.Displays() == 1 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.CheckForUpdates(ctx))
	require.Eventually(t, func() bool { return got.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(bridge.CodecName)))
	require.NoError(t, err)
	defer conn.Close()

	status, err := control.NewClient(conn).GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Equal(t, int32(srv.Port()), status.Port)
	assert.Equal(t, int32(1), status.Displays)
	assert.Equal(t, models.StateAwaitingDownloadConfirmation, status.Update.State)
	require.NotNil(t, status.Update.Release)
	assert.Equal(t, "2.0.0", status.Update.Release.Version)

	require.NoError(t, control.NewClient(conn).Shutdown(ctx))
	assert.Equal(t, int32(1), srv.shutdowns.Load())
}
