// Package server implements the gRPC server for the daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/gunlicence/licensedesk/internal/bridge"
	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/daemon/analytics"
	"github.com/gunlicence/licensedesk/internal/daemon/control"
	"github.com/gunlicence/licensedesk/internal/daemon/update"
	"github.com/gunlicence/licensedesk/internal/daemon/watcher"
	"github.com/gunlicence/licensedesk/internal/models"
	"github.com/gunlicence/licensedesk/internal/updater"
)

const shutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	// Port is the gRPC port. 0 picks a free port.
	Port int
	// WebPort overrides bridge.web_port from settings when positive.
	WebPort int
	// Version is the running host version.
	Version string

	// Feed, Downloader and Installer replace the release feed capabilities.
	// Nil uses the GitHub feed, the HTTP downloader and the binary installer.
	Feed       update.Feed
	Downloader update.Downloader
	Installer  update.Installer

	// OnShutdown is called by RequestShutdown. Nil signals the process.
	OnShutdown func()
}

// Server is the daemon's gRPC server. It owns the update coordinator and
// serves it to displays over the bridge.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	port       int

	webServer   *http.Server
	webListener net.Listener

	version    string
	startedAt  time.Time
	onShutdown func()

	hub     *bridge.Hub
	coord   *update.Coordinator
	local   *bridge.Local
	tracker *analytics.Tracker
	watcher *watcher.Watcher

	mu           sync.Mutex
	settings     *models.Settings
	displays     int
	relaunchPath string
	stopped      bool
	subs         []bridge.Subscription
	done         chan struct{}
}

// New creates a new server listening on the configured port.
func New(opts Options) (*Server, error) {
	if err := config.EnsureGlobalDir(); err != nil {
		return nil, fmt.Errorf("failed to create global directory: %w", err)
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	listener, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", fmt.Sprintf("localhost:%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	s := &Server{
		grpcServer: grpc.NewServer(),
		listener:   listener,
		port:       listener.Addr().(*net.TCPAddr).Port,
		version:    opts.Version,
		startedAt:  time.Now().UTC(),
		onShutdown: opts.OnShutdown,
		hub:        bridge.NewHub(),
		settings:   settings,
		done:       make(chan struct{}),
	}
	if s.onShutdown == nil {
		s.onShutdown = signalSelf
	}

	coordOpts, err := s.coordinatorOptions(opts, settings)
	if err != nil {
		listener.Close()
		return nil, err
	}
	s.coord = update.NewCoordinator(coordOpts)
	s.local = bridge.NewLocal(s, s.hub)

	bridge.RegisterService(s.grpcServer, bridge.NewService(s, s.hub))
	control.Register(s.grpcServer, &daemonService{server: s})

	if settings.Bridge.WebEnabled {
		webPort := settings.Bridge.WebPort
		if opts.WebPort > 0 {
			webPort = opts.WebPort
		}
		webListener, err := (&net.ListenConfig{}).Listen(context.TODO(), "tcp", fmt.Sprintf("localhost:%d", webPort))
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to listen for web displays: %w", err)
		}
		s.webListener = webListener
		s.webServer = &http.Server{
			Handler:           bridge.NewWebHandler(s.grpcServer, settings.Bridge.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	if settings.Analytics.Enabled && settings.Analytics.InstallID == "" {
		id, err := config.EnsureInstallID()
		if err != nil {
			log.Warnf("[analytics] install id not saved: %v", err)
		} else {
			settings.Analytics.InstallID = id
		}
	}
	if s.tracker, err = analytics.New(settings.Analytics, opts.Version); err != nil {
		log.Warnf("[analytics] disabled: %v", err)
	}
	if err := s.tracker.Subscribe(s.hub); err != nil {
		log.Warnf("[analytics] failed to subscribe: %v", err)
	}

	if err := s.startWatcher(); err != nil {
		log.Warnf("[watcher] settings will not be reloaded: %v", err)
	}
	if err := s.watchLastChecked(); err != nil {
		log.Warnf("[update] last_checked will not be recorded: %v", err)
	}

	return s, nil
}

func (s *Server) coordinatorOptions(opts Options, settings *models.Settings) (update.Options, error) {
	feed := opts.Feed
	if feed == nil {
		feed = updater.NewGitHubFeed(settings.Updates.FeedURL)
	}
	downloader := opts.Downloader
	if downloader == nil {
		dir, err := config.EnsureUpdatesDir()
		if err != nil {
			return update.Options{}, fmt.Errorf("failed to create updates directory: %w", err)
		}
		downloader = updater.NewHTTPDownloader(dir)
	}
	installer := opts.Installer
	if installer == nil {
		installer = &updater.BinaryInstaller{Restart: s.restartInto}
	}
	return update.Options{
		Feed:           feed,
		Downloader:     downloader,
		Installer:      installer,
		Emitter:        s.hub,
		Config:         update.ConfigFromSettings(settings.Updates),
		CurrentVersion: opts.Version,
	}, nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

// WebPort returns the grpc-web port, or 0 when web displays are off.
func (s *Server) WebPort() int {
	if s.webListener == nil {
		return 0
	}
	return s.webListener.Addr().(*net.TCPAddr).Port
}

// Coordinator returns the update coordinator.
func (s *Server) Coordinator() *update.Coordinator {
	return s.coord
}

// UpdateBridge returns an in-process bridge to the coordinator.
func (s *Server) UpdateBridge() *bridge.Local {
	return s.local
}

// RelaunchPath returns the binary an install asked to restart into, or "".
func (s *Server) RelaunchPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relaunchPath
}

// Serve starts serving requests. This blocks until Stop is called.
func (s *Server) Serve() error {
	s.startUpdateCheck()

	if s.webServer != nil {
		go func() {
			log.Infof("[bridge] web displays on port %d", s.WebPort())
			if err := s.webServer.Serve(s.webListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("[bridge] web listener: %v", err)
			}
		}()
	}
	return s.grpcServer.Serve(s.listener)
}

// Stop shuts the coordinator down and stops the listeners. Event streams
// never end on their own, so open streams are closed rather than drained.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.coord.Shutdown(ctx); err != nil {
		log.Errorf("[update] shutdown: %v", err)
	}

	if s.webServer != nil {
		if err := s.webServer.Shutdown(ctx); err != nil {
			log.Warnf("[bridge] web listener shutdown: %v", err)
		}
	}
	s.grpcServer.Stop()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	if err := s.tracker.Close(); err != nil {
		log.Warnf("[analytics] close: %v", err)
	}
	s.hub.Close()
}

// RequestShutdown asks the process to exit gracefully.
func (s *Server) RequestShutdown() {
	s.onShutdown()
}

// restartInto records the freshly installed binary and shuts down. The
// process entry point relaunches it once cleanup is done.
func (s *Server) restartInto(path string) error {
	s.mu.Lock()
	s.relaunchPath = path
	s.mu.Unlock()
	s.RequestShutdown()
	return nil
}

// signalSelf sends SIGINT to the current process after the in-flight RPC
// has had time to answer.
func signalSelf() {
	go func() {
		time.Sleep(100 * time.Millisecond)
		p, err := os.FindProcess(os.Getpid())
		if err != nil {
			return
		}
		_ = p.Signal(syscall.SIGINT)
	}()
}

// --- bridge.Host ---

func (s *Server) CheckForUpdates() { s.coord.CheckForUpdates() }
func (s *Server) ConfirmDownload() { s.coord.ConfirmDownload() }
func (s *Server) ConfirmInstall()  { s.coord.ConfirmInstall() }

func (s *Server) Snapshot() models.UpdateSnapshot {
	return s.coord.Snapshot()
}

// --- bridge.DisplayTracker ---

// DisplayAttached counts a display that holds the event stream.
func (s *Server) DisplayAttached() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displays++
	log.Debugf("[bridge] %d display(s) attached", s.displays)
}

// DisplayDetached cancels any in-flight update once the last display goes
// away, since nobody is left to confirm it. A downloaded payload is kept so
// the next display can offer the install.
func (s *Server) DisplayDetached() {
	s.mu.Lock()
	s.displays--
	last := s.displays == 0 && !s.stopped
	s.mu.Unlock()

	if !last {
		return
	}
	if s.coord.Snapshot().State == models.StateReadyToInstall {
		log.Debug("[bridge] last display detached, keeping downloaded update")
		return
	}
	log.Debug("[bridge] last display detached")
	s.coord.CancelUpdate()
}

// Displays returns the number of attached displays.
func (s *Server) Displays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displays
}

// --- settings reload ---

func (s *Server) startWatcher() error {
	dir, err := config.GlobalDir()
	if err != nil {
		return err
	}
	w, err := watcher.New(dir)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	s.watcher = w
	go s.handleWatcherEvents(w)
	return nil
}

func (s *Server) handleWatcherEvents(w *watcher.Watcher) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-w.Events():
			log.Debugf("[watcher] %s: %s", ev.Type, ev.Path)
			s.reloadSettings()
		}
	}
}

// reloadSettings re-reads settings.yaml and applies the update policy. A
// missing file means defaults.
func (s *Server) reloadSettings() {
	settings, err := config.LoadSettings()
	if err != nil {
		log.Warnf("[update] keeping previous settings: %v", err)
		return
	}

	s.mu.Lock()
	prev := s.settings
	s.settings = settings
	s.mu.Unlock()

	if prev != nil && prev.Updates.FeedURL != settings.Updates.FeedURL {
		log.Warnf("[update] feed_url changed, restart licensedeskd to use %s", settings.Updates.FeedURL)
	}
	s.coord.SetConfig(update.ConfigFromSettings(settings.Updates))
	log.Info("[update] settings reloaded")
}

// Settings returns the settings currently in effect.
func (s *Server) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.settings
}
