// Package cmd holds the licensedeskd command line.
package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gunlicence/licensedesk/internal/buildinfo"
	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/daemon/server"
	"github.com/gunlicence/licensedesk/internal/daemon/tray"
	"github.com/gunlicence/licensedesk/internal/models"
	"github.com/gunlicence/licensedesk/internal/updater"
)

var (
	foreground bool
	port       int
	webPort    int
	logLevel   string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:          "licensedeskd",
	Short:        "LicenseDesk host daemon",
	Long:         "licensedeskd owns the update session and serves it to the TUI, the tray and web displays.",
	SilenceUsage: true,
	RunE:         runDaemon,
}

func init() {
	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (for development)")
	rootCmd.Flags().IntVar(&port, "port", 0, "Port to listen on (0 for dynamic allocation)")
	rootCmd.Flags().IntVar(&webPort, "web-port", 0, "Port for grpc-web displays (overrides settings)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path, or \"console\" (default: console in foreground, rotating file otherwise)")
}

// Execute runs the daemon command line.
func Execute() error {
	return rootCmd.Execute()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := config.EnsureGlobalDir(); err != nil {
		return fmt.Errorf("failed to create global directory: %w", err)
	}

	logPath := logFile
	if logPath == "" {
		logPath = config.ConsoleLog
		if !foreground {
			path, err := config.GlobalLogFile()
			if err != nil {
				return err
			}
			logPath = path
		}
	}
	if err := config.InitLog(logLevel, logPath); err != nil {
		return err
	}

	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon already running on port %d (PID %d)", info.Port, info.PID)
	}

	opts := server.Options{Port: port, WebPort: webPort, Version: buildinfo.Version}
	if foreground {
		log.Info("Running in foreground mode (no system tray)")
		return runForeground(opts)
	}
	log.Info("Running in background mode (with system tray)")
	runWithTray(opts)
	return nil
}

func start(opts server.Options) (*server.Server, error) {
	srv, err := server.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	daemonInfo := models.NewDaemonInfo("localhost", srv.Port(), srv.WebPort(), os.Getpid())
	if err := config.SaveDaemonInfo(daemonInfo); err != nil {
		srv.Stop()
		return nil, fmt.Errorf("failed to write daemon info: %w", err)
	}

	log.Infof("Daemon %s started on port %d (PID %d)", buildinfo.Version, srv.Port(), os.Getpid())
	return srv, nil
}

// stop shuts srv down, removes daemon.yaml and starts the new binary when an
// install asked for a restart.
func stop(srv *server.Server) {
	if srv == nil {
		return
	}
	srv.Stop()

	if err := config.RemoveDaemonInfo(); err != nil {
		log.Errorf("Failed to remove daemon info: %v", err)
	}

	if path := srv.RelaunchPath(); path != "" {
		log.Infof("Relaunching %s", path)
		if err := updater.Relaunch(path); err != nil {
			log.Errorf("Failed to relaunch: %v", err)
		}
	}
	log.Info("Daemon stopped")
}

// runForeground runs the daemon without a system tray, blocking on signals.
func runForeground(opts server.Options) error {
	srv, err := start(opts)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down...", sig)
	case err := <-errCh:
		log.Errorf("Server error: %v", err)
	}

	stop(srv)
	return nil
}

// runWithTray runs the daemon with a system tray icon on the main goroutine.
// systray.Run must occupy the main goroutine on macOS (Cocoa requirement).
func runWithTray(opts server.Options) {
	var srv *server.Server

	onStart := func() {
		var err error
		srv, err = start(opts)
		if err != nil {
			log.Fatal(err)
		}

		go func() {
			if err := srv.Serve(); err != nil {
				log.Errorf("Server error: %v", err)
				tray.Quit()
			}
		}()

		// Quit the tray on SIGINT/SIGTERM
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			log.Infof("Received signal %v, shutting down...", sig)
			tray.Quit()
		}()
	}

	onExit := func() {
		stop(srv)
	}

	// The tray needs a DaemonState before the server exists.
	lazyState := &lazyDaemonState{getSrv: func() *server.Server { return srv }}

	// Blocks until the tray exits.
	tray.Run(lazyState, onStart, onExit)
}
