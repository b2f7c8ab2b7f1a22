package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/daemon/control"
	"github.com/gunlicence/licensedesk/internal/display"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the licensedesk daemon",
	Long:  `Manage the licensedeskd process that owns the update session.`,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and update status",
	RunE:  runDaemonStatus,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE:  runDaemonStop,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonStopCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if running && info != nil {
		fmt.Printf("Daemon is already running (PID %d, port %d).\n", info.PID, info.Port)
		return nil
	}

	// Clean up stale daemon info if it exists
	if info != nil {
		_ = config.RemoveDaemonInfo()
	}

	fmt.Print("Starting daemon...")
	if startErr := startDaemon(); startErr != nil {
		fmt.Println()
		return startErr
	}

	_, freshInfo, err := config.IsDaemonRunning()
	if err != nil || freshInfo == nil {
		fmt.Println(" started.")
		return nil
	}

	fmt.Printf(" started (PID %d, port %d).\n", freshInfo.PID, freshInfo.Port)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	running, _, err := config.IsDaemonRunning()
	if err != nil {
		return err
	}
	if !running {
		fmt.Println("Daemon is not running.")
		return nil
	}

	client, conn, err := controlClient()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	status, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Print(formatDaemonStatus(status, time.Now()))
	return nil
}

// formatDaemonStatus renders the status block printed by `daemon status`.
func formatDaemonStatus(status *control.Status, now time.Time) string {
	var b strings.Builder
	b.WriteString("Daemon is running.\n")
	fmt.Fprintf(&b, "  %s    %s\n", styleLabel.Render("Version:"), styleValue.Render(status.Version))
	fmt.Fprintf(&b, "  %s       %s\n", styleLabel.Render("Host:"), styleValue.Render(status.Host))
	fmt.Fprintf(&b, "  %s       %s\n", styleLabel.Render("Port:"), styleValue.Render(fmt.Sprint(status.Port)))
	if status.WebPort > 0 {
		fmt.Fprintf(&b, "  %s   %s\n", styleLabel.Render("Web port:"), styleValue.Render(fmt.Sprint(status.WebPort)))
	}
	fmt.Fprintf(&b, "  %s        %s\n", styleLabel.Render("PID:"), styleValue.Render(fmt.Sprint(status.PID)))
	if status.StartedAt != nil {
		uptime := now.Sub(status.StartedAt.AsTime()).Truncate(time.Second)
		fmt.Fprintf(&b, "  %s     %s\n", styleLabel.Render("Uptime:"), styleValue.Render(uptime.String()))
	}
	fmt.Fprintf(&b, "  %s   %s\n", styleLabel.Render("Displays:"), styleValue.Render(fmt.Sprint(status.Displays)))

	b.WriteString("\nUpdates:\n")
	fmt.Fprintf(&b, "  %s      %s\n", styleLabel.Render("State:"), stateBadge(status.Update.State))
	proj := display.New()
	proj.FromSnapshot(status.Update)
	fmt.Fprintf(&b, "  %s     %s\n", styleLabel.Render("Action:"), styleValue.Render(proj.Label()))
	if rel := status.Update.Release; rel != nil && rel.Version != "" {
		fmt.Fprintf(&b, "  %s    %s\n", styleLabel.Render("Release:"), styleVersion.Render("v"+strings.TrimPrefix(rel.Version, "v")))
	}
	if status.Update.LastError != "" {
		fmt.Fprintf(&b, "  %s      %s\n", styleLabel.Render("Error:"), styleError.Render(status.Update.LastError))
	}
	if status.Update.LastChecked != nil {
		fmt.Fprintf(&b, "  %s    %s\n", styleLabel.Render("Checked:"), styleValue.Render(status.Update.LastChecked.Local().Format(time.DateTime)))
	}
	return b.String()
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	running, info, err := config.IsDaemonRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}

	if !running || info == nil {
		fmt.Println("Daemon is not running.")
		return nil
	}

	if err := requestShutdown(cmd.Context()); err != nil {
		// Fall back to SIGTERM when the RPC cannot be delivered
		process, findErr := os.FindProcess(info.PID)
		if findErr != nil {
			return fmt.Errorf("failed to find daemon process: %w", findErr)
		}
		if sigErr := process.Signal(syscall.SIGTERM); sigErr != nil {
			return fmt.Errorf("failed to send stop signal: %w", sigErr)
		}
	}

	// Poll for shutdown (max 5 seconds)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		stillRunning, _, err := config.IsDaemonRunning()
		if err == nil && !stillRunning {
			fmt.Println("Daemon stopped.")
			return nil
		}
	}

	return fmt.Errorf("daemon did not stop within timeout")
}

func requestShutdown(ctx context.Context) error {
	client, conn, err := controlClient()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Shutdown(ctx)
}
