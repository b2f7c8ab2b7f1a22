// Package cli implements the licensedesk CLI commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gunlicence/licensedesk/internal/buildinfo"
	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/tui"
)

var rootCmd = &cobra.Command{
	Use:   "licensedesk",
	Short: "Keep LicenseDesk up to date",
	Long: `LicenseDesk checks for new releases, downloads them with your consent and
installs them. Run without arguments to open the interactive update panel.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add subcommands (alphabetical)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	if err := EnsureDaemon(); err != nil {
		return err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	client, err := dialBridge()
	if err != nil {
		return err
	}
	// tui.Run closes the client on quit.
	return tui.Run(tui.Options{
		Bridge:  client,
		Version: buildinfo.Version,
		Panel: tui.PanelOptions{
			CheckOnMount:  settings.Updates.CheckOnMount,
			UpToDateReset: settings.Updates.UpToDateReset(),
		},
	})
}
