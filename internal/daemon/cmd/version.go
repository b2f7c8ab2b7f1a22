package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/gunlicence/licensedesk/internal/buildinfo"
	"github.com/gunlicence/licensedesk/internal/config"
)

var (
	versionName  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "30", Dark: "45"})
	versionNum   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "40"})
	versionField = lipgloss.NewStyle().Width(9).Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "240"})
)

var daemonVersionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Show version and update source",
	Run: func(cmd *cobra.Command, args []string) {
		feed := "(settings unreadable)"
		if settings, err := config.LoadSettings(); err == nil {
			feed = settings.Updates.FeedURL
		}
		printVersion(cmd.OutOrStdout(), feed)
	},
}

func printVersion(w io.Writer, feed string) {
	fmt.Fprintf(w, "  %s %s (%s)\n", versionName.Render("licensedeskd"), versionNum.Render(buildinfo.Version), buildinfo.Channel)
	for _, row := range [][2]string{
		{"Commit", buildinfo.CommitHash},
		{"Built", buildinfo.BuildDate},
		{"Platform", runtime.GOOS + "/" + runtime.GOARCH + " " + runtime.Version()},
		{"Feed", feed},
	} {
		fmt.Fprintf(w, "    %s%s\n", versionField.Render(row[0]), row[1])
	}
}

func init() {
	rootCmd.AddCommand(daemonVersionCmd)
}
