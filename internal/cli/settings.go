package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gunlicence/licensedesk/internal/config"
	"github.com/gunlicence/licensedesk/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Aliases: []string{"config"},
	Short:   "Show or change update settings",
	Long: `Show or change the settings in ~/.licensedesk/settings.yaml.

A running daemon picks up changes without a restart, except for
updates.feed_url which applies from the next start.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		fmt.Print(formatSettings(s))
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.LoadSettings()
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		if err := applySetting(s, args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveSettings(s); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Printf("%s %s = %s\n", styleSuccess.Render("✓"), args[0], settingKeys[args[0]].get(s))
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

// settingKey reads and writes one dotted settings key.
type settingKey struct {
	get func(*models.Settings) string
	set func(*models.Settings, string) error
}

func boolSetting(field func(*models.Settings) *bool) settingKey {
	return settingKey{
		get: func(s *models.Settings) string { return strconv.FormatBool(*field(s)) },
		set: func(s *models.Settings, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", v)
			}
			*field(s) = b
			return nil
		},
	}
}

func intSetting(min int, field func(*models.Settings) *int) settingKey {
	return settingKey{
		get: func(s *models.Settings) string { return strconv.Itoa(*field(s)) },
		set: func(s *models.Settings, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("expected a number, got %q", v)
			}
			if n < min {
				return fmt.Errorf("must be at least %d", min)
			}
			*field(s) = n
			return nil
		},
	}
}

func stringSetting(validate func(string) error, field func(*models.Settings) *string) settingKey {
	return settingKey{
		get: func(s *models.Settings) string { return *field(s) },
		set: func(s *models.Settings, v string) error {
			if validate != nil {
				if err := validate(v); err != nil {
					return err
				}
			}
			*field(s) = v
			return nil
		},
	}
}

func validateFrequency(v string) error {
	switch v {
	case models.CheckEveryLaunch, models.CheckDaily, models.CheckWeekly:
		return nil
	}
	return fmt.Errorf("expected %s, %s or %s", models.CheckEveryLaunch, models.CheckDaily, models.CheckWeekly)
}

func validateURL(v string) error {
	if !strings.HasPrefix(v, "https://") && !strings.HasPrefix(v, "http://") {
		return fmt.Errorf("expected an http(s) URL, got %q", v)
	}
	return nil
}

var settingKeys = map[string]settingKey{
	"updates.check_on_startup":     boolSetting(func(s *models.Settings) *bool { return &s.Updates.CheckOnStartup }),
	"updates.check_on_mount":       boolSetting(func(s *models.Settings) *bool { return &s.Updates.CheckOnMount }),
	"updates.check_frequency":      stringSetting(validateFrequency, func(s *models.Settings) *string { return &s.Updates.CheckFrequency }),
	"updates.auto_download":        boolSetting(func(s *models.Settings) *bool { return &s.Updates.AutoDownload }),
	"updates.auto_install_on_quit": boolSetting(func(s *models.Settings) *bool { return &s.Updates.AutoInstallOnQuit }),
	"updates.feed_url":             stringSetting(validateURL, func(s *models.Settings) *string { return &s.Updates.FeedURL }),
	"updates.check_timeout_ms":     intSetting(1, func(s *models.Settings) *int { return &s.Updates.CheckTimeoutMs }),
	"updates.max_check_retries":    intSetting(0, func(s *models.Settings) *int { return &s.Updates.MaxCheckRetries }),
	"updates.check_retry_backoff_ms": intSetting(0, func(s *models.Settings) *int {
		return &s.Updates.CheckRetryBackoffMs
	}),
	"updates.max_download_retries": intSetting(0, func(s *models.Settings) *int { return &s.Updates.MaxDownloadRetries }),
	"updates.download_retry_backoff_ms": intSetting(0, func(s *models.Settings) *int {
		return &s.Updates.DownloadRetryBackoffMs
	}),
	"updates.up_to_date_reset_ms": intSetting(1, func(s *models.Settings) *int { return &s.Updates.UpToDateResetMs }),
	"bridge.web_enabled":          boolSetting(func(s *models.Settings) *bool { return &s.Bridge.WebEnabled }),
	"bridge.web_port":             intSetting(0, func(s *models.Settings) *int { return &s.Bridge.WebPort }),
	"analytics.enabled":           boolSetting(func(s *models.Settings) *bool { return &s.Analytics.Enabled }),
}

// applySetting sets key to value on s.
func applySetting(s *models.Settings, key, value string) error {
	k, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q (see `licensedesk settings show`)", key)
	}
	if err := k.set(s, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// formatSettings renders every known key, sorted.
func formatSettings(s *models.Settings) string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "  %-34s %s\n", styleLabel.Render(k), styleValue.Render(settingKeys[k].get(s)))
	}
	if s.Updates.LastChecked != nil {
		fmt.Fprintf(&b, "  %-34s %s\n", styleLabel.Render("updates.last_checked"), styleValue.Render(s.Updates.LastChecked.Local().Format("2006-01-02 15:04:05")))
	}
	return b.String()
}
