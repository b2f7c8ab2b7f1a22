package models

import "time"

// Check frequencies for the startup update check.
const (
	CheckEveryLaunch = "every_launch"
	CheckDaily       = "daily"
	CheckWeekly      = "weekly"
)

// UpdatesConfig holds settings for the self-update pipeline.
// Timing values are stored in milliseconds.
type UpdatesConfig struct {
	CheckOnStartup         bool       `yaml:"check_on_startup"`
	CheckOnMount           bool       `yaml:"check_on_mount"`
	CheckFrequency         string     `yaml:"check_frequency"` // "every_launch" | "daily" | "weekly"
	AutoDownload           bool       `yaml:"auto_download"`
	AutoInstallOnQuit      bool       `yaml:"auto_install_on_quit"`
	FeedURL                string     `yaml:"feed_url"`
	CheckTimeoutMs         int        `yaml:"check_timeout_ms"`
	MaxCheckRetries        int        `yaml:"max_check_retries"`
	CheckRetryBackoffMs    int        `yaml:"check_retry_backoff_ms"`
	MaxDownloadRetries     int        `yaml:"max_download_retries"`
	DownloadRetryBackoffMs int        `yaml:"download_retry_backoff_ms"`
	UpToDateResetMs        int        `yaml:"up_to_date_reset_ms"`
	LastChecked            *time.Time `yaml:"last_checked,omitempty"`
}

// CheckTimeout is the hard bound on a single release feed query.
func (u UpdatesConfig) CheckTimeout() time.Duration {
	return time.Duration(u.CheckTimeoutMs) * time.Millisecond
}

// CheckRetryBackoff is the fixed wait between automatic check retries.
func (u UpdatesConfig) CheckRetryBackoff() time.Duration {
	return time.Duration(u.CheckRetryBackoffMs) * time.Millisecond
}

// DownloadRetryBackoff is the fixed wait between automatic download retries.
func (u UpdatesConfig) DownloadRetryBackoff() time.Duration {
	return time.Duration(u.DownloadRetryBackoffMs) * time.Millisecond
}

// UpToDateReset is how long displays show "up to date" before reverting.
func (u UpdatesConfig) UpToDateReset() time.Duration {
	return time.Duration(u.UpToDateResetMs) * time.Millisecond
}

// DueForCheck reports whether the startup check should run at now.
func (u UpdatesConfig) DueForCheck(now time.Time) bool {
	if !u.CheckOnStartup {
		return false
	}
	if u.LastChecked == nil {
		return true
	}
	since := now.Sub(*u.LastChecked)
	switch u.CheckFrequency {
	case CheckDaily:
		return since >= 24*time.Hour
	case CheckWeekly:
		return since >= 7*24*time.Hour
	default:
		return true
	}
}

// BridgeConfig holds settings for the display bridge listeners.
type BridgeConfig struct {
	WebEnabled     bool     `yaml:"web_enabled"`
	WebPort        int      `yaml:"web_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AnalyticsConfig holds opt-in product analytics settings.
type AnalyticsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"api_key,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	InstallID string `yaml:"install_id,omitempty"`
}

// Settings represents global application settings.
// This corresponds to ~/.licensedesk/settings.yaml.
type Settings struct {
	Version   int             `yaml:"version"`
	Updates   UpdatesConfig   `yaml:"updates"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// DefaultUpdatesConfig returns the update settings used when none are stored.
func DefaultUpdatesConfig() UpdatesConfig {
	return UpdatesConfig{
		CheckOnStartup:         true,
		CheckOnMount:           true,
		CheckFrequency:         CheckEveryLaunch,
		AutoDownload:           false,
		AutoInstallOnQuit:      false,
		FeedURL:                "https://api.github.com/repos/gunlicence/licensedesk/releases/latest",
		CheckTimeoutMs:         15000,
		MaxCheckRetries:        2,
		CheckRetryBackoffMs:    3000,
		MaxDownloadRetries:     3,
		DownloadRetryBackoffMs: 5000,
		UpToDateResetMs:        3000,
	}
}

// NewSettings creates settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: 1,
		Updates: DefaultUpdatesConfig(),
		Bridge: BridgeConfig{
			WebEnabled:     false,
			WebPort:        0,
			AllowedOrigins: []string{"http://localhost", "app://licensedesk"},
		},
	}
}

// Normalize fills zero timing values with defaults. Retry counts of zero are
// kept since they disable automatic retries.
func (s *Settings) Normalize() {
	def := DefaultUpdatesConfig()
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Updates.CheckTimeoutMs <= 0 {
		s.Updates.CheckTimeoutMs = def.CheckTimeoutMs
	}
	if s.Updates.CheckRetryBackoffMs < 0 {
		s.Updates.CheckRetryBackoffMs = def.CheckRetryBackoffMs
	}
	if s.Updates.DownloadRetryBackoffMs < 0 {
		s.Updates.DownloadRetryBackoffMs = def.DownloadRetryBackoffMs
	}
	if s.Updates.MaxCheckRetries < 0 {
		s.Updates.MaxCheckRetries = 0
	}
	if s.Updates.MaxDownloadRetries < 0 {
		s.Updates.MaxDownloadRetries = 0
	}
	if s.Updates.UpToDateResetMs <= 0 {
		s.Updates.UpToDateResetMs = def.UpToDateResetMs
	}
	if s.Updates.CheckFrequency == "" {
		s.Updates.CheckFrequency = def.CheckFrequency
	}
	if s.Updates.FeedURL == "" {
		s.Updates.FeedURL = def.FeedURL
	}
}
