package update

import (
	"time"

	"github.com/gunlicence/licensedesk/internal/models"
)

// Config holds the coordinator's timing and retry policy.
type Config struct {
	CheckTimeout         time.Duration
	MaxCheckRetries      int
	CheckRetryBackoff    time.Duration
	MaxDownloadRetries   int
	DownloadRetryBackoff time.Duration
	AutoDownload         bool
	AutoInstallOnQuit    bool
}

// DefaultConfig returns the policy used when no settings are stored.
func DefaultConfig() Config {
	return ConfigFromSettings(models.DefaultUpdatesConfig())
}

// ConfigFromSettings converts persisted update settings into a Config.
func ConfigFromSettings(u models.UpdatesConfig) Config {
	return Config{
		CheckTimeout:         u.CheckTimeout(),
		MaxCheckRetries:      u.MaxCheckRetries,
		CheckRetryBackoff:    u.CheckRetryBackoff(),
		MaxDownloadRetries:   u.MaxDownloadRetries,
		DownloadRetryBackoff: u.DownloadRetryBackoff(),
		AutoDownload:         u.AutoDownload,
		AutoInstallOnQuit:    u.AutoInstallOnQuit,
	}
}

func (c Config) normalized() Config {
	def := models.DefaultUpdatesConfig()
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = def.CheckTimeout()
	}
	if c.MaxCheckRetries < 0 {
		c.MaxCheckRetries = 0
	}
	if c.MaxDownloadRetries < 0 {
		c.MaxDownloadRetries = 0
	}
	if c.CheckRetryBackoff < 0 {
		c.CheckRetryBackoff = 0
	}
	if c.DownloadRetryBackoff < 0 {
		c.DownloadRetryBackoff = 0
	}
	return c
}
