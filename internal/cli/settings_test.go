package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/gunlicence/licensedesk/internal/daemon/control"
	"github.com/gunlicence/licensedesk/internal/models"
)

func TestApplySetting(t *testing.T) {
	tests := []struct {
		key, value string
		check      func(t *testing.T, s *models.Settings)
	}{
		{"updates.auto_download", "true", func(t *testing.T, s *models.Settings) { assert.True(t, s.Updates.AutoDownload) }},
		{"updates.check_frequency", "weekly", func(t *testing.T, s *models.Settings) {
			assert.Equal(t, models.CheckWeekly, s.Updates.CheckFrequency)
		}},
		{"updates.max_check_retries", "0", func(t *testing.T, s *models.Settings) { assert.Zero(t, s.Updates.MaxCheckRetries) }},
		{"updates.feed_url", "https://example.com/releases/latest", func(t *testing.T, s *models.Settings) {
			assert.Equal(t, "https://example.com/releases/latest", s.Updates.FeedURL)
		}},
		{"bridge.web_port", "8123", func(t *testing.T, s *models.Settings) { assert.Equal(t, 8123, s.Bridge.WebPort) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s := models.NewSettings()
			require.NoError(t, applySetting(s, tt.key, tt.value))
			tt.check(t, s)
		})
	}
}

func TestApplySetting_Rejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown key", "updates.nope", "1"},
		{"bad bool", "updates.auto_download", "maybe"},
		{"bad frequency", "updates.check_frequency", "hourly"},
		{"negative retries", "updates.max_download_retries", "-1"},
		{"zero timeout", "updates.check_timeout_ms", "0"},
		{"not a url", "updates.feed_url", "ftp://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.NewSettings()
			before := *s
			assert.Error(t, applySetting(s, tt.key, tt.value))
			assert.Equal(t, before.Updates, s.Updates)
		})
	}
}

func TestFormatSettings_ListsEveryKey(t *testing.T) {
	out := formatSettings(models.NewSettings())
	for k := range settingKeys {
		assert.Contains(t, out, k)
	}
}

func TestFormatDaemonStatus(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	status := &control.Status{
		Version:   "1.4.0",
		Host:      "localhost",
		Port:      50123,
		PID:       77,
		StartedAt: timestamppb.New(now.Add(-90 * time.Second)),
		Displays:  1,
		Update: models.UpdateSnapshot{
			State:   models.StateReadyToInstall,
			Release: &models.Release{Version: "1.5.0"},
		},
	}

	out := formatDaemonStatus(status, now)
	assert.Contains(t, out, "50123")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "ReadyToInstall")
	assert.Contains(t, out, "Install v1.5.0 and Restart")
	assert.Contains(t, out, "v1.5.0")
	assert.NotContains(t, out, "Web port")
}
