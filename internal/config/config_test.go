package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunlicence/licensedesk/internal/models"
)

func TestGlobalDir_HonorsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	got, err := GlobalDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	settings, err := GlobalSettingsFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SettingsFileName), settings)

	logFile, err := GlobalLogFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LogsDirName, LogFileName), logFile)
}

func TestLoadSettings_DefaultsWhenMissing(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, models.DefaultUpdatesConfig(), s.Updates)
	assert.False(t, s.Updates.AutoDownload)
	assert.False(t, s.Updates.AutoInstallOnQuit)
}

func TestLoadSettings_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	yaml := "version: 1\nupdates:\n  max_check_retries: 5\n  check_timeout_ms: -3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFileName), []byte(yaml), 0o644))

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 5, s.Updates.MaxCheckRetries)
	assert.Equal(t, 15000, s.Updates.CheckTimeoutMs, "invalid timeout replaced by default")
	assert.Equal(t, 3, s.Updates.MaxDownloadRetries)
	assert.Equal(t, 3*time.Second, s.Updates.UpToDateReset())
}

func TestLoadSettings_BadYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFileName), []byte("updates: [\n"), 0o644))

	_, err := LoadSettings()
	assert.Error(t, err)
}

func TestSaveSettings_RoundTripsLastChecked(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	checked := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

	s := models.NewSettings()
	s.Updates.CheckFrequency = models.CheckWeekly
	s.Updates.LastChecked = &checked
	require.NoError(t, SaveSettings(s))

	got, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, models.CheckWeekly, got.Updates.CheckFrequency)
	require.NotNil(t, got.Updates.LastChecked)
	assert.True(t, checked.Equal(*got.Updates.LastChecked))
}

func TestSaveYAML_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.yaml")
	require.NoError(t, SaveYAML(path, models.NewDaemonInfo("localhost", 1234, 0, 42)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "daemon.yaml", entries[0].Name())
}

func TestEnsureInstallID_PersistsAcrossLaunches(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	now := time.Now().UTC().Truncate(time.Second)
	s := models.NewSettings()
	s.Updates.LastChecked = &now
	require.NoError(t, SaveSettings(s))

	first, err := EnsureInstallID()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := EnsureInstallID()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	loaded, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, first, loaded.Analytics.InstallID)
	require.NotNil(t, loaded.Updates.LastChecked, "other settings are kept")
	assert.True(t, now.Equal(*loaded.Updates.LastChecked))
}

func TestDaemonInfo_SaveLoadRemove(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	info, err := LoadDaemonInfo()
	require.NoError(t, err)
	assert.Nil(t, info)

	require.NoError(t, SaveDaemonInfo(models.NewDaemonInfo("localhost", 50500, 50501, os.Getpid())))
	running, got, err := IsDaemonRunning()
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, 50500, got.Port)
	assert.Equal(t, 50501, got.WebPort)

	require.NoError(t, RemoveDaemonInfo())
	info, err = LoadDaemonInfo()
	require.NoError(t, err)
	assert.Nil(t, info)
	require.NoError(t, RemoveDaemonInfo())
}

func TestIsDaemonRunning_DropsStaleRecord(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	require.NoError(t, SaveDaemonInfo(models.NewDaemonInfo("localhost", 50500, 0, 0)))
	running, info, err := IsDaemonRunning()
	require.NoError(t, err)
	assert.False(t, running)
	require.NotNil(t, info)

	info, err = LoadDaemonInfo()
	require.NoError(t, err)
	assert.Nil(t, info, "stale daemon.yaml should be removed")
}

func TestInitLog_RejectsBadLevel(t *testing.T) {
	assert.Error(t, InitLog("loud", ConsoleLog))
}

func TestInitLog_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", LogFileName)
	require.NoError(t, InitLog("debug", path))
	t.Cleanup(func() { _ = InitLog("info", ConsoleLog) })
	assert.DirExists(t, filepath.Dir(path))
}
